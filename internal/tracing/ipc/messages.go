/*
 * Copyright 2024 The Perfetto Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package ipc

import (
	"github.com/sugawarayuuta/sonnet"

	"github.com/etsangsplk/perfetto/internal/tracing/config"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

// wireVersion is the only version this package's message bodies speak.
// Every message embeds it so a peer on a newer minor version can tell a
// message it doesn't fully understand apart from a genuinely incompatible
// one, per §3.2.
const wireVersion uint8 = 1

// EncodeMessage marshals msg (one of the message structs below) as a
// versioned, self-describing JSON body suitable for Frame.Payload.
func EncodeMessage(msg any) ([]byte, error) {
	return sonnet.Marshal(msg)
}

// DecodeMessage unmarshals a Frame.Payload produced by EncodeMessage into
// msg, which must be a pointer to one of the message structs below.
func DecodeMessage(payload []byte, msg any) error {
	return sonnet.Unmarshal(payload, msg)
}

// --- Producer RPC (§6) ---

// InitializeConnectionRequest is a producer's handshake with the service.
// The resulting shared-memory FD travels out-of-band on the transport (a
// SCM_RIGHTS-style side channel on a Unix socket, or the test transport's
// equivalent), never inside this JSON body.
type InitializeConnectionRequest struct {
	Version                   uint8  `json:"version"`
	SharedMemorySizeHintBytes uint32 `json:"shared_memory_size_hint_bytes"`
	PageLayoutHint            string `json:"page_layout_hint,omitempty"`
}

func NewInitializeConnectionRequest(sizeHint uint32, pageLayoutHint string) InitializeConnectionRequest {
	return InitializeConnectionRequest{Version: wireVersion, SharedMemorySizeHintBytes: sizeHint, PageLayoutHint: pageLayoutHint}
}

type InitializeConnectionResponse struct {
	Version              uint8  `json:"version"`
	EffectiveSizeBytes   uint32 `json:"effective_size_bytes"`
	EffectivePageLayout  string `json:"effective_page_layout"`
}

func NewInitializeConnectionResponse(effectiveSize uint32, effectivePageLayout string) InitializeConnectionResponse {
	return InitializeConnectionResponse{Version: wireVersion, EffectiveSizeBytes: effectiveSize, EffectivePageLayout: effectivePageLayout}
}

type RegisterDataSourceRequest struct {
	Version          uint8  `json:"version"`
	Name             string `json:"name"`
	WillNotifyOnStop bool   `json:"will_notify_on_stop"`
}

func NewRegisterDataSourceRequest(name string, willNotifyOnStop bool) RegisterDataSourceRequest {
	return RegisterDataSourceRequest{Version: wireVersion, Name: name, WillNotifyOnStop: willNotifyOnStop}
}

type RegisterDataSourceResponse struct {
	Version      uint8              `json:"version"`
	DataSourceID core.DataSourceID `json:"data_source_id"`
}

type UnregisterDataSourceRequest struct {
	Version      uint8              `json:"version"`
	DataSourceID core.DataSourceID `json:"data_source_id"`
}

// NotifySharedMemoryUpdate hints which pages changed. PagesBitmap has one
// bit per SMA page, set for a page the producer wrote to since the last
// notification.
type NotifySharedMemoryUpdate struct {
	Version     uint8  `json:"version"`
	PagesBitmap []byte `json:"pages_bitmap"`
}

// SetupDataSource and StartDataSource are server-initiated: the service
// sends them to a producer that registered the named source.
type SetupDataSource struct {
	Version    uint8                       `json:"version"`
	InstanceID core.DataSourceInstanceID   `json:"instance_id"`
	Config     config.DataSourceConfig     `json:"config"`
}

type StartDataSource struct {
	Version    uint8                     `json:"version"`
	InstanceID core.DataSourceInstanceID `json:"instance_id"`
	Config     config.DataSourceConfig   `json:"config"`
}

type StopDataSource struct {
	Version    uint8                     `json:"version"`
	InstanceID core.DataSourceInstanceID `json:"instance_id"`
}

// ProducerFlushRequest is the server-initiated Flush(flush_id, [instance_id])
// of §6: the service asks a producer to flush the named instances (or all
// of them, if InstanceIDs is empty) as part of a consumer-triggered flush.
type ProducerFlushRequest struct {
	Version     uint8                       `json:"version"`
	FlushID     uint64                      `json:"flush_id"`
	InstanceIDs []core.DataSourceInstanceID `json:"instance_ids,omitempty"`
}

// --- Consumer RPC (§6) ---

type EnableTracingRequest struct {
	Version uint8              `json:"version"`
	Config  config.TraceConfig `json:"config"`
}

func NewEnableTracingRequest(cfg config.TraceConfig) EnableTracingRequest {
	return EnableTracingRequest{Version: wireVersion, Config: cfg}
}

type DisableTracingRequest struct {
	Version uint8 `json:"version"`
}

type ConsumerFlushRequest struct {
	Version   uint8  `json:"version"`
	TimeoutMS uint32 `json:"timeout_ms"`
}

type ConsumerFlushResponse struct {
	Version uint8  `json:"version"`
	FlushID uint64 `json:"flush_id"`
	Partial bool   `json:"partial,omitempty"`
}

type ReadBuffersRequest struct {
	Version uint8 `json:"version"`
}

// PacketBatch is one batch of the packet stream ReadBuffers returns.
// Packets are already length-delimited by JSON array framing here; the
// unsigned-varint length-prefix framing of §6 is the LB's own on-the-wire
// (shared memory) representation, reused verbatim as each packet's bytes.
type PacketBatch struct {
	Version uint8    `json:"version"`
	Packets [][]byte `json:"packets"`
}

type FreeBuffersRequest struct {
	Version uint8 `json:"version"`
}
