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

package service

import (
	"fmt"
	"time"

	"github.com/etsangsplk/perfetto/internal/tracing/config"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/ipc"
	"github.com/etsangsplk/perfetto/internal/tracing/logbuffer"
)

// ReadBuffers implements §4.5's consumer read path: "read_buffers(session)
// iterates every LB in the session, calling read_next_packet until Empty,
// batching packets into bounded frames." maxPacketsPerBatch bounds each
// returned ipc.PacketBatch so one session with a lot of buffered data
// still streams back in reasonably sized frames.
func (c *Core) ReadBuffers(id core.SessionID, maxPacketsPerBatch int) ([]ipc.PacketBatch, error) {
	if maxPacketsPerBatch <= 0 {
		maxPacketsPerBatch = 128
	}
	var batches []ipc.PacketBatch
	var err error
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok {
			err = fmt.Errorf("service: unknown session %d", id)
			return
		}

		current := ipc.PacketBatch{Version: 1}
		for _, bufID := range sortedBufferIDs(s.buffers) {
			lb := s.buffers[bufID]
			lb.BeginRead()
			for {
				frags, rerr := lb.ReadNextPacket()
				if rerr != nil {
					break // core.ErrEmpty: this buffer is drained for this pass
				}
				current.Packets = append(current.Packets, joinFragments(frags))
				if len(current.Packets) >= maxPacketsPerBatch {
					batches = append(batches, current)
					current = ipc.PacketBatch{Version: 1}
				}
			}
		}
		if len(current.Packets) > 0 {
			batches = append(batches, current)
		}
	})
	return batches, err
}

// joinFragments concatenates a reassembled packet's non-owning fragment
// slices into one owned byte slice, safe to hand past the task runner.
func joinFragments(frags [][]byte) []byte {
	total := 0
	for _, f := range frags {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range frags {
		out = append(out, f...)
	}
	return out
}

// sortedBufferIDs returns a session's buffer indices in ascending order so
// ReadBuffers visits them deterministically.
func sortedBufferIDs(buffers map[core.BufferID]*logbuffer.LogBuffer) []core.BufferID {
	ids := make([]core.BufferID, 0, len(buffers))
	for id := range buffers {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// ConsumerEndpoint is the service-owned, stable-id facade a consumer
// connection drives, mirroring ProducerEndpoint's cyclic-ownership design.
type ConsumerEndpoint struct {
	core       *Core
	session    core.SessionID
	hasSession bool
}

// NewConsumerEndpoint creates a consumer endpoint with no configured
// session yet; Configure must be called before Enable, Flush, Disable, or
// ReadBuffers.
func (c *Core) NewConsumerEndpoint() *ConsumerEndpoint {
	return &ConsumerEndpoint{core: c}
}

// Configure implements §6's EnableTracing's config half: it validates and
// stores trace_config, moving the session Idle → Configured.
func (ce *ConsumerEndpoint) Configure(cfg config.TraceConfig, transport ConsumerTransport) (core.SessionID, error) {
	id, err := ce.core.ConfigureSession(cfg, transport)
	if err != nil {
		return 0, err
	}
	ce.session = id
	ce.hasSession = true
	return id, nil
}

// Enable implements §6's EnableTracing: Configured → Enabling.
func (ce *ConsumerEndpoint) Enable() error {
	if !ce.hasSession {
		return fmt.Errorf("service: consumer endpoint has no configured session")
	}
	return ce.core.EnableSession(ce.session)
}

// Flush implements §6's Flush(timeout_ms) → flush_id.
func (ce *ConsumerEndpoint) Flush(timeout time.Duration) (uint64, error) {
	if !ce.hasSession {
		return 0, fmt.Errorf("service: consumer endpoint has no configured session")
	}
	return ce.core.FlushSession(ce.session, timeout)
}

// Disable implements §6's DisableTracing: Enabled → Disabling → Disabled.
func (ce *ConsumerEndpoint) Disable() error {
	if !ce.hasSession {
		return fmt.Errorf("service: consumer endpoint has no configured session")
	}
	return ce.core.DisableSession(ce.session)
}

// ReadBuffers implements §6's ReadBuffers() → stream of packet batches.
func (ce *ConsumerEndpoint) ReadBuffers(maxPacketsPerBatch int) ([]ipc.PacketBatch, error) {
	if !ce.hasSession {
		return nil, fmt.Errorf("service: consumer endpoint has no configured session")
	}
	return ce.core.ReadBuffers(ce.session, maxPacketsPerBatch)
}

// FreeBuffers implements §6's FreeBuffers: it destroys the session once
// Disabled.
func (ce *ConsumerEndpoint) FreeBuffers() error {
	if !ce.hasSession {
		return fmt.Errorf("service: consumer endpoint has no configured session")
	}
	err := ce.core.DestroySession(ce.session)
	if err == nil {
		ce.hasSession = false
	}
	return err
}

// SessionID returns the session this endpoint configured, for diagnostics.
func (ce *ConsumerEndpoint) SessionID() (core.SessionID, bool) {
	return ce.session, ce.hasSession
}
