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
	"encoding/binary"
	"fmt"
	"io"
)

// Frame header layout (16 bytes, little-endian), per §3.2:
//
//	uint32 Length    // payload length in bytes, excludes this header
//	uint32 ConnID    // connection/stream identifier
//	uint8  Type      // MessageType
//	uint8  Flags     // per-type flags
//	uint16 Reserved  // zero; future use
//	uint32 Reserved2 // zero; future use
const frameHeaderSize = 16

// MessageType enumerates the producer/consumer RPC messages of §6, plus
// MessagePAD used to pad a stream up to an alignment boundary, mirroring
// the chunk/page alignment discipline the SMA itself uses.
type MessageType uint8

const (
	MessagePAD MessageType = iota

	MessageInitializeConnectionRequest
	MessageInitializeConnectionResponse
	MessageRegisterDataSourceRequest
	MessageRegisterDataSourceResponse
	MessageUnregisterDataSourceRequest
	MessageNotifySharedMemoryUpdate
	MessageSetupDataSource
	MessageStartDataSource
	MessageStopDataSource
	MessageProducerFlushRequest

	MessageEnableTracingRequest
	MessageDisableTracingRequest
	MessageConsumerFlushRequest
	MessageConsumerFlushResponse
	MessageReadBuffersRequest
	MessagePacketBatch
	MessageFreeBuffersRequest

	MessageStatus
)

func (t MessageType) String() string {
	switch t {
	case MessagePAD:
		return "PAD"
	case MessageInitializeConnectionRequest:
		return "InitializeConnectionRequest"
	case MessageInitializeConnectionResponse:
		return "InitializeConnectionResponse"
	case MessageRegisterDataSourceRequest:
		return "RegisterDataSourceRequest"
	case MessageRegisterDataSourceResponse:
		return "RegisterDataSourceResponse"
	case MessageUnregisterDataSourceRequest:
		return "UnregisterDataSourceRequest"
	case MessageNotifySharedMemoryUpdate:
		return "NotifySharedMemoryUpdate"
	case MessageSetupDataSource:
		return "SetupDataSource"
	case MessageStartDataSource:
		return "StartDataSource"
	case MessageStopDataSource:
		return "StopDataSource"
	case MessageProducerFlushRequest:
		return "ProducerFlushRequest"
	case MessageEnableTracingRequest:
		return "EnableTracingRequest"
	case MessageDisableTracingRequest:
		return "DisableTracingRequest"
	case MessageConsumerFlushRequest:
		return "ConsumerFlushRequest"
	case MessageConsumerFlushResponse:
		return "ConsumerFlushResponse"
	case MessageReadBuffersRequest:
		return "ReadBuffersRequest"
	case MessagePacketBatch:
		return "PacketBatch"
	case MessageFreeBuffersRequest:
		return "FreeBuffersRequest"
	case MessageStatus:
		return "Status"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Frame is one framed unit on an RPC stream.
type Frame struct {
	ConnID  uint32
	Type    MessageType
	Flags   uint8
	Payload []byte
}

// WriteFrame writes one frame (16-byte header then payload) to w.
func WriteFrame(w io.Writer, f Frame) error {
	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(f.Payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], f.ConnID)
	hdr[8] = byte(f.Type)
	hdr[9] = f.Flags
	binary.LittleEndian.PutUint16(hdr[10:12], 0)
	binary.LittleEndian.PutUint32(hdr[12:16], 0)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if len(f.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(f.Payload); err != nil {
		return fmt.Errorf("ipc: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r, skipping any MessagePAD frames.
func ReadFrame(r io.Reader) (Frame, error) {
	for {
		var hdr [frameHeaderSize]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, err
		}
		length := binary.LittleEndian.Uint32(hdr[0:4])
		f := Frame{
			ConnID: binary.LittleEndian.Uint32(hdr[4:8]),
			Type:   MessageType(hdr[8]),
			Flags:  hdr[9],
		}
		if length > 0 {
			f.Payload = make([]byte, length)
			if _, err := io.ReadFull(r, f.Payload); err != nil {
				return Frame{}, fmt.Errorf("ipc: read frame payload: %w", err)
			}
		}
		if f.Type == MessagePAD {
			continue
		}
		return f, nil
	}
}
