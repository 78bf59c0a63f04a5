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

import "github.com/etsangsplk/perfetto/internal/tracing/ipc"

// ProducerTransport delivers one server-initiated message (SetupDataSource,
// StartDataSource, StopDataSource, a producer-targeted Flush) to a single
// producer connection. The real implementation frames msg via
// ipc.EncodeMessage and ipc.WriteFrame over the connection's stream —
// wire framing itself is out of scope per §1 ("only its semantics enter
// §6"); this interface is that semantic boundary, and tests substitute a
// recording transport instead of a real socket.
type ProducerTransport interface {
	Send(msgType ipc.MessageType, msg any) error
}

// ConsumerTransport delivers one service-initiated message (a
// ConsumerFlushResponse, a PacketBatch) to a single consumer connection.
type ConsumerTransport interface {
	Send(msgType ipc.MessageType, msg any) error
}
