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

// Package ipc gives the producer and consumer RPC message lists of §6 a
// concrete wire representation: a fixed 16-byte frame header over any
// stream transport, carrying a versioned, self-describing JSON body per
// message. It does not implement the transport itself (a net.Conn, a
// net.UnixConn carrying an out-of-band SHM descriptor, or an in-memory pipe
// in tests all work), and it does not generate the proto conversion layer
// real producers/consumers speak — only the semantics named in §6.
package ipc
