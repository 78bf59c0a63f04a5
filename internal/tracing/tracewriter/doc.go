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

// Package tracewriter implements the Trace Writer (TW): a thin
// packet-framing facade over an arbiter.Arbiter. A TraceWriter belongs to
// one WriterID and is only ever driven by that writer's single thread, so
// it keeps no internal locking of its own, matching §5's "each producer
// internally uses a single writer thread per WriterID".
package tracewriter
