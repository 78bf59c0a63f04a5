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

// Package logbuffer implements the per-session log buffer: a contiguous
// byte ring of chunk records, a secondary index keyed by (producer, writer,
// chunk id), and packet reassembly across chunk boundaries.
//
// The buffer never straddles a chunk record across its wrap point: when a
// new record would not fit before the end, the tail is covered by a
// padding record and the write pointer resets to zero. Every operation is
// meant to be called from a single goroutine (the service's task runner);
// LogBuffer performs no internal locking.
package logbuffer
