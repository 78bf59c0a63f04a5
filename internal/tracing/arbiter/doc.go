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

// Package arbiter implements the shared-memory arbiter (SMA-Arb): the
// producer-side allocator that hands writers free chunks from a shmabi
// Region, assigns per-writer ChunkIDs, and notifies the service of newly
// committed chunks in batches rather than one syscall per chunk.
//
// An Arbiter is shared by every WriterID within one producer process; each
// WriterID's own goroutine calls GetNewChunk/ReleaseChunk without further
// synchronization on its own end, but concurrent calls across WriterIDs are
// safe since chunk acquisition is a CAS on shared-memory state and ChunkID
// allocation is serialized internally.
package arbiter
