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

package tracewriter

import "github.com/etsangsplk/perfetto/internal/tracing/core"

// Patch is a length prefix whose owning chunk was already copied into a
// log buffer by the time the packet finished, so it could not be
// backfilled directly in shared memory (§4.4: "length prefixes whose
// patch site moved to a prior, already committed chunk are emitted via the
// LB try_patch path"). The caller pumping committed chunks into the LB is
// responsible for applying these with logbuffer.LogBuffer.TryPatch once
// the named chunk has reached that buffer.
type Patch struct {
	Writer core.WriterKey
	Chunk  core.ChunkID
	Offset int
	Value  [4]byte
}

// PendingPatches drains and returns every patch TraceWriter could not
// apply directly, in the order their packets were finished.
func (tw *TraceWriter) PendingPatches() []Patch {
	if len(tw.pending) == 0 {
		return nil
	}
	out := tw.pending
	tw.pending = nil
	return out
}
