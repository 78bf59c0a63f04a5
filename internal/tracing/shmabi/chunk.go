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

package shmabi

import (
	"sync/atomic"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

// ChunkState is the two-bit ownership state of a chunk. Only four values
// are ever legal; the state field is wider than two bits purely so it can
// be the target of a 32-bit atomic CAS.
type ChunkState uint32

const (
	// ChunkFree means no producer owns the chunk; the arbiter may hand it
	// out to a writer.
	ChunkFree ChunkState = iota
	// ChunkBeingWritten means a producer has acquired the chunk and is
	// filling its payload and header fields.
	ChunkBeingWritten
	// ChunkComplete means the producer has committed the chunk: the
	// service may read it.
	ChunkComplete
	// ChunkBeingRead means the service has acquired the chunk for
	// reading; only the service may touch its bytes until it releases.
	ChunkBeingRead
)

func (s ChunkState) String() string {
	switch s {
	case ChunkFree:
		return "free"
	case ChunkBeingWritten:
		return "being-written"
	case ChunkComplete:
		return "complete"
	case ChunkBeingRead:
		return "being-read"
	default:
		return "invalid"
	}
}

// Flag bits carried in ChunkHeader.Flags.
const (
	FlagContinuesFromPrevChunk uint8 = 1 << 0
	FlagContinuesOnNextChunk   uint8 = 1 << 1
)

// ChunkHeader is the fixed-size, in-place header of one chunk. Its memory
// is shared between exactly one producer and the service; the state field
// is the only part of it safe to touch without first winning the
// corresponding CAS transition.
//
// packetCount and flags are packed into a single uint32 (meta) rather than
// kept as separate uint16/uint8 fields because sync/atomic has no 8- or
// 16-bit load/store primitives; meta's low 16 bits hold packetCount and
// bits 16-23 hold flags.
//
// Layout (32 bytes, matches ChunkHeaderSize):
//
//	uint32 state        // atomic: ChunkState
//	uint32 writerID      // WriterID
//	uint32 chunkID       // ChunkID
//	uint32 targetBuffer  // BufferID
//	uint32 meta          // packetCount (low 16 bits) | flags (bits 16-23)
//	[2]uint32 reserved2  // pad to 32 bytes
//	uint32 reserved3
type ChunkHeader struct {
	state        uint32
	writerID     uint32
	chunkID      uint32
	targetBuffer uint32
	meta         uint32
	reserved2    [2]uint32
	reserved3    uint32
}

func packMeta(packetCount uint16, flags uint8) uint32 {
	return uint32(packetCount) | uint32(flags)<<16
}

func unpackMeta(meta uint32) (packetCount uint16, flags uint8) {
	return uint16(meta & 0xffff), uint8((meta >> 16) & 0xff)
}

// State returns the chunk's current ownership state.
func (h *ChunkHeader) State() ChunkState {
	return ChunkState(atomic.LoadUint32(&h.state))
}

// TryAcquireChunk attempts the producer-side free->being-written
// transition. It is a CAS: failure means another acquisition attempt beat
// this one (or the chunk genuinely isn't free) and is not an error — the
// caller (the arbiter) just tries the next candidate chunk.
func (h *ChunkHeader) TryAcquireChunk() bool {
	return atomic.CompareAndSwapUint32(&h.state, uint32(ChunkFree), uint32(ChunkBeingWritten))
}

// Commit fills the header fields a producer owns and then release-stores
// the being-written->complete transition, so that every payload byte
// written before this call is visible to the service once it observes
// ChunkComplete (§4.1: "writes to chunk payload by the producer must be
// visible to the service before the complete transition").
//
// Commit panics via core.Check if called on a chunk this producer did not
// hold in ChunkBeingWritten: that would be this repo's own bug, not
// adversarial input, since only the arbiter that successfully called
// TryAcquireChunk ever calls Commit.
func (h *ChunkHeader) Commit(writer core.WriterID, chunk core.ChunkID, target core.BufferID, packetCount uint16, flags uint8) {
	core.Check(h.State() == ChunkBeingWritten, "shmabi: Commit on chunk in state %s", h.State())
	atomic.StoreUint32(&h.writerID, uint32(writer))
	atomic.StoreUint32(&h.chunkID, uint32(chunk))
	atomic.StoreUint32(&h.targetBuffer, uint32(target))
	atomic.StoreUint32(&h.meta, packMeta(packetCount, flags))
	// Release-store: everything written above (and any plain payload
	// writes the caller made before calling Commit) becomes visible to
	// any goroutine that subsequently observes ChunkComplete via an
	// acquire load — atomic.CompareAndSwapUint32 below provides that.
	ok := atomic.CompareAndSwapUint32(&h.state, uint32(ChunkBeingWritten), uint32(ChunkComplete))
	core.Check(ok, "shmabi: Commit lost the being-written->complete race")
}

// TryAcquireForRead attempts the service-side complete->being-read
// transition (an acquire, pairing with Commit's release) and, on success,
// returns the identity and metadata the producer committed.
func (h *ChunkHeader) TryAcquireForRead() (writer core.WriterID, chunk core.ChunkID, target core.BufferID, packetCount uint16, flags uint8, ok bool) {
	if !atomic.CompareAndSwapUint32(&h.state, uint32(ChunkComplete), uint32(ChunkBeingRead)) {
		return 0, 0, 0, 0, 0, false
	}
	writer = core.WriterID(atomic.LoadUint32(&h.writerID))
	chunk = core.ChunkID(atomic.LoadUint32(&h.chunkID))
	target = core.BufferID(atomic.LoadUint32(&h.targetBuffer))
	packetCount, flags = unpackMeta(atomic.LoadUint32(&h.meta))
	return writer, chunk, target, packetCount, flags, true
}

// Release performs the service-side being-read->free transition, handing
// the chunk back to the arbiter for reuse.
func (h *ChunkHeader) Release() {
	core.Check(h.State() == ChunkBeingRead, "shmabi: Release on chunk in state %s", h.State())
	atomic.StoreUint32(&h.state, uint32(ChunkFree))
}

// ResetForTest forces a chunk back to ChunkFree regardless of its current
// state. It exists only for unit tests that need to reuse a chunk outside
// the normal producer/service handshake and must never be called from
// production code paths.
func (h *ChunkHeader) ResetForTest() {
	atomic.StoreUint32(&h.state, uint32(ChunkFree))
}
