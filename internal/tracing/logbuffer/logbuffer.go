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

package logbuffer

import (
	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

// Stats accumulates counters a session exposes to diagnostics; every field
// here corresponds to a §7 error-kind policy applied inside the buffer.
type Stats struct {
	ChunksWritten      uint64
	ChunksEvicted      uint64
	PatchesApplied     uint64
	PatchesRejected    uint64
	PacketsEmitted     uint64
	PacketsDataLoss    uint64
	MalformedDiscarded uint64
}

// LogBuffer is the per-session ring of chunk records described in §4.2. It
// is not safe for concurrent use; the service task runner is its only
// caller.
type LogBuffer struct {
	buf       []byte
	size      int
	writePos  int
	sizeToEnd int
	index     *chunkIndex
	reader    *reassembler
	stats     Stats
}

// Create allocates a LogBuffer of sizeBytes, which must be a positive
// multiple of RecordAlignment and large enough to hold at least one
// record header.
func Create(sizeBytes int) (*LogBuffer, error) {
	if sizeBytes <= 0 || sizeBytes%RecordAlignment != 0 || sizeBytes < RecordHeaderSize {
		return nil, core.New(core.KindInvalidConfig, "logbuffer.Create", core.ErrInvalidSize)
	}
	lb := &LogBuffer{
		buf:       make([]byte, sizeBytes),
		size:      sizeBytes,
		sizeToEnd: sizeBytes,
		index:     newChunkIndex(),
	}
	lb.reader = newReassembler(lb)
	return lb, nil
}

// Size returns the buffer's total byte capacity.
func (lb *LogBuffer) Size() int { return lb.size }

// SizeToEnd returns the number of bytes between the write pointer and the
// end of the buffer.
func (lb *LogBuffer) SizeToEnd() int { return lb.sizeToEnd }

// Stats returns a snapshot of the buffer's counters.
func (lb *LogBuffer) Stats() Stats { return lb.stats }

func recordTotalSize(payloadSize int) int {
	return alignUp(RecordHeaderSize+payloadSize, RecordAlignment)
}

// CopyChunkIn appends one committed chunk's payload as a new chunk record,
// implementing §4.2's copy_chunk_in algorithm: round up to the record
// alignment, pad or evict to make room, write the record, and index it.
func (lb *LogBuffer) CopyChunkIn(producer core.ProducerID, writer core.WriterID, chunk core.ChunkID, flags uint8, packetCount uint8, payload []byte) error {
	needed := recordTotalSize(len(payload))
	if needed > lb.size {
		return core.New(core.KindResourceExhaustion, "logbuffer.CopyChunkIn", core.ErrInvalidSize)
	}

	if needed > lb.sizeToEnd {
		lb.evictRange(lb.writePos, lb.size)
		if lb.sizeToEnd > 0 {
			putPaddingHeader(lb.buf[lb.writePos:lb.writePos+RecordHeaderSize], uint16(lb.sizeToEnd-RecordHeaderSize))
		}
		lb.writePos = 0
		lb.sizeToEnd = lb.size
	}

	lb.evictRange(lb.writePos, lb.writePos+needed)

	hdr := lb.buf[lb.writePos : lb.writePos+RecordHeaderSize]
	putRecordHeader(hdr, uint32(producer), uint32(writer), uint32(chunk), uint16(len(payload)), flags, packetCount)
	copy(lb.buf[lb.writePos+RecordHeaderSize:lb.writePos+RecordHeaderSize+len(payload)], payload)

	key := core.ChunkKey{WriterKey: core.WriterKey{Producer: producer, Writer: writer}, Chunk: chunk}
	if _, existed := lb.index.get(key); existed {
		// Repeated ChunkID: the newer copy wins, the older is evicted
		// even though its bytes may not physically overlap this write.
		lb.stats.ChunksEvicted++
	}
	lb.index.insert(key, lb.writePos, len(payload), flags, packetCount)
	lb.stats.ChunksWritten++

	lb.writePos += needed
	lb.sizeToEnd -= needed
	if lb.sizeToEnd == 0 {
		lb.writePos = 0
		lb.sizeToEnd = lb.size
	}
	return nil
}

// evictRange removes from the index every live record whose on-disk byte
// span intersects [lo, hi).
func (lb *LogBuffer) evictRange(lo, hi int) {
	for key, e := range lb.index.byKey {
		start := e.offset
		end := e.offset + recordTotalSize(e.payloadSize)
		if start < hi && end > lo {
			lb.index.remove(key)
			lb.stats.ChunksEvicted++
		}
	}
}

// TryPatch overwrites 4 bytes within an already-committed chunk record's
// payload in place, per §4.2's try_patch contract.
func (lb *LogBuffer) TryPatch(producer core.ProducerID, writer core.WriterID, chunk core.ChunkID, offset int, patch [4]byte) error {
	key := core.ChunkKey{WriterKey: core.WriterKey{Producer: producer, Writer: writer}, Chunk: chunk}
	e, ok := lb.index.get(key)
	if !ok {
		lb.stats.PatchesRejected++
		return core.ErrNotPatchable
	}
	if offset < 0 || offset+4 > e.payloadSize {
		lb.stats.PatchesRejected++
		return core.ErrNotPatchable
	}
	dst := lb.buf[e.offset+RecordHeaderSize+offset : e.offset+RecordHeaderSize+offset+4]
	copy(dst, patch[:])
	lb.stats.PatchesApplied++
	return nil
}

// BeginRead snapshots a deterministic starting point for the next read
// pass across every writer sequence currently in the index.
func (lb *LogBuffer) BeginRead() {
	lb.reader.begin()
}

// ReadNextPacket returns the next complete, reassembled packet as an
// ordered list of non-owning byte slices into the buffer, or ErrEmpty if
// the current read pass has no more packets.
func (lb *LogBuffer) ReadNextPacket() ([][]byte, error) {
	return lb.reader.next()
}
