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
	"encoding/binary"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

// seqState is one writer sequence's progress through a single read pass.
type seqState struct {
	wk     core.WriterKey
	chunks []core.ChunkID // snapshot, ascending signed-modular order
	idxPos int             // next index into chunks to load

	curPackets [][]byte // packets parsed from the chunk currently loaded
	curFlags  uint8
	curIdx    int // next unconsumed index into curPackets

	lastChunkID core.ChunkID
	pendingOK   bool     // a continues_on_next_chunk fragment is awaiting its continuation
	pending     [][]byte // fragments accumulated so far for the pending packet
}

// reassembler drives read_next_packet across every writer sequence in the
// buffer, joining continues_on_next_chunk/continues_from_prev_chunk
// fragment pairs and applying the malicious-input and gap-handling rules
// of §4.2.
type reassembler struct {
	lb     *LogBuffer
	seqs   []*seqState
	seqPos int
}

func newReassembler(lb *LogBuffer) *reassembler {
	return &reassembler{lb: lb}
}

// begin snapshots the current index into a fresh, deterministic read pass.
func (r *reassembler) begin() {
	wks := r.lb.index.writerKeys()
	seqs := make([]*seqState, 0, len(wks))
	for _, wk := range wks {
		chunks := append([]core.ChunkID(nil), r.lb.index.sequence[wk]...)
		seqs = append(seqs, &seqState{wk: wk, chunks: chunks})
	}
	r.seqs = seqs
	r.seqPos = 0
}

// next returns the next complete packet across all sequences, or
// core.ErrEmpty once the current pass is exhausted.
func (r *reassembler) next() ([][]byte, error) {
	for r.seqPos < len(r.seqs) {
		pkt, ok := r.drainSeq(r.seqs[r.seqPos])
		if ok {
			return pkt, nil
		}
		r.seqPos++
	}
	return nil, core.ErrEmpty
}

// drainSeq advances s until it produces one complete packet or runs out of
// live chunks for this read pass.
func (r *reassembler) drainSeq(s *seqState) ([][]byte, bool) {
	for {
		if s.curIdx >= len(s.curPackets) {
			if !r.loadNextChunk(s) {
				return nil, false
			}
			continue
		}

		pkt := s.curPackets[s.curIdx]
		isFirst := s.curIdx == 0
		isLast := s.curIdx == len(s.curPackets)-1
		s.curIdx++

		contFromPrev := isFirst && s.curFlags&flagContinuesFromPrev != 0
		contOnNext := isLast && s.curFlags&flagContinuesOnNext != 0

		if contFromPrev {
			if !s.pendingOK {
				// Orphaned fragment: no predecessor supplied the opening
				// bytes. Drop it silently; it can never be completed.
				r.lb.stats.PacketsDataLoss++
				continue
			}
			s.pending = append(s.pending, pkt)
			s.pendingOK = false
			if contOnNext {
				s.pendingOK = true
				continue
			}
			out := s.pending
			s.pending = nil
			r.lb.stats.PacketsEmitted++
			return out, true
		}

		if contOnNext {
			s.pending = [][]byte{pkt}
			s.pendingOK = true
			continue
		}

		r.lb.stats.PacketsEmitted++
		return [][]byte{pkt}, true
	}
}

// loadNextChunk advances s to the next live chunk in its snapshot,
// validating continuation contiguity and decoding its packets. It returns
// false once the sequence has no more chunks to offer this pass.
func (r *reassembler) loadNextChunk(s *seqState) bool {
	for {
		if s.idxPos >= len(s.chunks) {
			return false
		}
		chunkID := s.chunks[s.idxPos]
		s.idxPos++

		key := core.ChunkKey{WriterKey: s.wk, Chunk: chunkID}
		e, ok := r.lb.index.get(key)
		if !ok {
			// Evicted since the snapshot was taken (open question: newer
			// chunk won a repeated-id race and the old one we were
			// relying on is gone).
			r.dropPending(s)
			continue
		}

		if s.pendingOK {
			expected := core.NextChunkID(s.lastChunkID)
			if chunkID != expected || e.flags&flagContinuesFromPrev == 0 {
				r.dropPending(s)
			}
		}

		payload := r.lb.buf[e.offset+RecordHeaderSize : e.offset+RecordHeaderSize+e.payloadSize]
		packets, ok := decodePackets(payload, e.packetCount)
		if !ok {
			r.lb.stats.MalformedDiscarded++
			r.dropPending(s)
			continue
		}
		if len(packets) == 0 {
			// Empty chunk in the middle of a sequence breaks any pending
			// continuation.
			r.dropPending(s)
			continue
		}

		s.curPackets = packets
		s.curFlags = e.flags
		s.curIdx = 0
		s.lastChunkID = chunkID
		return true
	}
}

func (r *reassembler) dropPending(s *seqState) {
	if s.pendingOK {
		r.lb.stats.PacketsDataLoss++
		s.pendingOK = false
		s.pending = nil
	}
}

// decodePackets parses exactly count unsigned-varint-length-prefixed
// packets from the front of payload. A zero-length prefix, a malformed
// varint, or a length that overruns the payload invalidates the whole
// chunk (§3's "zero-length varint header is illegal" rule).
func decodePackets(payload []byte, count uint8) ([][]byte, bool) {
	packets := make([][]byte, 0, count)
	pos := 0
	for i := 0; i < int(count); i++ {
		if pos >= len(payload) {
			return nil, false
		}
		length, n := binary.Uvarint(payload[pos:])
		if n <= 0 || length == 0 {
			return nil, false
		}
		pos += n
		end := pos + int(length)
		if end > len(payload) {
			return nil, false
		}
		packets = append(packets, payload[pos:end])
		pos = end
	}
	return packets, true
}
