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

import (
	"runtime"

	"github.com/etsangsplk/perfetto/internal/tracing/arbiter"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/shmabi"
)

// TraceWriter is the scoped packet-framing facade of §4.4, bound to one
// WriterID. It is driven by exactly one goroutine.
//
// Every chunk a packet touches gets its own varint length prefix covering
// just the bytes of that packet stored in that chunk (not the packet's
// total reassembled size): logbuffer's reassembler joins fragments by
// concatenating these per-chunk blobs across a continues_on_next_chunk /
// continues_from_prev_chunk boundary, so there is nothing elsewhere that
// records a whole-packet length.
type TraceWriter struct {
	arb           *arbiter.Arbiter
	writer        core.WriterKey
	target        core.BufferID
	chunkSizeHint int

	cur            *arbiter.ChunkCursor
	pos            int // next free byte offset into cur.Payload
	packetsInChunk uint16
	continuesFromPrev bool

	open    *PacketHandle
	pending []Patch

	// testBeforePatch, when non-nil, runs after a rollover commits the old
	// chunk but before it patches that chunk's fragment length. Tests use
	// it to force the race where the service claims the chunk for reading
	// in that window; production code never sets it.
	testBeforePatch func()
}

// New builds a TraceWriter that pulls chunks from arb for writer, directing
// committed chunks at target, and sizing new-chunk requests with
// chunkSizeHint payload bytes (the arbiter treats this as a minimum, not an
// exact match).
func New(arb *arbiter.Arbiter, writer core.WriterKey, target core.BufferID, chunkSizeHint int) *TraceWriter {
	return &TraceWriter{arb: arb, writer: writer, target: target, chunkSizeHint: chunkSizeHint}
}

// PacketHandle is the scoped handle returned by NewTracePacket. Callers
// append packet bytes with Write and must call Close exactly once to
// finalize the current fragment's length prefix.
type PacketHandle struct {
	tw *TraceWriter

	fragCursor *arbiter.ChunkCursor
	fragOffset int
	fragBytes  int
	closed     bool
}

// NewTracePacket begins a new packet and reserves its first fragment's
// length-prefix slot. Per §4.4's ordering contract, packets from one writer
// appear in the LB in the order this is called; the previous handle must
// already be closed.
func (tw *TraceWriter) NewTracePacket() *PacketHandle {
	core.Check(tw.open == nil, "tracewriter: NewTracePacket called with a packet still open")
	h := &PacketHandle{tw: tw}
	tw.open = h
	tw.beginFragment(h, false)
	return h
}

// Write appends p to the packet's current fragment, finalizing and
// committing the owning chunk and opening a fresh fragment each time the
// chunk fills, per §4.4.
func (h *PacketHandle) Write(p []byte) (int, error) {
	core.Check(!h.closed, "tracewriter: Write on a closed PacketHandle")
	total := len(p)
	for len(p) > 0 {
		room := len(h.tw.cur.Payload) - h.tw.pos
		if room <= 0 {
			h.rollover()
			continue
		}
		n := room
		if n > len(p) {
			n = len(p)
		}
		copy(h.tw.cur.Payload[h.tw.pos:], p[:n])
		h.tw.pos += n
		h.fragBytes += n
		p = p[n:]
	}
	return total, nil
}

// rollover finalizes the fragment held by the chunk currently filling up,
// commits that chunk (continues_on_next_chunk set), and opens the next
// fragment in a freshly acquired chunk (continues_from_prev_chunk set).
//
// The finalize-then-commit-then-patch ordering below commits the old
// chunk before its fragment length is actually written into its payload,
// so the service can start draining it without waiting on the patch. If
// the service claims the chunk first, PacketHandle.tw.pending records the
// patch for the log buffer's own try_patch path to apply once the chunk
// has been copied there (§4.4, §4.2).
func (h *PacketHandle) rollover() {
	oldCursor := h.fragCursor
	oldOffset := h.fragOffset
	oldBytes := h.fragBytes

	h.tw.commitCurrent(true)
	if h.tw.testBeforePatch != nil {
		h.tw.testBeforePatch()
	}
	h.tw.applyFragmentPatch(oldCursor, oldOffset, oldBytes)

	h.tw.acquireChunk(true)
	h.tw.beginFragment(h, true)
}

// beginFragment reserves the next fragment's length-prefix slot in the
// writer's current chunk, acquiring a new one first if none is held or the
// held one has no room even for the prefix.
func (tw *TraceWriter) beginFragment(h *PacketHandle, continuesFromPrev bool) {
	if tw.cur == nil || len(tw.cur.Payload)-tw.pos < lengthPrefixSize {
		if tw.cur != nil {
			tw.commitCurrent(false)
		}
		tw.acquireChunk(continuesFromPrev)
	}
	h.fragCursor = tw.cur
	h.fragOffset = tw.pos
	tw.pos += lengthPrefixSize
	h.fragBytes = 0
	tw.packetsInChunk++
}

// Close finalizes the packet's final fragment. The owning chunk is still
// open under this writer's exclusive ownership at this point (it is only
// committed later, by a subsequent rollover or by Flush), so the length
// prefix is always written in place directly.
func (h *PacketHandle) Close() {
	core.Check(!h.closed, "tracewriter: Close called twice on a PacketHandle")
	h.closed = true
	h.tw.open = nil

	var prefix [lengthPrefixSize]byte
	putRedundantVarint(prefix[:], uint64(h.fragBytes), lengthPrefixSize)
	copy(h.fragCursor.Payload[h.fragOffset:h.fragOffset+lengthPrefixSize], prefix[:])
}

// applyFragmentPatch writes length into cursor's reserved slot at offset if
// the chunk is still safe for the producer to touch directly (still being
// written, or committed but not yet claimed by the service), or queues it
// as a deferred Patch otherwise.
func (tw *TraceWriter) applyFragmentPatch(cursor *arbiter.ChunkCursor, offset, length int) {
	var prefix [lengthPrefixSize]byte
	putRedundantVarint(prefix[:], uint64(length), lengthPrefixSize)

	switch cursor.State() {
	case shmabi.ChunkBeingWritten, shmabi.ChunkComplete:
		copy(cursor.Payload[offset:offset+lengthPrefixSize], prefix[:])
	default:
		tw.pending = append(tw.pending, Patch{
			Writer: tw.writer,
			Chunk:  cursor.ChunkID,
			Offset: offset,
			Value:  prefix,
		})
	}
}

// Flush commits whatever chunk is currently held, if any, without
// acquiring a replacement. It must only be called between packets (no
// handle open); the service will copy the committed chunk into its LB the
// next time it drains the arbiter's notification.
func (tw *TraceWriter) Flush() {
	core.Check(tw.open == nil, "tracewriter: Flush called with a packet still open")
	if tw.cur == nil {
		return
	}
	tw.commitCurrent(false)
	tw.cur = nil
}

func (tw *TraceWriter) commitCurrent(continuesOnNext bool) {
	flags := uint8(0)
	if tw.continuesFromPrev {
		flags |= shmabi.FlagContinuesFromPrevChunk
	}
	if continuesOnNext {
		flags |= shmabi.FlagContinuesOnNextChunk
	}
	tw.arb.ReleaseChunk(tw.cur, tw.packetsInChunk, flags)
}

func (tw *TraceWriter) acquireChunk(continuesFromPrev bool) {
	for {
		c, err := tw.arb.GetNewChunk(tw.writer, tw.target, tw.chunkSizeHint)
		if err == nil {
			tw.cur = c
			tw.pos = 0
			tw.packetsInChunk = 0
			tw.continuesFromPrev = continuesFromPrev
			return
		}
		// Stall: no free chunk for this target buffer. §5 leaves the
		// choice of blocking vs. dropping to session policy; this facade
		// blocks the calling writer thread by spinning on the arbiter,
		// which is itself driven by the service's batched chunk releases.
		if !core.Is(err, core.KindResourceExhaustion) {
			core.Check(false, "tracewriter: unexpected GetNewChunk error: %v", err)
		}
		runtime.Gosched()
	}
}
