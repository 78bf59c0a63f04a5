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
	"bytes"
	"testing"

	"github.com/etsangsplk/perfetto/internal/tracing/arbiter"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/logbuffer"
	"github.com/etsangsplk/perfetto/internal/tracing/shmabi"
)

func newTestRegion(t *testing.T, pageSize, numPages int, layout shmabi.PageLayout) *shmabi.Region {
	t.Helper()
	r, err := shmabi.NewRegion(shmabi.RegionLayout{PageSize: pageSize, NumPages: numPages, Layout: layout})
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return r
}

// drainComplete copies every chunk currently in ChunkComplete state into lb,
// simulating the service core's "copy committed chunk, then free it" loop.
func drainComplete(region *shmabi.Region, producer core.ProducerID, lb *logbuffer.LogBuffer) int {
	n := 0
	for p := 0; p < region.NumPages(); p++ {
		page := region.Page(p)
		for c := 0; c < page.NumChunks(); c++ {
			hdr := page.Header(c)
			writer, chunk, _, packetCount, flags, ok := hdr.TryAcquireForRead()
			if !ok {
				continue
			}
			payload := page.Payload(c)
			if err := lb.CopyChunkIn(producer, writer, chunk, flags, uint8(packetCount), payload); err != nil {
				panic(err)
			}
			hdr.Release()
			n++
		}
	}
	return n
}

func TestSinglePacketRoundTrip(t *testing.T) {
	region := newTestRegion(t, 512, 4, shmabi.Layout4Chunks)
	arb := arbiter.New(region)
	wk := core.WriterKey{Producer: 1, Writer: 7}
	tw := New(arb, wk, 5, 1)

	body := bytes.Repeat([]byte{'A'}, 300) // spans several 96-byte chunk payloads
	h := tw.NewTracePacket()
	if _, err := h.Write(body); err != nil {
		t.Fatalf("Write: %v", err)
	}
	h.Close()
	tw.Flush()

	if got := tw.PendingPatches(); len(got) != 0 {
		t.Fatalf("PendingPatches = %d, want 0 (head chunk still uncommitted or complete-not-read)", len(got))
	}

	lb, err := logbuffer.Create(16384)
	if err != nil {
		t.Fatal(err)
	}
	if n := drainComplete(region, wk.Producer, lb); n == 0 {
		t.Fatal("drainComplete copied no chunks")
	}

	lb.BeginRead()
	pkt, err := lb.ReadNextPacket()
	if err != nil {
		t.Fatalf("ReadNextPacket: %v", err)
	}
	var got []byte
	for _, part := range pkt {
		got = append(got, part...)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("reassembled packet length %d, want %d", len(got), len(body))
	}
	if _, err := lb.ReadNextPacket(); err != core.ErrEmpty {
		t.Fatalf("second ReadNextPacket: err = %v, want ErrEmpty", err)
	}
}

func TestMultiplePacketsPreserveOrder(t *testing.T) {
	region := newTestRegion(t, 512, 4, shmabi.Layout4Chunks)
	arb := arbiter.New(region)
	wk := core.WriterKey{Producer: 1, Writer: 7}
	tw := New(arb, wk, 5, 1)

	bodies := [][]byte{
		bytes.Repeat([]byte{'a'}, 10),
		bytes.Repeat([]byte{'b'}, 40),
		bytes.Repeat([]byte{'c'}, 5),
	}
	for _, b := range bodies {
		h := tw.NewTracePacket()
		h.Write(b)
		h.Close()
	}
	tw.Flush()

	lb, err := logbuffer.Create(16384)
	if err != nil {
		t.Fatal(err)
	}
	drainComplete(region, wk.Producer, lb)

	lb.BeginRead()
	for i, want := range bodies {
		pkt, err := lb.ReadNextPacket()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		var got []byte
		for _, part := range pkt {
			got = append(got, part...)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("packet %d = %q, want %q", i, got, want)
		}
	}
}

// TestDeferredPatchWhenHeadChunkAlreadyClaimed forces the race window a
// rollover leaves open: it commits the old chunk before patching that
// chunk's own fragment length, so the service can start draining it
// immediately. testBeforePatch fires in exactly that window to simulate
// the service claiming the chunk first.
func TestDeferredPatchWhenHeadChunkAlreadyClaimed(t *testing.T) {
	region := newTestRegion(t, 512, 2, shmabi.Layout4Chunks)
	arb := arbiter.New(region)
	wk := core.WriterKey{Producer: 1, Writer: 3}
	tw := New(arb, wk, 5, 1)

	tw.testBeforePatch = func() {
		tw.testBeforePatch = nil // only the first rollover races
		for p := 0; p < region.NumPages(); p++ {
			page := region.Page(p)
			for c := 0; c < page.NumChunks(); c++ {
				hdr := page.Header(c)
				if hdr.State() == shmabi.ChunkComplete {
					hdr.TryAcquireForRead()
					return
				}
			}
		}
		t.Fatal("expected a freshly committed chunk to claim")
	}

	body := bytes.Repeat([]byte{'z'}, 150) // forces fragmentation, committing the head chunk
	h := tw.NewTracePacket()
	h.Write(body)
	h.Close()

	patches := tw.PendingPatches()
	if len(patches) != 1 {
		t.Fatalf("PendingPatches = %d, want 1", len(patches))
	}
	if patches[0].Writer != wk || patches[0].Chunk != 0 {
		t.Fatalf("patch = %+v, want writer %v chunk 0", patches[0], wk)
	}
}
