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
	"sync"
	"testing"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

func TestChunkCapacity(t *testing.T) {
	cases := []struct {
		pageSize int
		layout   PageLayout
		want     int
		wantErr  bool
	}{
		{4096, Layout4Chunks, 1024 - ChunkHeaderSize, false},
		{4096, Layout1Chunk, 4096 - ChunkHeaderSize, false},
		{4096, Layout14Chunks, 4096/14 - ChunkHeaderSize, false},
		{4096, 3, 0, true},  // invalid layout
		{100, Layout4Chunks, 0, true}, // below MinPageSize
	}
	for _, c := range cases {
		got, err := ChunkCapacity(c.pageSize, c.layout)
		if c.wantErr {
			if err == nil {
				t.Errorf("ChunkCapacity(%d, %d) = %d, nil; want error", c.pageSize, c.layout, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ChunkCapacity(%d, %d) error: %v", c.pageSize, c.layout, err)
		}
		if got != c.want {
			t.Errorf("ChunkCapacity(%d, %d) = %d, want %d", c.pageSize, c.layout, got, c.want)
		}
	}
}

func TestRegionLayoutValidate(t *testing.T) {
	good := RegionLayout{PageSize: 4096, NumPages: 4, Layout: Layout4Chunks}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() on good layout: %v", err)
	}
	bad := RegionLayout{PageSize: 4096, NumPages: 0, Layout: Layout4Chunks}
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate() on zero-page layout: want error, got nil")
	}
}

func newTestRegion(t *testing.T) *Region {
	t.Helper()
	r, err := NewRegion(RegionLayout{PageSize: 4096, NumPages: 2, Layout: Layout4Chunks})
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return r
}

func TestRegionHeaderRoundTrip(t *testing.T) {
	r := newTestRegion(t)
	h := r.Header()
	if !h.ValidMagic() {
		t.Fatalf("ValidMagic() = false after NewRegion")
	}
	if h.Version() != RegionVersion {
		t.Fatalf("Version() = %d, want %d", h.Version(), RegionVersion)
	}
	if h.PageSize() != 4096 || h.NumPages() != 2 || h.Layout() != Layout4Chunks {
		t.Fatalf("header geometry mismatch: pageSize=%d numPages=%d layout=%d", h.PageSize(), h.NumPages(), h.Layout())
	}
	if r.NumPages() != 2 {
		t.Fatalf("Region.NumPages() = %d, want 2", r.NumPages())
	}
	if got := r.Page(0).NumChunks(); got != 4 {
		t.Fatalf("Page(0).NumChunks() = %d, want 4", got)
	}
}

func TestChunkHeaderLifecycle(t *testing.T) {
	r := newTestRegion(t)
	ch := r.Page(0).Header(0)

	if ch.State() != ChunkFree {
		t.Fatalf("fresh chunk state = %s, want free", ch.State())
	}
	if !ch.TryAcquireChunk() {
		t.Fatalf("TryAcquireChunk() on free chunk = false")
	}
	if ch.State() != ChunkBeingWritten {
		t.Fatalf("state after acquire = %s, want being-written", ch.State())
	}
	if ch.TryAcquireChunk() {
		t.Fatalf("TryAcquireChunk() on already-acquired chunk = true, want false")
	}

	payload := r.Page(0).Payload(0)
	copy(payload, []byte("hello"))
	ch.Commit(core.WriterID(7), core.ChunkID(42), core.BufferID(1), 1, FlagContinuesOnNextChunk)
	if ch.State() != ChunkComplete {
		t.Fatalf("state after Commit = %s, want complete", ch.State())
	}

	writer, chunk, target, count, flags, ok := ch.TryAcquireForRead()
	if !ok {
		t.Fatalf("TryAcquireForRead() on complete chunk = false")
	}
	if writer != 7 || chunk != 42 || target != 1 || count != 1 || flags != FlagContinuesOnNextChunk {
		t.Fatalf("TryAcquireForRead() = (%d,%d,%d,%d,%d), want (7,42,1,1,%d)", writer, chunk, target, count, flags, FlagContinuesOnNextChunk)
	}
	if ch.State() != ChunkBeingRead {
		t.Fatalf("state after TryAcquireForRead = %s, want being-read", ch.State())
	}
	if _, _, _, _, _, ok := ch.TryAcquireForRead(); ok {
		t.Fatalf("second TryAcquireForRead() on being-read chunk = true, want false")
	}

	ch.Release()
	if ch.State() != ChunkFree {
		t.Fatalf("state after Release = %s, want free", ch.State())
	}
}

// TestChunkAcquisitionIsExclusiveUnderContention exercises the CAS loop
// the arbiter relies on: of N goroutines racing TryAcquireChunk on the
// same chunk, exactly one must win.
func TestChunkAcquisitionIsExclusiveUnderContention(t *testing.T) {
	r := newTestRegion(t)
	ch := r.Page(0).Header(0)

	const n = 64
	var wg sync.WaitGroup
	var wins int32
	var mu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if ch.TryAcquireChunk() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

func TestChunkStateString(t *testing.T) {
	if ChunkFree.String() != "free" || ChunkBeingWritten.String() != "being-written" ||
		ChunkComplete.String() != "complete" || ChunkBeingRead.String() != "being-read" {
		t.Fatalf("unexpected ChunkState.String() values")
	}
}

func TestRegionHeaderDoorbell(t *testing.T) {
	r := newTestRegion(t)
	h := r.Header()
	if h.Doorbell() != 0 {
		t.Fatalf("fresh doorbell = %d, want 0", h.Doorbell())
	}
	v := h.RingDoorbell()
	if v != 1 || h.Doorbell() != 1 {
		t.Fatalf("RingDoorbell() = %d, Doorbell() = %d, want both 1", v, h.Doorbell())
	}
}

func TestRegionHeaderClosed(t *testing.T) {
	r := newTestRegion(t)
	h := r.Header()
	if h.Closed() {
		t.Fatalf("fresh region Closed() = true")
	}
	h.SetClosed(true)
	if !h.Closed() {
		t.Fatalf("Closed() = false after SetClosed(true)")
	}
}
