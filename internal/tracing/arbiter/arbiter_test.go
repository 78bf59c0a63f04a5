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

package arbiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/shmabi"
)

func newTestRegion(t *testing.T, numPages int, layout shmabi.PageLayout) *shmabi.Region {
	t.Helper()
	r, err := shmabi.NewRegion(shmabi.RegionLayout{PageSize: shmabi.DefaultPageSize, NumPages: numPages, Layout: layout})
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return r
}

func TestGetNewChunkAssignsSequentialIDs(t *testing.T) {
	region := newTestRegion(t, 1, shmabi.Layout4Chunks)
	a := New(region)
	wk := core.WriterKey{Producer: 1, Writer: 1}

	var ids []core.ChunkID
	for i := 0; i < 4; i++ {
		c, err := a.GetNewChunk(wk, 0, 1)
		if err != nil {
			t.Fatalf("GetNewChunk %d: %v", i, err)
		}
		ids = append(ids, c.ChunkID)
		a.ReleaseChunk(c, 1, 0)
	}
	for i, id := range ids {
		if id != core.ChunkID(i) {
			t.Fatalf("chunk %d got ChunkID %d, want %d", i, id, i)
		}
	}
}

func TestGetNewChunkStallsWhenExhausted(t *testing.T) {
	region := newTestRegion(t, 1, shmabi.Layout2Chunks)
	a := New(region)
	wk := core.WriterKey{Producer: 1, Writer: 1}

	for i := 0; i < 2; i++ {
		if _, err := a.GetNewChunk(wk, 0, 1); err != nil {
			t.Fatalf("GetNewChunk %d: %v", i, err)
		}
		// Deliberately not released: both chunks stay being-written.
	}
	if _, err := a.GetNewChunk(wk, 0, 1); !core.Is(err, core.KindResourceExhaustion) {
		t.Fatalf("GetNewChunk on exhausted region: err = %v, want ResourceExhaustion", err)
	}
}

func TestGetNewChunkSkipsChunksBelowSizeHint(t *testing.T) {
	region := newTestRegion(t, 1, shmabi.Layout4Chunks)
	a := New(region)
	wk := core.WriterKey{Producer: 1, Writer: 1}
	capacity, err := shmabi.ChunkCapacity(shmabi.DefaultPageSize, shmabi.Layout4Chunks)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.GetNewChunk(wk, 0, capacity+1); !core.Is(err, core.KindResourceExhaustion) {
		t.Fatalf("GetNewChunk(sizeHint=capacity+1): err = %v, want ResourceExhaustion", err)
	}
	if _, err := a.GetNewChunk(wk, 0, capacity); err != nil {
		t.Fatalf("GetNewChunk(sizeHint=capacity): %v", err)
	}
}

func TestConcurrentWritersGetDistinctChunks(t *testing.T) {
	const numWriters = 8
	region := newTestRegion(t, 1, shmabi.Layout14Chunks)
	a := New(region)

	var mu sync.Mutex
	seen := make(map[ChunkLocation]bool)
	var wg sync.WaitGroup
	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(writer core.WriterID) {
			defer wg.Done()
			wk := core.WriterKey{Producer: 1, Writer: writer}
			c, err := a.GetNewChunk(wk, 0, 1)
			if err != nil {
				t.Errorf("writer %d: GetNewChunk: %v", writer, err)
				return
			}
			a.ReleaseChunk(c, 1, 0)
			mu.Lock()
			seen[c.loc] = true
			mu.Unlock()
		}(core.WriterID(w))
	}
	wg.Wait()
	if len(seen) != numWriters {
		t.Fatalf("distinct chunks acquired = %d, want %d", len(seen), numWriters)
	}
}

type collectingNotifier struct {
	mu    sync.Mutex
	calls [][]ChunkLocation
}

func (c *collectingNotifier) Notify(changed []ChunkLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, changed)
}

func (c *collectingNotifier) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, batch := range c.calls {
		n += len(batch)
	}
	return n
}

func TestRunBatchesNotificationsPerTick(t *testing.T) {
	region := newTestRegion(t, 1, shmabi.Layout4Chunks)
	a := New(region)
	wk := core.WriterKey{Producer: 1, Writer: 1}

	for i := 0; i < 3; i++ {
		c, err := a.GetNewChunk(wk, 0, 1)
		if err != nil {
			t.Fatalf("GetNewChunk %d: %v", i, err)
		}
		a.ReleaseChunk(c, 1, 0)
	}

	notifier := &collectingNotifier{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	a.Run(ctx, notifier, 5*time.Millisecond)

	if got := notifier.total(); got != 3 {
		t.Fatalf("notified chunk count = %d, want 3", got)
	}
}
