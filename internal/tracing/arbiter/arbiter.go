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
	"sync"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/shmabi"
)

// ChunkLocation names a chunk by its position in the region, the
// granularity the batched notification bitmap is built from.
type ChunkLocation struct {
	Page  int
	Chunk int
}

// ChunkCursor is a writable handle to a chunk a writer has acquired from
// the arbiter. Its Payload is the writer's alone until Arbiter.ReleaseChunk
// is called; after that the service may claim the chunk for reading at any
// time, and State lets the holder check whether it has done so before
// writing to the payload again.
type ChunkCursor struct {
	loc     ChunkLocation
	header  *shmabi.ChunkHeader
	Payload []byte

	Writer       core.WriterKey
	ChunkID      core.ChunkID
	TargetBuffer core.BufferID
}

// Arbiter hands out free chunks from a shmabi Region to writers within one
// producer process, and batches their commits into a single notification
// per tick instead of signalling the service on every chunk.
type Arbiter struct {
	region *shmabi.Region

	mu          sync.Mutex
	nextChunkID map[core.WriterKey]core.ChunkID
	pending     []ChunkLocation
}

// New builds an Arbiter over region. One Arbiter serves every WriterID of
// one producer connection.
func New(region *shmabi.Region) *Arbiter {
	return &Arbiter{
		region:      region,
		nextChunkID: make(map[core.WriterKey]core.ChunkID),
	}
}

// GetNewChunk implements §4.3's get_new_chunk: it scans the region for the
// first page whose layout yields a chunk of at least sizeHint payload
// bytes and whose state allows acquisition, and hands back a writable
// cursor over it. If every candidate chunk is currently owned by the
// service or another writer, it returns core.ErrStall and the caller
// blocks or drops per session policy.
func (a *Arbiter) GetNewChunk(writer core.WriterKey, target core.BufferID, sizeHint int) (*ChunkCursor, error) {
	for pageIdx := 0; pageIdx < a.region.NumPages(); pageIdx++ {
		page := a.region.Page(pageIdx)
		for chunkIdx := 0; chunkIdx < page.NumChunks(); chunkIdx++ {
			payload := page.Payload(chunkIdx)
			if len(payload) < sizeHint {
				continue
			}
			hdr := page.Header(chunkIdx)
			if !hdr.TryAcquireChunk() {
				continue
			}
			return &ChunkCursor{
				loc:          ChunkLocation{Page: pageIdx, Chunk: chunkIdx},
				header:       hdr,
				Payload:      payload,
				Writer:       writer,
				ChunkID:      a.allocChunkID(writer),
				TargetBuffer: target,
			}, nil
		}
	}
	return nil, core.New(core.KindResourceExhaustion, "arbiter.GetNewChunk", core.ErrStall)
}

// allocChunkID returns the next ChunkID for writer, per (producer, writer)
// as §4.3 requires, wrapping modulo the ChunkID space like any other
// sequence number in this design.
func (a *Arbiter) allocChunkID(writer core.WriterKey) core.ChunkID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextChunkID[writer]
	a.nextChunkID[writer] = core.NextChunkID(id)
	return id
}

// ReleaseChunk implements §4.3's release_chunk: it writes the committed
// header fields via the being-written->complete CAS and queues the chunk's
// location for the next batched notification tick.
func (a *Arbiter) ReleaseChunk(cursor *ChunkCursor, packetCount uint16, flags uint8) {
	cursor.header.Commit(cursor.Writer.Writer, cursor.ChunkID, cursor.TargetBuffer, packetCount, flags)
	a.mu.Lock()
	a.pending = append(a.pending, cursor.loc)
	a.mu.Unlock()
}

// State returns the cursor's chunk's current ownership state, letting a
// caller holding a cursor past ReleaseChunk check whether the service has
// already claimed the chunk for reading before attempting a direct patch.
func (c *ChunkCursor) State() shmabi.ChunkState { return c.header.State() }

// drainPending returns and clears the chunk locations queued since the
// last drain. Called once per tick by Run.
func (a *Arbiter) drainPending() []ChunkLocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return nil
	}
	out := a.pending
	a.pending = nil
	return out
}
