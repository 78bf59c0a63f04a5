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

import "github.com/etsangsplk/perfetto/internal/tracing/core"

// entry is the index's view of one live chunk record: where it lives in
// the buffer and the metadata needed to patch or read it back, without
// re-parsing its on-disk header.
type entry struct {
	offset      int
	payloadSize int
	flags       uint8
	packetCount uint8
}

// chunkIndex maps (producer, writer, chunk id) to its live record, and
// separately keeps each writer sequence's live chunk ids in ascending
// (signed-modular) order so the reader can walk a sequence without
// re-sorting the whole index on every read pass.
type chunkIndex struct {
	byKey    map[core.ChunkKey]*entry
	sequence map[core.WriterKey][]core.ChunkID
}

func newChunkIndex() *chunkIndex {
	return &chunkIndex{
		byKey:    make(map[core.ChunkKey]*entry),
		sequence: make(map[core.WriterKey][]core.ChunkID),
	}
}

// insert adds or replaces the entry for key. A repeated ChunkID overwrites
// the map entry in place; any in-flight reassembly state that was reading
// through the old entry sees the replacement on its next index lookup.
func (idx *chunkIndex) insert(key core.ChunkKey, offset, payloadSize int, flags, packetCount uint8) *entry {
	e := &entry{offset: offset, payloadSize: payloadSize, flags: flags, packetCount: packetCount}
	if _, exists := idx.byKey[key]; !exists {
		idx.insertSequence(key.WriterKey, key.Chunk)
	}
	idx.byKey[key] = e
	return e
}

func (idx *chunkIndex) insertSequence(wk core.WriterKey, id core.ChunkID) {
	seq := idx.sequence[wk]
	i := 0
	for i < len(seq) && core.SequenceLess(seq[i], id) {
		i++
	}
	seq = append(seq, 0)
	copy(seq[i+1:], seq[i:])
	seq[i] = id
	idx.sequence[wk] = seq
}

func (idx *chunkIndex) removeSequence(wk core.WriterKey, id core.ChunkID) {
	seq := idx.sequence[wk]
	for i, c := range seq {
		if c == id {
			idx.sequence[wk] = append(seq[:i], seq[i+1:]...)
			return
		}
	}
}

// remove drops key from the index entirely (eviction by overwrite or by
// padding). It is a no-op if key is not present.
func (idx *chunkIndex) remove(key core.ChunkKey) {
	if _, ok := idx.byKey[key]; !ok {
		return
	}
	delete(idx.byKey, key)
	idx.removeSequence(key.WriterKey, key.Chunk)
}

func (idx *chunkIndex) get(key core.ChunkKey) (*entry, bool) {
	e, ok := idx.byKey[key]
	return e, ok
}

// writerKeys returns every writer sequence with at least one live chunk,
// in a stable order (ascending producer, then writer) so read passes are
// deterministic.
func (idx *chunkIndex) writerKeys() []core.WriterKey {
	keys := make([]core.WriterKey, 0, len(idx.sequence))
	for wk, seq := range idx.sequence {
		if len(seq) > 0 {
			keys = append(keys, wk)
		}
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && lessWriterKey(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func lessWriterKey(a, b core.WriterKey) bool {
	if a.Producer != b.Producer {
		return a.Producer < b.Producer
	}
	return a.Writer < b.Writer
}
