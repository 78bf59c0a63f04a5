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

package core

import "fmt"

// ProducerID names a connected producer for the lifetime of the service.
type ProducerID uint32

// WriterID names a single writer stream within a producer.
type WriterID uint32

// ChunkID sequences chunks within a (ProducerID, WriterID) pair. It wraps
// modulo 2^32 and must always be compared with SequenceGreater /
// SequenceLess, never with plain arithmetic, since producers run forever
// and are expected to wrap in long-lived sessions.
type ChunkID uint32

// BufferID names a log buffer within a session.
type BufferID uint32

// SessionID names a consumer's session for the lifetime of the service.
type SessionID uint64

// DataSourceID names a registered data source kind, scoped to one producer.
type DataSourceID uint32

// DataSourceInstanceID names one active instance of a data source, unique
// for the lifetime of the service.
type DataSourceInstanceID uint64

// WriterKey identifies a single writer sequence: the unit that ChunkID
// ordering and fragment stitching are scoped to.
type WriterKey struct {
	Producer ProducerID
	Writer   WriterID
}

func (k WriterKey) String() string {
	return fmt.Sprintf("P%d/W%d", k.Producer, k.Writer)
}

// ChunkKey identifies one chunk uniquely within the service: a writer
// sequence plus its position in that sequence.
type ChunkKey struct {
	WriterKey
	Chunk ChunkID
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s/C%d", k.WriterKey, k.Chunk)
}

// SequenceGreater reports whether a is strictly after b in the modular
// ChunkID space, using signed-difference comparison so that wrap-around is
// handled correctly as long as the two values are never more than 2^31
// apart (true for any realistic window of outstanding chunks).
func SequenceGreater(a, b ChunkID) bool {
	return int32(a-b) > 0
}

// SequenceGreaterOrEqual reports whether a is at or after b in the modular
// ChunkID space.
func SequenceGreaterOrEqual(a, b ChunkID) bool {
	return int32(a-b) >= 0
}

// SequenceLess reports whether a is strictly before b in the modular
// ChunkID space.
func SequenceLess(a, b ChunkID) bool {
	return int32(a-b) < 0
}

// NextChunkID returns the chunk id that follows id, wrapping at 2^32.
func NextChunkID(id ChunkID) ChunkID {
	return id + 1
}
