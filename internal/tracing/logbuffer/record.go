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

import "encoding/binary"

const (
	// RecordHeaderSize is the fixed size, in bytes, of a chunk record's
	// on-disk header: producer (4), writer (4), chunk id (4), payload
	// size (2), flags (1), packet count (1), padding to 16.
	RecordHeaderSize = 16

	// RecordAlignment is the byte alignment every chunk record (live or
	// padding) starts on and is padded up to.
	RecordAlignment = 16
)

// Flag bits stored in a chunk record header.
const (
	flagContinuesFromPrev uint8 = 1 << 0
	flagContinuesOnNext   uint8 = 1 << 1
	flagPadding           uint8 = 1 << 7
)

// alignUp rounds n up to the next multiple of align.
func alignUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

// putRecordHeader encodes a live chunk record's header into dst[:16].
func putRecordHeader(dst []byte, producer, writer, chunkID uint32, payloadSize uint16, flags uint8, packetCount uint8) {
	binary.LittleEndian.PutUint32(dst[0:4], producer)
	binary.LittleEndian.PutUint32(dst[4:8], writer)
	binary.LittleEndian.PutUint32(dst[8:12], chunkID)
	binary.LittleEndian.PutUint16(dst[12:14], payloadSize)
	dst[14] = flags
	dst[15] = packetCount
}

// putPaddingHeader encodes a padding record's header into dst[:16]; fillLen
// is the number of filler bytes following the header (may be zero).
func putPaddingHeader(dst []byte, fillLen uint16) {
	binary.LittleEndian.PutUint32(dst[0:4], 0)
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint32(dst[8:12], 0)
	binary.LittleEndian.PutUint16(dst[12:14], fillLen)
	dst[14] = flagPadding
	dst[15] = 0
}

// recordHeader is the decoded form of a 16-byte chunk record header.
type recordHeader struct {
	producer    uint32
	writer      uint32
	chunkID     uint32
	payloadSize uint16
	flags       uint8
	packetCount uint8
}

func (h recordHeader) isPadding() bool { return h.flags&flagPadding != 0 }

func readRecordHeader(src []byte) recordHeader {
	return recordHeader{
		producer:    binary.LittleEndian.Uint32(src[0:4]),
		writer:      binary.LittleEndian.Uint32(src[4:8]),
		chunkID:     binary.LittleEndian.Uint32(src[8:12]),
		payloadSize: binary.LittleEndian.Uint16(src[12:14]),
		flags:       src[14],
		packetCount: src[15],
	}
}
