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

import "fmt"

const (
	// RegionMagic identifies a well-formed region at offset 0.
	RegionMagic = "PERFSHM\x00"

	// RegionVersion is the only ABI version this package understands.
	RegionVersion = uint32(1)

	// RegionHeaderSize is the size, in bytes, reserved for RegionHeader at
	// the start of every region, aligned to 64 bytes like the rest of the
	// ABI's structures.
	RegionHeaderSize = 64

	// ChunkHeaderSize is the fixed size of a ChunkHeader, aligned to 16
	// bytes so that payload areas also start 16-byte aligned.
	ChunkHeaderSize = 32

	// DefaultPageSize is the default page size: a power of two, typically
	// matching the host's VM page size.
	DefaultPageSize = 4096

	// MinPageSize is the smallest page size this ABI accepts; below this
	// no PageLayout leaves useful payload room in any chunk.
	MinPageSize = 512
)

// PageLayout is the per-page layout byte: how many equally sized chunks a
// page is subdivided into. Only these five values are legal, matching the
// production shared-memory ABI this design is modelled on.
type PageLayout uint8

const (
	Layout1Chunk   PageLayout = 1
	Layout2Chunks  PageLayout = 2
	Layout4Chunks  PageLayout = 4
	Layout7Chunks  PageLayout = 7
	Layout14Chunks PageLayout = 14
)

// Valid reports whether l is one of the five legal per-page chunk counts.
func (l PageLayout) Valid() bool {
	switch l {
	case Layout1Chunk, Layout2Chunks, Layout4Chunks, Layout7Chunks, Layout14Chunks:
		return true
	default:
		return false
	}
}

// ChunkCapacity returns the number of payload bytes available per chunk
// for a page of pageSize bytes cut according to layout, after the chunk
// header. It returns an error if pageSize/layout leave no room at all.
func ChunkCapacity(pageSize int, layout PageLayout) (int, error) {
	if !layout.Valid() {
		return 0, fmt.Errorf("shmabi: invalid page layout %d", layout)
	}
	if pageSize < MinPageSize {
		return 0, fmt.Errorf("shmabi: page size %d below minimum %d", pageSize, MinPageSize)
	}
	perChunk := pageSize / int(layout)
	payload := perChunk - ChunkHeaderSize
	if payload <= 0 {
		return 0, fmt.Errorf("shmabi: page size %d too small for layout %d", pageSize, layout)
	}
	return payload, nil
}

// RegionLayout describes the static geometry of a region: the size and
// number of its pages and their shared chunk layout.
type RegionLayout struct {
	PageSize int
	NumPages int
	Layout   PageLayout
}

// TotalSize returns the number of bytes a region with this layout occupies,
// including the region header.
func (rl RegionLayout) TotalSize() int {
	return RegionHeaderSize + rl.PageSize*rl.NumPages
}

// Validate checks that a RegionLayout is self-consistent.
func (rl RegionLayout) Validate() error {
	if rl.NumPages <= 0 {
		return fmt.Errorf("shmabi: region must have at least one page")
	}
	if _, err := ChunkCapacity(rl.PageSize, rl.Layout); err != nil {
		return err
	}
	return nil
}

// chunkOffsetInPage returns the byte offset of chunk index within a page of
// pageSize bytes cut according to layout.
func chunkOffsetInPage(pageSize int, layout PageLayout, index int) int {
	perChunk := pageSize / int(layout)
	return index * perChunk
}
