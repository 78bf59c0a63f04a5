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
	"fmt"
	"unsafe"
)

// Page is a view over one page's worth of region bytes: layout.Valid()
// equally sized chunks, each a ChunkHeader followed by its payload.
type Page struct {
	bytes  []byte
	layout PageLayout
}

// newPage wraps raw, a pageSize-length slice of region memory, as a Page
// cut according to layout. raw must already be sized and aligned by the
// Region that owns it; newPage performs no copying.
func newPage(raw []byte, layout PageLayout) (*Page, error) {
	if !layout.Valid() {
		return nil, fmt.Errorf("shmabi: invalid page layout %d", layout)
	}
	if _, err := ChunkCapacity(len(raw), layout); err != nil {
		return nil, err
	}
	return &Page{bytes: raw, layout: layout}, nil
}

// NumChunks returns how many chunks this page is cut into.
func (p *Page) NumChunks() int { return int(p.layout) }

// chunkSpan returns the header+payload byte range of chunk index.
func (p *Page) chunkSpan(index int) []byte {
	perChunk := len(p.bytes) / int(p.layout)
	start := chunkOffsetInPage(len(p.bytes), p.layout, index)
	return p.bytes[start : start+perChunk]
}

// Header returns the ChunkHeader for chunk index within the page. index
// must be in [0, NumChunks()); callers index it themselves because Page
// never tracks chunk identity, only geometry.
func (p *Page) Header(index int) *ChunkHeader {
	span := p.chunkSpan(index)
	return (*ChunkHeader)(unsafe.Pointer(&span[0]))
}

// Payload returns the payload bytes of chunk index, i.e. the portion of
// its span after the fixed ChunkHeaderSize-byte header.
func (p *Page) Payload(index int) []byte {
	span := p.chunkSpan(index)
	return span[ChunkHeaderSize:]
}
