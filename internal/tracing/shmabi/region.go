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

// Region is the in-process view of one mapped shared-memory region: its
// header plus the fixed set of pages that follow it.
type Region struct {
	raw    []byte
	pages  []*Page
	closer func() error
}

// NewRegion builds a Region over freshly allocated, zeroed memory with the
// given layout and stamps its header. It never touches the filesystem;
// CreateNamed builds its Region over mapped memory instead. Unit tests and
// the single-process cmd/tracedctl call NewRegion directly to exercise the
// ABI without needing real shared memory.
func NewRegion(layout RegionLayout) (*Region, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	raw := make([]byte, layout.TotalSize())
	r, err := newRegionOver(raw, nil)
	if err != nil {
		return nil, err
	}
	r.header().SetMagic(RegionMagic)
	r.header().SetVersion(RegionVersion)
	r.header().SetPageSize(uint32(layout.PageSize))
	r.header().SetNumPages(uint32(layout.NumPages))
	r.header().SetLayout(layout.Layout)
	if err := r.slicePages(layout); err != nil {
		return nil, err
	}
	return r, nil
}

// newRegionOver wraps raw (which must already be sized as RegionHeaderSize
// + pageSize*numPages per its own header once stamped) as a Region. closer,
// if non-nil, is invoked by Close to release OS resources backing raw.
func newRegionOver(raw []byte, closer func() error) (*Region, error) {
	if len(raw) < RegionHeaderSize {
		return nil, fmt.Errorf("shmabi: region too small: %d bytes", len(raw))
	}
	return &Region{raw: raw, closer: closer}, nil
}

// openRegionOver wraps raw as a Region whose header is already stamped
// (the OpenNamed path: a producer attaching to a region the service
// created) and validates it before slicing out pages.
func openRegionOver(raw []byte, closer func() error) (*Region, error) {
	r, err := newRegionOver(raw, closer)
	if err != nil {
		return nil, err
	}
	if err := r.validateAndSlice(); err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}
	return r, nil
}

func (r *Region) header() *RegionHeader {
	return (*RegionHeader)(unsafe.Pointer(&r.raw[0]))
}

// Header returns the region's header.
func (r *Region) Header() *RegionHeader { return r.header() }

// validateAndSlice checks the header against RegionVersion and the raw
// buffer's actual length, then builds the Page slice. Called once after
// attaching to a region this process did not create.
func (r *Region) validateAndSlice() error {
	h := r.header()
	if !h.ValidMagic() {
		return fmt.Errorf("shmabi: bad region magic")
	}
	if h.Version() != RegionVersion {
		return fmt.Errorf("shmabi: unsupported region version %d", h.Version())
	}
	layout := RegionLayout{
		PageSize: int(h.PageSize()),
		NumPages: int(h.NumPages()),
		Layout:   h.Layout(),
	}
	if err := layout.Validate(); err != nil {
		return err
	}
	if len(r.raw) < layout.TotalSize() {
		return fmt.Errorf("shmabi: region buffer shorter than header declares: have %d want %d", len(r.raw), layout.TotalSize())
	}
	return r.slicePages(layout)
}

func (r *Region) slicePages(layout RegionLayout) error {
	pages := make([]*Page, layout.NumPages)
	for i := 0; i < layout.NumPages; i++ {
		start := RegionHeaderSize + i*layout.PageSize
		raw := r.raw[start : start+layout.PageSize]
		p, err := newPage(raw, layout.Layout)
		if err != nil {
			return err
		}
		pages[i] = p
	}
	r.pages = pages
	return nil
}

// NumPages returns the number of pages in the region.
func (r *Region) NumPages() int { return len(r.pages) }

// Page returns the i'th page of the region.
func (r *Region) Page(i int) *Page { return r.pages[i] }

// Close releases any OS resources backing the region. It is a no-op for
// regions built with NewRegion.
func (r *Region) Close() error {
	if r.closer == nil {
		return nil
	}
	closer := r.closer
	r.closer = nil
	return closer()
}
