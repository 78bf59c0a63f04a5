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
	"bytes"
	"sync/atomic"
)

// RegionHeader is the fixed 64-byte header at offset 0 of every region. All
// fields after magic/version are accessed through atomic load/store pairs
// because the producer and the service map the same region independently
// and neither is allowed to take a lock on the other's behalf.
type RegionHeader struct {
	magic     [8]byte
	version   uint32
	pageSize  uint32
	numPages  uint32
	layout    uint32
	doorbell  uint32 // futex word: incremented on every commit batch
	closed    uint32 // 0 = open, 1 = service has torn the region down
	reserved  uint32
	reserved2 uint32
	reserved3 [24]byte
}

// Magic returns the region's magic bytes.
func (h *RegionHeader) Magic() [8]byte {
	var m [8]byte
	copy(m[:], h.magic[:])
	return m
}

// SetMagic stamps the region's magic bytes. Callers pass RegionMagic.
func (h *RegionHeader) SetMagic(magic string) {
	copy(h.magic[:], magic)
}

// ValidMagic reports whether the header's magic matches RegionMagic.
func (h *RegionHeader) ValidMagic() bool {
	return bytes.Equal(h.magic[:], []byte(RegionMagic))
}

// Version returns the region's ABI version.
func (h *RegionHeader) Version() uint32 { return atomic.LoadUint32(&h.version) }

// SetVersion sets the region's ABI version.
func (h *RegionHeader) SetVersion(v uint32) { atomic.StoreUint32(&h.version, v) }

// PageSize returns the byte size of every page in the region.
func (h *RegionHeader) PageSize() uint32 { return atomic.LoadUint32(&h.pageSize) }

// SetPageSize sets the byte size of every page in the region.
func (h *RegionHeader) SetPageSize(v uint32) { atomic.StoreUint32(&h.pageSize, v) }

// NumPages returns the number of pages in the region.
func (h *RegionHeader) NumPages() uint32 { return atomic.LoadUint32(&h.numPages) }

// SetNumPages sets the number of pages in the region.
func (h *RegionHeader) SetNumPages(v uint32) { atomic.StoreUint32(&h.numPages, v) }

// Layout returns the PageLayout shared by every page in the region.
func (h *RegionHeader) Layout() PageLayout { return PageLayout(atomic.LoadUint32(&h.layout)) }

// SetLayout sets the PageLayout shared by every page in the region.
func (h *RegionHeader) SetLayout(l PageLayout) { atomic.StoreUint32(&h.layout, uint32(l)) }

// Doorbell returns the current value of the commit-notification futex word.
func (h *RegionHeader) Doorbell() uint32 { return atomic.LoadUint32(&h.doorbell) }

// RingDoorbell increments the doorbell word and returns its new value; the
// arbiter calls this once per notification batch (§5: "batched, not
// per-chunk") and then futex-wakes one waiter blocked on the old value.
func (h *RegionHeader) RingDoorbell() uint32 { return atomic.AddUint32(&h.doorbell, 1) }

// Closed reports whether the service has torn the region down.
func (h *RegionHeader) Closed() bool { return atomic.LoadUint32(&h.closed) != 0 }

// SetClosed records whether the region has been torn down. It only sets the
// flag: the arbiter and the trace writer do not consult Closed, and keep
// acquiring chunks and writing to a closed region.
func (h *RegionHeader) SetClosed(closed bool) {
	var v uint32
	if closed {
		v = 1
	}
	atomic.StoreUint32(&h.closed, v)
}
