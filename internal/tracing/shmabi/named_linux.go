//go:build linux

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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func shmPath(name string) string {
	return filepath.Join("/dev/shm", "perfetto_"+name)
}

// CreateNamed creates a new named shared-memory region backed by a file
// under /dev/shm, sized and stamped per layout. The returned Region's
// Close removes the backing file; a second producer process attaches to
// the same bytes via OpenNamed before that happens.
func CreateNamed(name string, layout RegionLayout) (*Region, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	path := shmPath(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("shmabi: create %s: %w", path, err)
	}
	size := int64(layout.TotalSize())
	if err := file.Truncate(size); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmabi: truncate %s: %w", path, err)
	}
	raw, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shmabi: mmap %s: %w", path, err)
	}
	closer := func() error {
		err1 := unix.Munmap(raw)
		err2 := file.Close()
		err3 := os.Remove(path)
		if err1 != nil {
			return err1
		}
		if err2 != nil {
			return err2
		}
		return err3
	}
	r, err := newRegionOver(raw, closer)
	if err != nil {
		closer()
		return nil, err
	}
	h := r.header()
	h.SetMagic(RegionMagic)
	h.SetVersion(RegionVersion)
	h.SetPageSize(uint32(layout.PageSize))
	h.SetNumPages(uint32(layout.NumPages))
	h.SetLayout(layout.Layout)
	if err := r.slicePages(layout); err != nil {
		closer()
		return nil, err
	}
	return r, nil
}

// OpenNamed attaches to an existing named shared-memory region previously
// created by CreateNamed (in this or another process). Close on the
// returned Region only unmaps and closes the fd; it does not remove the
// backing file, since the creator owns that.
func OpenNamed(name string) (*Region, error) {
	path := shmPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shmabi: open %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmabi: stat %s: %w", path, err)
	}
	size := info.Size()
	if size < RegionHeaderSize {
		file.Close()
		return nil, fmt.Errorf("shmabi: region file %s too small: %d bytes", path, size)
	}
	raw, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shmabi: mmap %s: %w", path, err)
	}
	closer := func() error {
		err1 := unix.Munmap(raw)
		err2 := file.Close()
		if err1 != nil {
			return err1
		}
		return err2
	}
	return openRegionOver(raw, closer)
}
