//go:build !linux

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

import "errors"

// ErrUnsupported is returned by CreateNamed and OpenNamed on platforms
// without a real shared-memory mapping. NewRegion, which only ever uses
// process memory, works everywhere.
var ErrUnsupported = errors.New("shmabi: named shared memory regions are not supported on this platform")

// CreateNamed is unsupported outside Linux; use NewRegion in tests and
// single-process callers instead.
func CreateNamed(name string, layout RegionLayout) (*Region, error) {
	return nil, ErrUnsupported
}

// OpenNamed is unsupported outside Linux.
func OpenNamed(name string) (*Region, error) {
	return nil, ErrUnsupported
}
