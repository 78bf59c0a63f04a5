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

// Package shmabi implements the Shared Memory ABI: the fixed binary layout
// of the producer/service shared region (§3, §4.1 of the design spec).
//
// A region is a flat byte slice, mmap'd from a file under /dev/shm on Linux
// or plain heap memory when real OS-level sharing is unavailable, laid out
// as a RegionHeader followed by a fixed number of fixed-size pages. Each
// page is subdivided into 1, 2, 4, 7 or 14 chunks according to its
// PageLayout. Every chunk carries a ChunkHeader whose two-bit state field
// is the sole synchronisation point between the producer that owns the
// region and the service that reads it: free -> being-written (producer),
// being-written -> complete (producer, release), complete -> being-read
// (service, acquire), being-read -> free (service). No other field in a
// chunk header is safe to read until its state has been observed as
// complete or being-read; shmabi only exposes predicates and CAS
// transitions, never higher-level packet semantics (that is logbuffer's
// job).
package shmabi
