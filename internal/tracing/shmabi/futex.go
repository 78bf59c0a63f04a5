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

// ErrFutexTimeout is returned by futexWaitTimeout when the wait times out
// before the doorbell word changes.
var ErrFutexTimeout = errors.New("shmabi: futex wait timed out")

// Wait blocks the calling goroutine until the region's doorbell word no
// longer equals val, or until timeoutNs nanoseconds elapse (timeoutNs <= 0
// means wait indefinitely). It is used by consumer-side code that wants to
// sleep until the arbiter's next batched commit notification instead of
// polling (§5: "consumer wakeups are batched, not per-chunk").
//
// Callers must re-check their actual wakeup condition after Wait returns:
// spurious wakeups are possible and expected.
func (h *RegionHeader) Wait(val uint32, timeoutNs int64) error {
	return futexWaitTimeout(&h.doorbell, val, timeoutNs)
}

// Wake wakes up to n goroutines blocked in Wait on this region's doorbell
// word and returns how many were actually woken.
func (h *RegionHeader) Wake(n int) (int, error) {
	return futexWake(&h.doorbell, n)
}
