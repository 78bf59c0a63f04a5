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
	"sync/atomic"
	"syscall"
	"unsafe"
)

const (
	futexWaitPrivate = 128 // FUTEX_WAIT | FUTEX_PRIVATE_FLAG
	futexWakePrivate = 129 // FUTEX_WAKE | FUTEX_PRIVATE_FLAG
)

// futexWaitTimeout waits on addr until its value changes from val or
// timeoutNs nanoseconds elapse. timeoutNs <= 0 means wait indefinitely.
//
// The value is re-checked atomically immediately before entering the
// syscall so a wake that lands between the caller's snapshot and this call
// is never lost.
func futexWaitTimeout(addr *uint32, val uint32, timeoutNs int64) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	var tsPtr uintptr
	var ts syscall.Timespec
	if timeoutNs > 0 {
		ts.Sec = timeoutNs / 1e9
		ts.Nsec = timeoutNs % 1e9
		tsPtr = uintptr(unsafe.Pointer(&ts))
	}

	_, _, errno := syscall.RawSyscall6(
		syscall.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitPrivate,
		uintptr(val),
		tsPtr,
		0,
		0,
	)

	if errno != 0 {
		switch errno {
		case syscall.EAGAIN, syscall.EINTR:
			return nil
		case syscall.ETIMEDOUT:
			return ErrFutexTimeout
		default:
			return fmt.Errorf("shmabi: futex wait failed: %w", errno)
		}
	}
	return nil
}

// futexWake wakes up to n goroutines blocked in futexWaitTimeout on addr.
func futexWake(addr *uint32, n int) (int, error) {
	r1, _, errno := syscall.RawSyscall6(
		syscall.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakePrivate,
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("shmabi: futex wake failed: %w", errno)
	}
	return int(r1), nil
}
