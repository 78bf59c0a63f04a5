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

package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the policy §7 attaches to it, not by its
// textual message. Callers branch on Kind, never on error strings.
type Kind uint8

const (
	// KindTransport covers IPC read/write failures: the endpoint is
	// disconnected and Disconnect propagates to higher layers.
	KindTransport Kind = iota
	// KindMalformedInput covers a bad varint, an illegal chunk state
	// transition, or an out-of-range patch: the offending unit (packet,
	// chunk, or message) is dropped, a stat is incremented, and
	// processing continues.
	KindMalformedInput
	// KindInvalidConfig rejects session creation and is reported to the
	// consumer.
	KindInvalidConfig
	// KindResourceExhaustion covers "no free chunk" and "LB full in
	// discard mode": a data-loss counter is recorded and the unit is
	// dropped.
	KindResourceExhaustion
	// KindDeadlineExceeded covers a flush timeout: the flush completes
	// with a Partial flag and the session continues.
	KindDeadlineExceeded
	// KindInternalInvariantViolation is fatal: the process aborts,
	// subject to the sanity-check suppression used in tests.
	KindInternalInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindMalformedInput:
		return "malformed-input"
	case KindInvalidConfig:
		return "invalid-config"
	case KindResourceExhaustion:
		return "resource-exhaustion"
	case KindDeadlineExceeded:
		return "deadline-exceeded"
	case KindInternalInvariantViolation:
		return "internal-invariant-violation"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying a Kind so that every layer — LB, SMA,
// arbiter, service, IPC — can apply §7's policy table without string
// matching.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "logbuffer.copyChunkIn"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Sentinels used where callers need to branch without constructing a
// full *Error (e.g. tight loops in the LB and SMA hot paths).
var (
	// ErrNotPatchable is returned by LB try_patch when the target chunk
	// record does not exist in the index, or the patch offset falls
	// outside the record's payload bounds.
	ErrNotPatchable = errors.New("logbuffer: chunk not patchable")
	// ErrInvalidSize is returned by LB create when the requested size is
	// not a multiple of the record alignment or too small to hold one
	// header.
	ErrInvalidSize = errors.New("logbuffer: invalid buffer size")
	// ErrEmpty is returned by LB read_next_packet when no more complete
	// packets remain in the current read pass.
	ErrEmpty = errors.New("logbuffer: no more packets")
	// ErrStall is returned by the arbiter when no free chunk matches the
	// request; the caller blocks or drops per session policy.
	ErrStall = errors.New("arbiter: no free chunk available")
	// ErrContended names a CAS transition that lost a race; it is not an
	// error, only a signal to retry or skip. shmabi's transitions report
	// contention as a false result and do not return this value.
	ErrContended = errors.New("shmabi: chunk acquisition contended")
)
