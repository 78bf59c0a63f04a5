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

package watchdog

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWindowedIntervalMean(t *testing.T) {
	w := newWindowedInterval(3)
	for _, v := range []uint64{10, 20, 30} {
		if filled := w.push(v); v == 30 && !filled {
			t.Fatal("expected buffer to report filled on its third push")
		}
	}
	if got := w.mean(); got != 20 {
		t.Fatalf("mean = %d, want 20", got)
	}
}

func TestWindowedIntervalNotFilledBeforeFull(t *testing.T) {
	w := newWindowedInterval(3)
	if filled := w.push(5); filled {
		t.Fatal("expected buffer to report not filled after only one push")
	}
}

func TestWindowedIntervalClear(t *testing.T) {
	w := newWindowedInterval(2)
	w.push(100)
	w.push(200)
	w.clear()
	if w.filled {
		t.Fatal("expected filled to reset to false")
	}
	if got := w.mean(); got != 0 {
		t.Fatalf("mean after clear = %d, want 0", got)
	}
}

func TestWatchdogTripsWhenWindowedRSSExceedsLimit(t *testing.T) {
	var level atomic.Uint64
	level.Store(100)
	origRSS, origFD := sampleRSS, sampleFD
	sampleRSS = func() (uint64, error) { return level.Load(), nil }
	sampleFD = func() (uint64, error) { return 0, nil }
	defer func() { sampleRSS, sampleFD = origRSS, origFD }()

	w := New(Limits{MaxRSSBytes: 500, WindowSize: 2, PollInterval: 5 * time.Millisecond})
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	if w.Tripped() {
		t.Fatal("watchdog tripped before RSS exceeded its limit")
	}

	level.Store(10_000)
	deadline := time.After(500 * time.Millisecond)
	for !w.Tripped() {
		select {
		case <-deadline:
			t.Fatal("watchdog never tripped after RSS exceeded its limit")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWatchdogNeverTripsWithZeroLimits(t *testing.T) {
	origRSS := sampleRSS
	sampleRSS = func() (uint64, error) { return 1 << 40, nil }
	defer func() { sampleRSS = origRSS }()

	w := New(Limits{PollInterval: 5 * time.Millisecond})
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	if w.Tripped() {
		t.Fatal("watchdog tripped with no limit configured")
	}
}
