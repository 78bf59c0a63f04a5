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
	"sync"
	"sync/atomic"
	"time"
)

// sampleRSS and sampleFD are indirected through package-level variables so
// tests can substitute deterministic readings instead of this process's
// real resource usage.
var (
	sampleRSS = sampleRSSBytes
	sampleFD  = sampleFDCount
)

// Limits bounds the resources a Watchdog polls. A zero limit field means
// "no limit" for that resource, mirroring the original implementation's
// "if kb/percentage is 0, any existing limit is removed."
type Limits struct {
	// MaxRSSBytes is the limit on resident set size, averaged over
	// WindowSize polls.
	MaxRSSBytes uint64
	// MaxFDCount is the limit on open file descriptors, averaged over
	// WindowSize polls.
	MaxFDCount uint64
	// WindowSize is how many polls the moving average spans. Defaults to
	// 5 if zero.
	WindowSize int
	// PollInterval is how often the watchdog samples. Defaults to one
	// second if zero.
	PollInterval time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.WindowSize <= 0 {
		l.WindowSize = 5
	}
	if l.PollInterval <= 0 {
		l.PollInterval = time.Second
	}
	return l
}

// Watchdog polls this process's own resource usage on a ticker and reports
// whether a configured limit has been sustained over its averaging
// window. It does not crash the process itself; per §4.8 the service core
// consults Tripped() and refuses new work as a ResourceExhaustion instead.
type Watchdog struct {
	limits Limits

	rssWindow *windowedInterval
	fdWindow  *windowedInterval

	mu      sync.Mutex
	tripped atomic.Bool

	stop chan struct{}
	done chan struct{}
}

// New starts a Watchdog polling at limits.PollInterval until Stop is
// called.
func New(limits Limits) *Watchdog {
	limits = limits.withDefaults()
	w := &Watchdog{
		limits:    limits,
		rssWindow: newWindowedInterval(limits.WindowSize),
		fdWindow:  newWindowedInterval(limits.WindowSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

// Tripped reports whether the most recent poll found a windowed average
// exceeding its configured limit.
func (w *Watchdog) Tripped() bool {
	return w.tripped.Load()
}

// Stop halts polling. It is safe to call more than once.
func (w *Watchdog) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
	}
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.limits.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watchdog) poll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	tripped := false

	if w.limits.MaxRSSBytes > 0 {
		if rss, err := sampleRSS(); err == nil {
			if filled := w.rssWindow.push(rss); filled && w.rssWindow.mean() > w.limits.MaxRSSBytes {
				tripped = true
			}
		}
	}
	if w.limits.MaxFDCount > 0 {
		if fds, err := sampleFD(); err == nil {
			if filled := w.fdWindow.push(fds); filled && w.fdWindow.mean() > w.limits.MaxFDCount {
				tripped = true
			}
		}
	}

	w.tripped.Store(tripped)
}
