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

// windowedInterval is a fixed-size ring buffer of samples used to average
// a resource reading over the last N polling intervals before comparing it
// against a limit, so one transient spike does not trip the watchdog.
type windowedInterval struct {
	buffer   []uint64
	position int
	filled   bool
}

func newWindowedInterval(size int) *windowedInterval {
	return &windowedInterval{buffer: make([]uint64, size)}
}

// push adds sample, wrapping the ring if necessary, and reports whether
// the buffer has filled at least once (mean is only meaningful once it
// has).
func (w *windowedInterval) push(sample uint64) bool {
	if len(w.buffer) == 0 {
		return false
	}
	w.buffer[w.position] = sample
	w.position = (w.position + 1) % len(w.buffer)
	if w.position == 0 {
		w.filled = true
	}
	return w.filled
}

// mean returns the average of the samples currently in the buffer.
func (w *windowedInterval) mean() uint64 {
	if len(w.buffer) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range w.buffer {
		sum += v
	}
	return sum / uint64(len(w.buffer))
}

func (w *windowedInterval) clear() {
	for i := range w.buffer {
		w.buffer[i] = 0
	}
	w.position = 0
	w.filled = false
}
