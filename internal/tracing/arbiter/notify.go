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

package arbiter

import (
	"context"
	"time"
)

// Notifier receives one call per tick that had any chunk commits, carrying
// every chunk location committed since the previous call. The service side
// implements this to learn which (page, chunk) slots to drain next.
type Notifier interface {
	Notify(changed []ChunkLocation)
}

// Run drives the batched-notification loop described in §4.3: at most once
// per tick, it drains whatever chunks were released since the last tick,
// rings the region's doorbell so a service blocked in RegionHeader.Wait
// wakes up, and hands the batch to notifier. It returns when ctx is done.
//
// Grounded on the teacher's WaitForClient/WaitForServer poll loop
// (handshake.go): a time.Ticker driving a bounded-latency poll rather than
// a per-event syscall, generalized here from a one-shot readiness flag to a
// recurring batch drain.
func (a *Arbiter) Run(ctx context.Context, notifier Notifier, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed := a.drainPending()
			if len(changed) == 0 {
				continue
			}
			a.region.Header().RingDoorbell()
			a.region.Header().Wake(1)
			notifier.Notify(changed)
		}
	}
}
