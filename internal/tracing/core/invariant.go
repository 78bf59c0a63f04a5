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
	"fmt"
	"log"
)

// AbortOnInvariant controls what Check does when cond is false. Production
// code leaves this true so a broken internal invariant takes the process
// down rather than limping on with corrupted state; tests that want to
// exercise the violation path set it to false and inspect the panic value
// instead.
var AbortOnInvariant = true

// Check verifies an internal invariant that must never be false for input
// the caller fully controls (not producer input — that goes through
// KindMalformedInput instead). A violation here means this repo's own
// bookkeeping is wrong, so per §7 it is fatal.
func Check(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if AbortOnInvariant {
		log.Fatalf("internal invariant violated: %s", msg)
	}
	panic(New(KindInternalInvariantViolation, "invariant.Check", fmt.Errorf("%s", msg)))
}
