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

// Package service implements the Service Core and session state machine of
// §4.5: a single-goroutine task runner that owns every producer, session
// and log buffer, plus the Producer and Consumer endpoint facades that
// route control-plane calls to it.
//
// Every exported Core method is synchronous with respect to the runner:
// it enqueues a closure and blocks for its reply, so two concurrent
// callers never observe interleaved mutation of a session or log buffer,
// matching §5's "all public core methods are synchronous with respect to
// the runner and never yield mid-operation."
package service
