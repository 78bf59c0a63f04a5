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

import "log"

// Logger is the narrow logging seam every tracing subsystem depends on
// instead of stdlib log directly, so tests can capture or silence output.
// No structured-logging library appears anywhere in the retrieved corpus,
// so this stays a thin wrapper over log.Logger rather than importing one
// speculatively.
type Logger interface {
	Printf(format string, args ...any)
}

type stdLogger struct {
	l *log.Logger
}

func (s stdLogger) Printf(format string, args ...any) { s.l.Printf(format, args...) }

// NewStdLogger adapts a standard library *log.Logger to the Logger
// interface.
func NewStdLogger(l *log.Logger) Logger {
	return stdLogger{l: l}
}

// DefaultLogger logs through log.Default(), matching the teacher's own
// cmd/debug-capacity/main.go use of the package-level log functions.
var DefaultLogger Logger = stdLogger{l: log.Default()}
