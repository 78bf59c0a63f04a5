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

package ipc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

// Codes maps §7's error kinds onto the RPC status codes a consumer sees on
// the wire.
var Codes = map[core.Kind]codes.Code{
	core.KindTransport:                  codes.Unavailable,
	core.KindMalformedInput:             codes.DataLoss,
	core.KindInvalidConfig:              codes.InvalidArgument,
	core.KindResourceExhaustion:         codes.ResourceExhausted,
	core.KindDeadlineExceeded:           codes.DeadlineExceeded,
	core.KindInternalInvariantViolation: codes.Internal,
}

// Status builds a typed gRPC status for err, giving §7's "consumer-facing
// errors are reported as typed status codes on the RPC" a concrete
// mechanism. Errors that don't carry a core.Kind map to codes.Unknown.
func Status(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		code, ok := Codes[ce.Kind]
		if !ok {
			code = codes.Unknown
		}
		return status.New(code, err.Error())
	}
	return status.New(codes.Unknown, err.Error())
}
