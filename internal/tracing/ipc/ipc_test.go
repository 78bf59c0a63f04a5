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
	"bytes"
	"testing"

	"google.golang.org/grpc/codes"

	"github.com/etsangsplk/perfetto/internal/tracing/config"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{ConnID: 42, Type: MessageEnableTracingRequest, Flags: 0x1, Payload: []byte("hello")}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.ConnID != want.ConnID || got.Type != want.Type || got.Flags != want.Flags || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("ReadFrame = %+v, want %+v", got, want)
	}
}

func TestReadFrameSkipsPad(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Type: MessagePAD, Payload: []byte{0, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	real := Frame{ConnID: 7, Type: MessageDisableTracingRequest}
	if err := WriteFrame(&buf, real); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != MessageDisableTracingRequest || got.ConnID != 7 {
		t.Fatalf("ReadFrame = %+v, want the frame after the PAD", got)
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Type: MessageReadBuffersRequest}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("Payload = %v, want empty", got.Payload)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	req := NewEnableTracingRequest(config.DefaultTraceConfig())
	payload, err := EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Type: MessageEnableTracingRequest, Payload: payload}); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	var got EnableTracingRequest
	if err := DecodeMessage(f.Payload, &got); err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Version != wireVersion {
		t.Fatalf("Version = %d, want %d", got.Version, wireVersion)
	}
	if len(got.Config.Buffers) != len(req.Config.Buffers) {
		t.Fatalf("Config.Buffers length mismatch: got %d, want %d", len(got.Config.Buffers), len(req.Config.Buffers))
	}
}

func TestStatusMapsKnownKinds(t *testing.T) {
	cases := []struct {
		kind core.Kind
		want codes.Code
	}{
		{core.KindInvalidConfig, codes.InvalidArgument},
		{core.KindResourceExhaustion, codes.ResourceExhausted},
		{core.KindDeadlineExceeded, codes.DeadlineExceeded},
		{core.KindTransport, codes.Unavailable},
		{core.KindInternalInvariantViolation, codes.Internal},
	}
	for _, c := range cases {
		err := core.New(c.kind, "test.op", nil)
		st := Status(err)
		if st.Code() != c.want {
			t.Errorf("Status(%v).Code() = %v, want %v", c.kind, st.Code(), c.want)
		}
	}
}

func TestStatusUnknownErrorMapsToUnknownCode(t *testing.T) {
	st := Status(bytes.ErrTooLarge)
	if st.Code() != codes.Unknown {
		t.Fatalf("Status(plain error).Code() = %v, want Unknown", st.Code())
	}
}
