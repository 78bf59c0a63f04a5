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

package logbuffer

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

func packPacket(data []byte) []byte {
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(data)))
	out := make([]byte, 0, n+len(data))
	out = append(out, hdr[:n]...)
	out = append(out, data...)
	return out
}

// chunkPayload lays out packets back-to-back and pads the result to
// totalRecordSize-RecordHeaderSize bytes, so the on-disk record (header +
// payload, rounded to RecordAlignment) comes out to exactly
// totalRecordSize, matching the literal sizes used in the spec's
// end-to-end scenarios.
func chunkPayload(t *testing.T, totalRecordSize int, packets ...[]byte) []byte {
	t.Helper()
	var buf []byte
	for _, p := range packets {
		buf = append(buf, packPacket(p)...)
	}
	want := totalRecordSize - RecordHeaderSize
	if len(buf) > want {
		t.Fatalf("packets do not fit: need %d bytes, have budget %d", len(buf), want)
	}
	out := make([]byte, want)
	copy(out, buf)
	return out
}

func rep(b byte, n int) []byte { return bytes.Repeat([]byte{b}, n) }

func joined(parts [][]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestCreateInvalidSize(t *testing.T) {
	cases := []int{0, -1, 15, 17, 8}
	for _, size := range cases {
		if _, err := Create(size); err == nil {
			t.Errorf("Create(%d) = nil error, want InvalidSize", size)
		}
	}
	if _, err := Create(4096); err != nil {
		t.Fatalf("Create(4096): %v", err)
	}
}

// Scenario 1: simple write/read.
func TestScenarioSimpleWriteRead(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	payload := chunkPayload(t, 64, rep(0x00, 42))
	if err := lb.CopyChunkIn(1, 1, 0, 0, 1, payload); err != nil {
		t.Fatal(err)
	}

	lb.BeginRead()
	pkt, err := lb.ReadNextPacket()
	if err != nil {
		t.Fatalf("ReadNextPacket: %v", err)
	}
	if got := joined(pkt); len(got) != 42 {
		t.Fatalf("packet length = %d, want 42", len(got))
	}
	if _, err := lb.ReadNextPacket(); err != core.ErrEmpty {
		t.Fatalf("second ReadNextPacket: err = %v, want ErrEmpty", err)
	}
}

// Scenario 2: fill to end exactly.
func TestScenarioFillToEnd(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	sizes := []int{512, 512, 1024, 2048}
	seeds := []byte{'a', 'b', 'c', 'd'}
	for i, size := range sizes {
		payload := chunkPayload(t, size, rep(seeds[i], 1))
		if err := lb.CopyChunkIn(1, 1, core.ChunkID(i), 0, 1, payload); err != nil {
			t.Fatal(err)
		}
	}
	if lb.SizeToEnd() != 4096 {
		t.Fatalf("SizeToEnd() = %d, want 4096", lb.SizeToEnd())
	}

	lb.BeginRead()
	for i, want := range seeds {
		pkt, err := lb.ReadNextPacket()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		got := joined(pkt)
		if len(got) != 1 || got[0] != want {
			t.Fatalf("packet %d = %q, want %q", i, got, want)
		}
	}
	if _, err := lb.ReadNextPacket(); err != core.ErrEmpty {
		t.Fatalf("final ReadNextPacket: err = %v, want ErrEmpty", err)
	}
}

// Scenario 3: padding at the end evicts the chunks it displaces.
func TestScenarioPaddingAtEnd(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	sizes := []int{128, 256, 512, 1024, 2048}
	seeds := []byte{'a', 'b', 'c', 'd', 'e'}
	for i, size := range sizes {
		payload := chunkPayload(t, size, rep(seeds[i], 1))
		if err := lb.CopyChunkIn(1, 1, core.ChunkID(i), 0, 1, payload); err != nil {
			t.Fatal(err)
		}
	}
	if lb.SizeToEnd() != 128 {
		t.Fatalf("SizeToEnd() after five chunks = %d, want 128", lb.SizeToEnd())
	}

	payload := chunkPayload(t, 512, rep('f', 1))
	if err := lb.CopyChunkIn(1, 1, 5, 0, 1, payload); err != nil {
		t.Fatal(err)
	}

	lb.BeginRead()
	want := []byte{'d', 'e', 'f'}
	for i, w := range want {
		pkt, err := lb.ReadNextPacket()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		got := joined(pkt)
		if len(got) != 1 || got[0] != w {
			t.Fatalf("packet %d = %q, want %q", i, got, w)
		}
	}
	if _, err := lb.ReadNextPacket(); err != core.ErrEmpty {
		t.Fatalf("final ReadNextPacket: err = %v, want ErrEmpty", err)
	}
}

// Scenario 4: fragment stitching across chunk boundaries, dropping an
// orphaned fragment and joining a split one.
func TestScenarioFragmentStitching(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	chunk0 := chunkPayload(t, 256,
		rep('a', 10), rep('b', 20), rep('c', 30), rep('d', 10))
	chunk0Flags := flagContinuesFromPrev | flagContinuesOnNext // 'a' claims a predecessor that never existed
	if err := lb.CopyChunkIn(1, 1, 0, chunk0Flags, 4, chunk0); err != nil {
		t.Fatal(err)
	}
	chunk1 := chunkPayload(t, 128, rep('e', 20), rep('f', 30))
	if err := lb.CopyChunkIn(1, 1, 1, flagContinuesFromPrev, 2, chunk1); err != nil {
		t.Fatal(err)
	}

	lb.BeginRead()

	pkt, err := lb.ReadNextPacket()
	if err != nil || joined(pkt)[0] != 'b' {
		t.Fatalf("packet 1 = %v, err %v, want 'b'", pkt, err)
	}
	pkt, err = lb.ReadNextPacket()
	if err != nil || joined(pkt)[0] != 'c' {
		t.Fatalf("packet 2 = %v, err %v, want 'c'", pkt, err)
	}
	pkt, err = lb.ReadNextPacket()
	if err != nil {
		t.Fatalf("packet 3 (joined d+e): %v", err)
	}
	got := joined(pkt)
	if len(got) != 30 || !bytes.Equal(got[:10], rep('d', 10)) || !bytes.Equal(got[10:], rep('e', 20)) {
		t.Fatalf("joined packet = %q, want d*10 + e*20", got)
	}
	pkt, err = lb.ReadNextPacket()
	if err != nil || joined(pkt)[0] != 'f' {
		t.Fatalf("packet 4 = %v, err %v, want 'f'", pkt, err)
	}
	if _, err := lb.ReadNextPacket(); err != core.ErrEmpty {
		t.Fatalf("final ReadNextPacket: err = %v, want ErrEmpty", err)
	}
	if lb.Stats().PacketsDataLoss != 1 {
		t.Fatalf("PacketsDataLoss = %d, want 1 (the orphaned 'a' fragment)", lb.Stats().PacketsDataLoss)
	}
}

// Scenario 5: patch in sequence rewrites an already-committed payload.
func TestScenarioPatchInSequence(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	original := []byte("b00-XXXX")
	payload := chunkPayload(t, 64, original)
	if err := lb.CopyChunkIn(1, 1, 1, 0, 1, payload); err != nil {
		t.Fatal(err)
	}
	var patch [4]byte
	copy(patch[:], "YMCA")
	if err := lb.TryPatch(1, 1, 1, 5, patch); err != nil {
		t.Fatalf("TryPatch: %v", err)
	}

	lb.BeginRead()
	pkt, err := lb.ReadNextPacket()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(joined(pkt)); got != "b00-YMCA" {
		t.Fatalf("packet = %q, want %q", got, "b00-YMCA")
	}
}

func TestPatchIdempotentAndRejectsEvicted(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	payload := chunkPayload(t, 64, []byte("b00-XXXX"))
	if err := lb.CopyChunkIn(1, 1, 1, 0, 1, payload); err != nil {
		t.Fatal(err)
	}
	var patch [4]byte
	copy(patch[:], "YMCA")
	if err := lb.TryPatch(1, 1, 1, 5, patch); err != nil {
		t.Fatal(err)
	}
	if err := lb.TryPatch(1, 1, 1, 5, patch); err != nil {
		t.Fatalf("second identical TryPatch: %v", err)
	}
	lb.BeginRead()
	pkt, _ := lb.ReadNextPacket()
	if string(joined(pkt)) != "b00-YMCA" {
		t.Fatalf("packet after repeated patch = %q", joined(pkt))
	}

	if err := lb.TryPatch(9, 9, 9, 0, patch); err != core.ErrNotPatchable {
		t.Fatalf("TryPatch on unknown chunk: err = %v, want ErrNotPatchable", err)
	}
}

// Scenario 6: a malicious repeated ChunkID evicts the older copy; the
// newer payload wins.
func TestScenarioMaliciousRepeatedChunkID(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	first := chunkPayload(t, 2048, rep('a', 1))
	if err := lb.CopyChunkIn(1, 1, 0, 0, 1, first); err != nil {
		t.Fatal(err)
	}
	second := chunkPayload(t, 1024, rep('b', 1))
	if err := lb.CopyChunkIn(1, 1, 0, 0, 1, second); err != nil {
		t.Fatal(err)
	}

	lb.BeginRead()
	pkt, err := lb.ReadNextPacket()
	if err != nil {
		t.Fatal(err)
	}
	if got := joined(pkt); len(got) != 1 || got[0] != 'b' {
		t.Fatalf("packet = %q, want \"b\"", got)
	}
	if _, err := lb.ReadNextPacket(); err != core.ErrEmpty {
		t.Fatalf("second ReadNextPacket: err = %v, want ErrEmpty", err)
	}
}

func TestMalformedZeroLengthVarintInvalidatesChunk(t *testing.T) {
	lb, err := Create(4096)
	if err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 64-RecordHeaderSize)
	payload[0] = 0x00 // zero-length varint header
	if err := lb.CopyChunkIn(1, 1, 0, 0, 1, payload); err != nil {
		t.Fatal(err)
	}
	lb.BeginRead()
	if _, err := lb.ReadNextPacket(); err != core.ErrEmpty {
		t.Fatalf("ReadNextPacket on malformed-only buffer: err = %v, want ErrEmpty", err)
	}
	if lb.Stats().MalformedDiscarded != 1 {
		t.Fatalf("MalformedDiscarded = %d, want 1", lb.Stats().MalformedDiscarded)
	}
}
