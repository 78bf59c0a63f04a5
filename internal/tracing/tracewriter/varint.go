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

package tracewriter

// lengthPrefixSize is the number of bytes TraceWriter reserves for every
// packet's length prefix before the packet's final size is known. It must
// be large enough to hold any packet length this service allows.
const lengthPrefixSize = 4

// putRedundantVarint encodes v as exactly n bytes of unsigned LEB128,
// padding with redundant continuation bits if v would normally encode
// shorter. This is what lets TraceWriter reserve a fixed-size slot for a
// packet's length prefix before the packet is finished, and backfill it
// later in place: encoding/binary's Uvarint decoder accepts a redundant
// encoding identically to a minimal one, so logbuffer's decodePackets
// needs no special case for it.
func putRedundantVarint(dst []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		b := byte(v) & 0x7f
		v >>= 7
		if i < n-1 {
			b |= 0x80
		}
		dst[i] = b
	}
}
