// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the concatenation of inputs (xxh3, 128 bit).
// Each input is length-prefixed, so ("ab","c") and ("a","bc") differ.
func Fingerprint(inputs ...[]byte) []byte {
	h := xxh3.New()
	var size [8]byte
	for _, input := range inputs {
		binary.LittleEndian.PutUint64(size[:], uint64(len(input)))
		_, _ = h.Write(size[:])
		_, _ = h.Write(input)
	}
	return Uint128ToBytes(h.Sum128())
}

// FingerprintString is the hex form of Fingerprint, usable as a map or cache key
func FingerprintString(inputs ...[]byte) string {
	return hex.EncodeToString(Fingerprint(inputs...))
}

// Uint128ToBytes converts a uint128 to a byte array
func Uint128ToBytes(a xxh3.Uint128) (b []byte) {
	b = make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], a.Lo)
	binary.LittleEndian.PutUint64(b[8:16], a.Hi)
	return
}
