// Copyright 2026 The OpenTerm Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package frame

// Checksum computes the SL032 frame checksum for a data buffer.
// This is the cumulative XOR of all bytes in the provided data.
func Checksum(data []byte) byte {
	chk := byte(0)
	for _, b := range data {
		chk ^= b
	}
	return chk
}

// Build assembles a complete host frame for the given command and payload.
// Layout: preamble, length, command, payload..., checksum. The length
// field counts everything from the command byte through the checksum.
func Build(cmd byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+4)
	buf = append(buf, PreambleHost, byte(len(payload)+2), cmd)
	buf = append(buf, payload...)
	return append(buf, Checksum(buf))
}
