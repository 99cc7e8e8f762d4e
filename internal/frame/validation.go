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

import "errors"

// Validation errors. The root package wraps these in its transport error
// types; they are defined here so this package stays dependency-free.
var (
	ErrTooShort = errors.New("frame too short")
	ErrChecksum = errors.New("frame checksum mismatch")
	ErrPreamble = errors.New("unexpected frame preamble")
)

// Validate checks a fully received reader frame: preamble, minimum size,
// and the whole-frame XOR. A well-formed frame XORs to zero because the
// trailing checksum byte is the XOR of everything before it.
func Validate(buf []byte) error {
	if len(buf) < MinReaderFrameSize {
		return ErrTooShort
	}
	if buf[0] != PreambleReader {
		return ErrPreamble
	}
	if Checksum(buf) != 0 {
		return ErrChecksum
	}
	return nil
}

// Command returns the echoed command byte of a validated reader frame.
func Command(buf []byte) byte { return buf[2] }

// Status returns the reader status byte of a validated reader frame.
func Status(buf []byte) byte { return buf[3] }

// Data returns the data bytes of a validated reader frame, excluding the
// status byte and the trailing checksum.
func Data(buf []byte) []byte {
	// length field counts command..checksum, so data spans [4, len+1)
	end := int(buf[1]) + 1
	if end > len(buf) {
		end = len(buf)
	}
	return buf[4:end]
}
