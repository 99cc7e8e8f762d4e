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

// Frame direction constants - the preamble byte indicates the direction
const (
	PreambleHost   = 0xBA // Commands from host MCU to SL032
	PreambleReader = 0xBD // Responses from SL032 to host MCU
)

// SL032 command codes
const (
	CmdSelectCard = 0x01 // Select a card in the RF field
	CmdRATS       = 0x20 // Request answer to select (ISO 14443-4 activation)
	CmdTCL        = 0x21 // Exchange transparent data over T=CL
)

// SL032 status codes, reported in the first data byte of reader frames
const (
	StatusSuccess     = 0x00 // Operation success
	StatusNoTag       = 0x01 // No tag in the RF field
	StatusLoginOK     = 0x02 // Login success
	StatusLoginFail   = 0x03 // Login fail
	StatusReadFail    = 0x04 // Read fail
	StatusWriteFail   = 0x05 // Write fail
	StatusUnableRead  = 0x06 // Unable to read after write
	StatusAddressOver = 0x08 // Address overflow
	StatusCollision   = 0x0A // Collision occurred
	StatusNotAuth     = 0x0D // Not authenticated
	StatusNotValue    = 0x0E // Not a value block
	StatusATSFail     = 0x10 // ATS failed
	StatusTCLFail     = 0x11 // T=CL communication failed
	StatusChecksumErr = 0xF0 // Reader detected a checksum error
	StatusCommandErr  = 0xF1 // Unknown command code
)

// Frame size limits
const (
	// MaxFrameSize is the receive buffer size. The SL032 never sends a
	// frame longer than this with T=CL payloads capped by the host side.
	MaxFrameSize = 60

	// MinReaderFrameSize is preamble + len + command + status + checksum.
	MinReaderFrameSize = 5

	// LenOverhead is the number of frame bytes not counted by the length
	// field (preamble and the length byte itself).
	LenOverhead = 2
)
