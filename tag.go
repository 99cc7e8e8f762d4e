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

package sl032

import (
	"encoding/hex"
	"fmt"
)

// Card types reported by the reader after a select
const (
	CardTypeMifare1k   = 0x01
	CardTypeMifare4k   = 0x02
	CardTypeUltralight = 0x03
	CardTypeMifare1kM1 = 0x04
	CardTypeMifare4kM1 = 0x05
	CardTypeDESFire    = 0x06
	CardTypeProX       = 0x07
	CardTypeOther      = 0x0A
)

// UIDLength is the length of a DESFire UID
const UIDLength = 7

// notYetAuthenticated marks the absence of an authenticated key
const notYetAuthenticated = 255

// Card-level limits. A command frame carries at most MaxFrameSize bytes
// of which the first is the command code and, for chained data frames,
// up to seven more are addressing headers.
const (
	// MaxFrameSize is the largest card command or response frame
	MaxFrameSize = 60
	// FramePayloadSize is the data capacity of a chained data frame
	FramePayloadSize = 55
)

// Tag is a DESFire card the reader has within range. It carries the full
// security session state: the session key negotiated by authentication,
// the chained IV, the last CMAC, and the most recent card-side and
// terminal-side error codes.
//
// A Tag is not safe for concurrent use; the crypto scratch buffer backs
// one preprocess/exchange/postprocess cycle at a time.
type Tag struct {
	device        *Device
	sessionKey    *Key
	cmacLast      []byte
	cryptoBuf     []byte
	selectedApp   uint32
	uid           [UIDLength]byte
	ivect         [maxCryptoBlockSize]byte
	cardType      byte
	scheme        authScheme
	authKeyNo     byte
	lastPICCError byte
	lastPCDError  byte
	active        bool
}

// NewTag returns an inactive tag bound to the device. Connect activates
// it.
func NewTag(device *Device) *Tag {
	t := &Tag{device: device}
	t.init()
	return t
}

// init resets all session state to the just-selected baseline
func (t *Tag) init() {
	t.active = false
	t.lastPICCError = StatusOperationOK
	t.lastPCDError = StatusOperationOK
	t.authKeyNo = notYetAuthenticated
	t.selectedApp = 0
	t.sessionKey = nil
	t.cmacLast = nil
	for i := range t.ivect {
		t.ivect[i] = 0
	}
}

// UID returns the card UID as a hex string
func (t *Tag) UID() string {
	return hex.EncodeToString(t.uid[:])
}

// UIDBytes returns the card UID
func (t *Tag) UIDBytes() []byte {
	uid := make([]byte, UIDLength)
	copy(uid, t.uid[:])
	return uid
}

// CardType returns the reader-reported card type from the last select
func (t *Tag) CardType() byte {
	return t.cardType
}

// Active reports whether the tag holds an established connection
func (t *Tag) Active() bool {
	return t.active
}

// SelectedApplication returns the AID selected on the card, 0 for the
// PICC level
func (t *Tag) SelectedApplication() uint32 {
	return t.selectedApp
}

// AuthenticatedKeyNo returns the key number of the current session and
// whether an authentication is in effect
func (t *Tag) AuthenticatedKeyNo() (uint8, bool) {
	if t.authKeyNo == notYetAuthenticated {
		return 0, false
	}
	return t.authKeyNo, true
}

// LastPICCError returns the most recent card status code, kept for
// diagnostics after a CardError
func (t *Tag) LastPICCError() byte {
	return t.lastPICCError
}

// LastPCDError returns the most recent terminal-side error code.
// CryptoErrorCode marks a failed MAC, CMAC or CRC verification.
func (t *Tag) LastPCDError() byte {
	return t.lastPCDError
}

// Connect establishes a connection to a DESFire card in range: selects
// it, checks its type and requests its answer-to-select so the card
// enters the ISO 14443-4 protocol state. On success the tag is active
// with all session state reset.
func (t *Tag) Connect() error {
	if t.active {
		return ErrTagActive
	}

	uid, cardType, err := t.device.selectCard()
	if err != nil {
		return err
	}
	if cardType != CardTypeDESFire {
		return fmt.Errorf("%w: card type 0x%02X", ErrNotDESFire, cardType)
	}

	if err := t.device.requestATS(); err != nil {
		return err
	}

	t.init()
	t.active = true
	t.cardType = cardType
	copy(t.uid[:], uid)
	return nil
}

// Disconnect terminates the connection and deactivates the tag.
// Session state survives only for diagnostics; a new Connect resets it.
func (t *Tag) Disconnect() error {
	if !t.active {
		return ErrTagInactive
	}
	t.active = false
	t.sessionKey = nil
	return nil
}

// iv returns the chained IV sized to the session cipher's block
func (t *Tag) iv() []byte {
	if t.sessionKey != nil {
		return t.ivect[:t.sessionKey.BlockSize()]
	}
	return t.ivect[:]
}

// ensureCryptoBuffer returns the crypto scratch buffer grown to at
// least n bytes. Contents are unspecified.
func (t *Tag) ensureCryptoBuffer(n int) []byte {
	if cap(t.cryptoBuf) < n {
		t.cryptoBuf = make([]byte, n)
	}
	t.cryptoBuf = t.cryptoBuf[:cap(t.cryptoBuf)]
	return t.cryptoBuf[:n]
}
