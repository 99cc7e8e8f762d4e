// go-sl032
// Copyright (c) 2026 The OpenTerm Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-sl032.
//
// go-sl032 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-sl032 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-sl032; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package sl032

import (
	"bytes"
	"crypto/rand"
	"fmt"
)

// Authentication command codes. The legacy command selects the DES/3DES
// crypto; the ISO and AES commands select the EV1 scheme with CMAC
// session integrity.
const (
	cmdAuthenticateLegacy = 0x0A
	cmdAuthenticateISO    = 0x1A
	cmdAuthenticateAES    = 0xAA
)

// Authenticate runs the three-pass authentication matching the key's
// cipher family: legacy for DES/3DES, ISO for 3K3DES, AES for AES keys.
// On success the tag holds a fresh session key and the key number is
// recorded as authenticated.
func (t *Tag) Authenticate(keyNo uint8, key *Key) error {
	switch key.Type() {
	case KeyTypeDES, KeyType3DES:
		return t.authenticate(cmdAuthenticateLegacy, keyNo, key)
	case KeyType3K3DES:
		return t.authenticate(cmdAuthenticateISO, keyNo, key)
	case KeyTypeAES:
		return t.authenticate(cmdAuthenticateAES, keyNo, key)
	default:
		return ErrUnknownKeyType
	}
}

// AuthenticateISO runs the ISO three-pass authentication regardless of
// key family, as required before changing a key to 3K3DES
func (t *Tag) AuthenticateISO(keyNo uint8, key *Key) error {
	return t.authenticate(cmdAuthenticateISO, keyNo, key)
}

// AuthenticateAES runs the AES three-pass authentication
func (t *Tag) AuthenticateAES(keyNo uint8, key *Key) error {
	return t.authenticate(cmdAuthenticateAES, keyNo, key)
}

// authenticate is the three-pass challenge-response:
//
//  1. send {cmd, keyNo}, receive eK(RndB)
//  2. decipher RndB, pick RndA, send dK/eK(RndA || rol(RndB))
//  3. receive eK(rol(RndA)), decipher and compare against our RndA
//
// The legacy scheme "enciphers" the outbound token with the decipher
// primitive; the EV1 scheme uses a straight CBC encipher.
func (t *Tag) authenticate(cmd byte, keyNo uint8, key *Key) error {
	if !t.active {
		return ErrTagInactive
	}

	for i := range t.ivect {
		t.ivect[i] = 0
	}
	t.authKeyNo = notYetAuthenticated
	t.sessionKey = nil
	if cmd == cmdAuthenticateLegacy {
		t.scheme = authSchemeLegacy
	} else {
		t.scheme = authSchemeNew
	}

	resp, err := t.device.exchangeTCL([]byte{cmd, keyNo})
	if err != nil {
		return err
	}
	if status := resp[len(resp)-1]; status != StatusAdditionalFrame {
		t.lastPICCError = status
		return &CardError{Op: "authenticate", Code: status}
	}

	keyLength := len(resp) - 1
	if keyLength != key.BlockSize() && keyLength != 2*desBlockSize {
		return fmt.Errorf("authenticate: %w: %d byte challenge", ErrFrameCorrupted, keyLength)
	}

	// decipher eK(RndB)
	rndB := make([]byte, keyLength)
	copy(rndB, resp[:keyLength])
	cipherBlocksChained(t, key, t.ivect[:], rndB, chainDirReceive, opDecipher)

	rndA := make([]byte, keyLength)
	if _, err := rand.Read(rndA); err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	// token = cipher(RndA || rol(RndB))
	token := make([]byte, 2*keyLength)
	copy(token, rndA)
	copy(token[keyLength:], rndB)
	rotateLeft(token[keyLength:])
	op := opEncipher
	if cmd == cmdAuthenticateLegacy {
		op = opDecipher
	}
	cipherBlocksChained(t, key, t.ivect[:], token, chainDirSend, op)

	cmd2 := make([]byte, 1+2*keyLength)
	cmd2[0] = 0xAF
	copy(cmd2[1:], token)
	resp, err = t.device.exchangeTCL(cmd2)
	if err != nil {
		return err
	}
	if status := resp[len(resp)-1]; status != StatusOperationOK {
		t.lastPICCError = status
		return &CardError{Op: "authenticate", Code: status}
	}
	if len(resp)-1 != keyLength {
		return fmt.Errorf("authenticate: %w: %d byte token", ErrFrameCorrupted, len(resp)-1)
	}

	// decipher eK(rol(RndA)) and compare against our rotated RndA
	piccRndA := make([]byte, keyLength)
	copy(piccRndA, resp[:keyLength])
	cipherBlocksChained(t, key, t.ivect[:], piccRndA, chainDirReceive, opDecipher)

	expected := make([]byte, keyLength)
	copy(expected, rndA)
	rotateLeft(expected)
	if !bytes.Equal(expected, piccRndA) {
		return ErrAuthenticationFailed
	}

	t.authKeyNo = keyNo
	sessionKey, err := newSessionKey(rndA, rndB, key)
	if err != nil {
		return err
	}
	t.sessionKey = sessionKey
	for i := range t.ivect {
		t.ivect[i] = 0
	}
	if t.scheme == authSchemeNew {
		t.sessionKey.generateCMACSubkeys()
	}
	return nil
}
