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
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"fmt"
)

// KeyType identifies the cipher family of a DESFire key
type KeyType int

const (
	// KeyTypeDES is single DES (8 byte key, stored doubled)
	KeyTypeDES KeyType = iota
	// KeyType3DES is two-key triple DES (16 byte key)
	KeyType3DES
	// KeyType3K3DES is three-key triple DES (24 byte key)
	KeyType3K3DES
	// KeyTypeAES is AES-128 (16 byte key with a separate version byte)
	KeyTypeAES
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeDES:
		return "DES"
	case KeyType3DES:
		return "3DES"
	case KeyType3K3DES:
		return "3K3DES"
	case KeyTypeAES:
		return "AES"
	default:
		return fmt.Sprintf("KeyType(%d)", int(t))
	}
}

// Crypto block sizes
const (
	desBlockSize = 8
	aesBlockSize = 16

	// maxCryptoBlockSize bounds IV and subkey buffers
	maxCryptoBlockSize = 16
)

// Key is a DESFire key: raw key material, a prepared block cipher
// schedule and, once derived, the two CMAC subkeys. Key version bits are
// embedded in the DES parity bits for the DES families; AES keys carry an
// explicit version byte instead.
type Key struct {
	block      cipher.Block
	cmacSK1    []byte
	cmacSK2    []byte
	data       [24]byte
	typ        KeyType
	aesVersion byte
}

// NewDESKey creates a single DES key. Version bits are cleared, so the
// resulting key has version 0x00.
func NewDESKey(value []byte) (*Key, error) {
	if len(value) != 8 {
		return nil, fmt.Errorf("%w: DES key must be 8 bytes, got %d", ErrInvalidParameter, len(value))
	}
	data := make([]byte, 8)
	copy(data, value)
	for n := range data {
		data[n] &= 0xfe
	}
	return NewDESKeyWithVersion(data)
}

// NewDESKeyWithVersion creates a single DES key, keeping the version bits
// present in the key material. The 8 byte key is stored doubled so the
// DES families share a layout.
func NewDESKeyWithVersion(value []byte) (*Key, error) {
	if len(value) != 8 {
		return nil, fmt.Errorf("%w: DES key must be 8 bytes, got %d", ErrInvalidParameter, len(value))
	}
	k := &Key{typ: KeyTypeDES}
	copy(k.data[0:8], value)
	copy(k.data[8:16], value)
	if err := k.updateSchedule(); err != nil {
		return nil, err
	}
	return k, nil
}

// New3DESKey creates a two-key triple DES key with the version forced to
// 0x00FF: parity bits of the first half cleared and of the second half
// set, which also keeps the two halves distinct.
func New3DESKey(value []byte) (*Key, error) {
	if len(value) != 16 {
		return nil, fmt.Errorf("%w: 3DES key must be 16 bytes, got %d", ErrInvalidParameter, len(value))
	}
	data := make([]byte, 16)
	copy(data, value)
	for n := 0; n < 8; n++ {
		data[n] &= 0xfe
	}
	for n := 8; n < 16; n++ {
		data[n] |= 0x01
	}
	return New3DESKeyWithVersion(data)
}

// New3DESKeyWithVersion creates a two-key triple DES key, keeping the
// version bits present in the key material
func New3DESKeyWithVersion(value []byte) (*Key, error) {
	if len(value) != 16 {
		return nil, fmt.Errorf("%w: 3DES key must be 16 bytes, got %d", ErrInvalidParameter, len(value))
	}
	k := &Key{typ: KeyType3DES}
	copy(k.data[0:16], value)
	if err := k.updateSchedule(); err != nil {
		return nil, err
	}
	return k, nil
}

// New3K3DESKey creates a three-key triple DES key with the version preset
// to 0x00 (parity bits of the first 8 bytes cleared)
func New3K3DESKey(value []byte) (*Key, error) {
	if len(value) != 24 {
		return nil, fmt.Errorf("%w: 3K3DES key must be 24 bytes, got %d", ErrInvalidParameter, len(value))
	}
	data := make([]byte, 24)
	copy(data, value)
	for n := 0; n < 8; n++ {
		data[n] &= 0xfe
	}
	return New3K3DESKeyWithVersion(data)
}

// New3K3DESKeyWithVersion creates a three-key triple DES key, keeping the
// version bits present in the key material
func New3K3DESKeyWithVersion(value []byte) (*Key, error) {
	if len(value) != 24 {
		return nil, fmt.Errorf("%w: 3K3DES key must be 24 bytes, got %d", ErrInvalidParameter, len(value))
	}
	k := &Key{typ: KeyType3K3DES}
	copy(k.data[0:24], value)
	if err := k.updateSchedule(); err != nil {
		return nil, err
	}
	return k, nil
}

// NewAESKey creates an AES-128 key with the given version byte
func NewAESKey(value []byte, version byte) (*Key, error) {
	if len(value) != 16 {
		return nil, fmt.Errorf("%w: AES key must be 16 bytes, got %d", ErrInvalidParameter, len(value))
	}
	k := &Key{typ: KeyTypeAES, aesVersion: version}
	copy(k.data[0:16], value)
	if err := k.updateSchedule(); err != nil {
		return nil, err
	}
	return k, nil
}

// updateSchedule rebuilds the block cipher schedule from the current key
// material. DES ignores the parity bits internally, so version bits do
// not change the cipher output.
func (k *Key) updateSchedule() error {
	var (
		block cipher.Block
		err   error
	)
	switch k.typ {
	case KeyTypeDES:
		block, err = des.NewCipher(k.data[0:8])
	case KeyType3DES:
		// EDE with k1, k2, k1
		tdes := make([]byte, 24)
		copy(tdes[0:16], k.data[0:16])
		copy(tdes[16:24], k.data[0:8])
		block, err = des.NewTripleDESCipher(tdes)
	case KeyType3K3DES:
		block, err = des.NewTripleDESCipher(k.data[0:24])
	case KeyTypeAES:
		block, err = aes.NewCipher(k.data[0:16])
	default:
		return ErrUnknownKeyType
	}
	if err != nil {
		return fmt.Errorf("key schedule: %w", err)
	}
	k.block = block
	return nil
}

// Type returns the cipher family of the key
func (k *Key) Type() KeyType { return k.typ }

// BlockSize returns the cipher block size: 8 for the DES families, 16
// for AES
func (k *Key) BlockSize() int {
	if k.typ == KeyTypeAES {
		return aesBlockSize
	}
	return desBlockSize
}

// macingLength is the number of authenticity bytes the key produces: a 4
// byte MAC for the legacy DES families, an 8 byte CMAC for 3K3DES/AES.
func (k *Key) macingLength() int {
	switch k.typ {
	case KeyTypeDES, KeyType3DES:
		return macLength
	default:
		return cmacLength
	}
}

// Version returns the key version stored in the DES parity bits (bit n of
// byte n becomes version bit 7-n). AES keys return their version byte.
func (k *Key) Version() byte {
	if k.typ == KeyTypeAES {
		return k.aesVersion
	}
	version := byte(0)
	for n := 0; n < 8; n++ {
		version |= (k.data[n] & 1) << (7 - n)
	}
	return version
}

// SetVersion stores a key version in the DES parity bits. For DES the
// second half mirrors the first; for the triple DES families the second
// half takes the inverted version bit so a versioned key cannot
// degenerate into single DES.
func (k *Key) SetVersion(version byte) error {
	if k.typ == KeyTypeAES {
		k.aesVersion = version
		return nil
	}
	for n := 0; n < 8; n++ {
		versionBit := (version >> (7 - n)) & 1
		k.data[n] &= 0xfe
		k.data[n] |= versionBit
		if k.typ == KeyTypeDES {
			k.data[n+8] = k.data[n]
		} else {
			k.data[n+8] &= 0xfe
			k.data[n+8] |= ^versionBit & 1
		}
	}
	return k.updateSchedule()
}

// KeyData returns the raw key material as sent in ChangeKey: 16 bytes for
// DES/3DES/AES, 24 bytes for 3K3DES.
func (k *Key) KeyData() []byte {
	n := 16
	if k.typ == KeyType3K3DES {
		n = 24
	}
	out := make([]byte, n)
	copy(out, k.data[:n])
	return out
}

// newSessionKey derives the session key from both parties' challenges
// after a successful authentication. The interleaving of RndA and RndB
// depends on the cipher family of the authentication key.
func newSessionKey(rnda, rndb []byte, authKey *Key) (*Key, error) {
	buf := make([]byte, 0, 24)
	switch authKey.typ {
	case KeyTypeDES:
		buf = append(buf, rnda[0:4]...)
		buf = append(buf, rndb[0:4]...)
		return NewDESKeyWithVersion(buf)
	case KeyType3DES:
		buf = append(buf, rnda[0:4]...)
		buf = append(buf, rndb[0:4]...)
		buf = append(buf, rnda[4:8]...)
		buf = append(buf, rndb[4:8]...)
		return New3DESKeyWithVersion(buf)
	case KeyType3K3DES:
		buf = append(buf, rnda[0:4]...)
		buf = append(buf, rndb[0:4]...)
		buf = append(buf, rnda[6:10]...)
		buf = append(buf, rndb[6:10]...)
		buf = append(buf, rnda[12:16]...)
		buf = append(buf, rndb[12:16]...)
		return New3K3DESKey(buf)
	case KeyTypeAES:
		buf = append(buf, rnda[0:4]...)
		buf = append(buf, rndb[0:4]...)
		buf = append(buf, rnda[12:16]...)
		buf = append(buf, rndb[12:16]...)
		return NewAESKey(buf, 0)
	default:
		return nil, ErrUnknownKeyType
	}
}
