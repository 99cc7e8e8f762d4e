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

package testing

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"fmt"

	sl032 "github.com/openterm/go-sl032"
)

// Card-side cipher helpers. Deliberately an independent implementation
// built directly on the standard library block ciphers, so the tests
// verify the library's crypto against a second source rather than
// against itself.

// cardCipher builds the block cipher for a raw key of the given family
func cardCipher(typ sl032.KeyType, key []byte) (cipher.Block, error) {
	switch typ {
	case sl032.KeyTypeDES:
		return des.NewCipher(key[0:8])
	case sl032.KeyType3DES:
		tdes := make([]byte, 24)
		copy(tdes[0:16], key[0:16])
		copy(tdes[16:24], key[0:8])
		return des.NewTripleDESCipher(tdes)
	case sl032.KeyType3K3DES:
		return des.NewTripleDESCipher(key[0:24])
	case sl032.KeyTypeAES:
		return aes.NewCipher(key[0:16])
	default:
		return nil, fmt.Errorf("unknown key type %v", typ)
	}
}

// cbcEncrypt encrypts data in place in CBC mode, updating iv to the
// last ciphertext block
func cbcEncrypt(block cipher.Block, iv, data []byte) {
	bs := block.BlockSize()
	for off := 0; off+bs <= len(data); off += bs {
		b := data[off : off+bs]
		for i := range b {
			b[i] ^= iv[i]
		}
		block.Encrypt(b, b)
		copy(iv, b)
	}
}

// cbcDecrypt decrypts data in place in CBC mode, updating iv to the
// last ciphertext block
func cbcDecrypt(block cipher.Block, iv, data []byte) {
	bs := block.BlockSize()
	prev := make([]byte, bs)
	copy(prev, iv)
	scratch := make([]byte, bs)
	for off := 0; off+bs <= len(data); off += bs {
		b := data[off : off+bs]
		copy(scratch, b)
		block.Decrypt(b, b)
		for i := range b {
			b[i] ^= prev[i]
		}
		copy(prev, scratch)
	}
	copy(iv, prev)
}

// legacyDecode recovers the plaintext of a token the legacy scheme
// produced with the deciphering primitive: p[i] = E(c[i]) xor c[i-1],
// with a zero block before the first
func legacyDecode(block cipher.Block, data []byte) {
	bs := block.BlockSize()
	prev := make([]byte, bs)
	scratch := make([]byte, bs)
	for off := 0; off+bs <= len(data); off += bs {
		b := data[off : off+bs]
		copy(scratch, b)
		block.Encrypt(b, b)
		for i := range b {
			b[i] ^= prev[i]
		}
		copy(prev, scratch)
	}
}

func rotateLeft(data []byte) {
	if len(data) == 0 {
		return
	}
	first := data[0]
	copy(data, data[1:])
	data[len(data)-1] = first
}

func shiftLeftBit(data []byte) {
	for n := 0; n < len(data)-1; n++ {
		data[n] = (data[n] << 1) | (data[n+1] >> 7)
	}
	data[len(data)-1] <<= 1
}

// cmacSubkeys derives the two RFC 4493 subkeys for the session cipher
func cmacSubkeys(block cipher.Block) (sk1, sk2 []byte) {
	bs := block.BlockSize()
	r := byte(0x87)
	if bs == 8 {
		r = 0x1b
	}

	l := make([]byte, bs)
	block.Encrypt(l, l)

	sk1 = make([]byte, bs)
	copy(sk1, l)
	shiftLeftBit(sk1)
	if l[0]&0x80 != 0 {
		sk1[bs-1] ^= r
	}

	sk2 = make([]byte, bs)
	copy(sk2, sk1)
	shiftLeftBit(sk2)
	if sk1[0]&0x80 != 0 {
		sk2[bs-1] ^= r
	}
	return sk1, sk2
}

// cardCMAC computes the CMAC of data under the session cipher, chaining
// through iv so the card's MAC state tracks the host's
func cardCMAC(block cipher.Block, sk1, sk2, iv, data []byte) []byte {
	bs := block.BlockSize()
	flen := (len(data) + bs - 1) / bs * bs
	if flen == 0 {
		flen = bs
	}

	buf := make([]byte, flen)
	copy(buf, data)
	if len(data) == 0 || len(data)%bs != 0 {
		buf[len(data)] = 0x80
		for i := 0; i < bs; i++ {
			buf[flen-bs+i] ^= sk2[i]
		}
	} else {
		for i := 0; i < bs; i++ {
			buf[flen-bs+i] ^= sk1[i]
		}
	}

	cbcEncrypt(block, iv, buf)

	out := make([]byte, bs)
	copy(out, iv)
	return out
}
