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

// xorBytes XORs src into dst in place
func xorBytes(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// rotateLeft rotates the buffer left by one byte
func rotateLeft(data []byte) {
	if len(data) == 0 {
		return
	}
	first := data[0]
	copy(data, data[1:])
	data[len(data)-1] = first
}

// shiftLeftBit shifts the buffer left by one bit, dropping the high bit
func shiftLeftBit(data []byte) {
	for n := 0; n < len(data)-1; n++ {
		data[n] = (data[n] << 1) | (data[n+1] >> 7)
	}
	data[len(data)-1] <<= 1
}

// generateCMACSubkeys derives the two CMAC subkeys (RFC 4493) from the
// key and caches them on it. Must run after every session key derivation
// for the modern authentication schemes.
func (k *Key) generateCMACSubkeys() {
	kbs := k.BlockSize()
	r := byte(0x87)
	if kbs == desBlockSize {
		r = 0x1b
	}

	l := make([]byte, kbs)
	ivect := make([]byte, kbs)
	cipherBlocksChained(nil, k, ivect, l, chainDirReceive, opEncipher)

	k.cmacSK1 = make([]byte, kbs)
	copy(k.cmacSK1, l)
	shiftLeftBit(k.cmacSK1)
	if l[0]&0x80 != 0 {
		k.cmacSK1[kbs-1] ^= r
	}

	k.cmacSK2 = make([]byte, kbs)
	copy(k.cmacSK2, k.cmacSK1)
	shiftLeftBit(k.cmacSK2)
	if k.cmacSK1[0]&0x80 != 0 {
		k.cmacSK2[kbs-1] ^= r
	}
}

// cmac computes the CMAC of data under key, chaining through ivect (which
// is updated, keeping the session IV in sync with the card). Returns the
// full-block MAC; DESFire frames carry its first 8 bytes.
func cmac(key *Key, ivect, data []byte) []byte {
	kbs := key.BlockSize()
	flen := paddedDataLength(len(data), kbs)

	buf := make([]byte, flen)
	copy(buf, data)
	if len(data) == 0 || len(data)%kbs != 0 {
		buf[len(data)] = 0x80
		xorBytes(buf[flen-kbs:], key.cmacSK2)
	} else {
		xorBytes(buf[flen-kbs:], key.cmacSK1)
	}

	cipherBlocksChained(nil, key, ivect, buf, chainDirSend, opEncipher)

	out := make([]byte, kbs)
	copy(out, ivect)
	return out
}
