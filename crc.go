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

// crc16 computes the ISO 14443-A CRC_A (ITU-T V.41, preset 0x6363) used
// by the legacy DESFire authentication scheme
func crc16(data []byte) uint16 {
	reg := uint16(0x6363)
	for _, b := range data {
		bt := b ^ byte(reg&0xff)
		bt ^= bt << 4
		reg = (reg >> 8) ^ (uint16(bt) << 8) ^ (uint16(bt) << 3) ^ (uint16(bt) >> 4)
	}
	return reg
}

// crc16Append appends the CRC_A of data, LSB first
func crc16Append(data []byte) []byte {
	crc := crc16(data)
	return append(data, byte(crc&0xff), byte(crc>>8))
}

// crc32Desfire computes the DESFire flavor of CRC32: reversed 0xEDB88320
// polynomial, preset 0xFFFFFFFF and no final complement.
func crc32Desfire(data []byte) uint32 {
	reg := uint32(0xffffffff)
	for _, b := range data {
		reg ^= uint32(b)
		for i := 0; i < 8; i++ {
			popped := reg & 1
			reg >>= 1
			if popped != 0 {
				reg ^= 0xedb88320
			}
		}
	}
	return reg
}

// crc32Append appends the DESFire CRC32 of data, least significant byte
// first
func crc32Append(data []byte) []byte {
	crc := crc32Desfire(data)
	return append(data,
		byte(crc),
		byte(crc>>8),
		byte(crc>>16),
		byte(crc>>24))
}
