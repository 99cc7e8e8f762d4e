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

import "bytes"

// Communication modes. A file's communication settings select one of
// these; the secure messaging layer combines them with the direction
// flags below.
const (
	// CommPlain transfers data in the clear (CMACed under the modern
	// authentication schemes)
	CommPlain = 0x00
	// CommMACed appends a MAC or CMAC to plain data
	CommMACed = 0x01
	// CommEnciphered encrypts data with a CRC under the session key
	CommEnciphered = 0x03

	commModeMask = 0x0f
)

// Direction flags ORed into the communication settings passed through
// the secure messaging pipeline
const (
	cmacCommand = 0x0010
	cmacVerify  = 0x0020
	macCommand  = 0x0100
	macVerify   = 0x0200
	encCommand  = 0x1000
	noCRC       = 0x2000
)

const (
	macLength  = 4
	cmacLength = 8
)

// authScheme selects between the legacy DES/3DES authentication crypto
// and the ISO/AES scheme
type authScheme uint8

const (
	authSchemeLegacy authScheme = iota
	authSchemeNew
)

// chainDir is the CBC chaining direction
type chainDir uint8

const (
	chainDirSend chainDir = iota
	chainDirReceive
)

// cipherOp selects encryption or decryption of a block
type cipherOp uint8

const (
	opEncipher cipherOp = iota
	opDecipher
)

// paddedDataLength rounds nbytes up to a multiple of the block size.
// Zero-length data still occupies one block.
func paddedDataLength(nbytes, blockSize int) int {
	if nbytes == 0 || nbytes%blockSize != 0 {
		return (nbytes/blockSize + 1) * blockSize
	}
	return nbytes
}

// encipheredDataLength is the padded length of nbytes of payload plus
// the CRC the current scheme appends (unless suppressed)
func (t *Tag) encipheredDataLength(nbytes, settings int) int {
	crcLength := 0
	if settings&noCRC == 0 {
		if t.scheme == authSchemeLegacy {
			crcLength = 2
		} else {
			crcLength = 4
		}
	}
	return paddedDataLength(nbytes+crcLength, t.sessionKey.BlockSize())
}

// cipherSingleBlock runs one block through the cipher with CBC chaining.
// Send direction XORs the IV in before the cipher and chains the output;
// receive direction chains the input and XORs the IV in after.
func cipherSingleBlock(key *Key, data, ivect []byte, dir chainDir, op cipherOp) {
	var ovect [maxCryptoBlockSize]byte
	if dir == chainDirSend {
		xorBytes(data, ivect)
	} else {
		copy(ovect[:], data)
	}

	if op == opEncipher {
		key.block.Encrypt(data, data)
	} else {
		key.block.Decrypt(data, data)
	}

	if dir == chainDirSend {
		copy(ivect, data)
	} else {
		xorBytes(data, ivect)
		copy(ivect, ovect[:len(data)])
	}
}

// cipherBlocksChained CBC-chains data block by block in place. When a
// tag is given, key and ivect default to the tag's session key and IV;
// the legacy scheme resets the IV before every chain (it never carries
// the IV across commands).
func cipherBlocksChained(t *Tag, key *Key, ivect, data []byte, dir chainDir, op cipherOp) {
	if t != nil {
		if key == nil {
			key = t.sessionKey
		}
		if ivect == nil {
			ivect = t.iv()
		}
		if t.scheme == authSchemeLegacy {
			for i := range ivect {
				ivect[i] = 0
			}
		}
	}
	if key == nil {
		return
	}

	bs := key.BlockSize()
	for off := 0; off+bs <= len(data); off += bs {
		cipherSingleBlock(key, data[off:off+bs], ivect, dir, op)
	}
}

// preprocessData runs an outbound command through the secure messaging
// pipeline for the given communication settings. The first offset bytes
// (command and headers) are excluded from MACing and encryption. The
// returned slice aliases either data or the tag's crypto scratch
// buffer.
//
// Plain mode under the modern schemes still computes a CMAC over the
// buffer to keep the chained IV in step with the card, but does not
// append it.
func (t *Tag) preprocessData(data []byte, offset, settings int) ([]byte, error) {
	key := t.sessionKey
	if key == nil {
		return data, nil
	}

	res := data
	appendMAC := true

	switch settings & commModeMask {
	case CommPlain:
		if t.scheme == authSchemeLegacy {
			break
		}
		appendMAC = false
		fallthrough

	case CommMACed:
		switch t.scheme {
		case authSchemeLegacy:
			if settings&macCommand == 0 {
				break
			}
			// CBC-MAC: encipher zero-padded data, MAC is the first
			// 4 bytes of the last block
			edl := paddedDataLength(len(data)-offset, key.BlockSize()) + offset
			res = t.ensureCryptoBuffer(edl)
			copy(res, data)
			for i := len(data); i < edl; i++ {
				res[i] = 0
			}
			cipherBlocksChained(t, nil, nil, res[offset:edl], chainDirSend, opEncipher)

			var mac [macLength]byte
			copy(mac[:], res[edl-8:])
			res = t.ensureCryptoBuffer(len(data) + macLength)
			copy(res, data)
			copy(res[len(data):], mac[:])
			res = res[:len(data)+macLength]

		case authSchemeNew:
			if settings&cmacCommand == 0 {
				break
			}
			t.cmacLast = cmac(key, t.iv(), data)
			if appendMAC {
				res = t.ensureCryptoBuffer(len(data) + cmacLength)
				copy(res, data)
				copy(res[len(data):], t.cmacLast[:cmacLength])
				res = res[:len(data)+cmacLength]
			}
		}

	case CommEnciphered:
		if settings&encCommand == 0 {
			break
		}
		edl := t.encipheredDataLength(len(data)-offset, settings) + offset
		res = t.ensureCryptoBuffer(edl)
		copy(res, data)
		n := len(data)
		if settings&noCRC == 0 {
			switch t.scheme {
			case authSchemeLegacy:
				crc := crc16(res[offset:n])
				res[n] = byte(crc)
				res[n+1] = byte(crc >> 8)
				n += 2
			case authSchemeNew:
				crc := crc32Desfire(res[:n])
				res[n] = byte(crc)
				res[n+1] = byte(crc >> 8)
				res[n+2] = byte(crc >> 16)
				res[n+3] = byte(crc >> 24)
				n += 4
			}
		}
		for i := n; i < edl; i++ {
			res[i] = 0
		}

		// legacy scheme "encrypts" outbound data with the decipher
		// primitive
		op := opDecipher
		if t.scheme == authSchemeNew {
			op = opEncipher
		}
		cipherBlocksChained(t, nil, nil, res[offset:edl], chainDirSend, op)
		res = res[:edl]

	default:
		return nil, ErrUnsupportedMode
	}

	return res, nil
}

// postprocessData verifies and strips the secure messaging layer from an
// inbound response. data is the payload followed by the status byte;
// the result keeps that shape with MAC, CRC and padding removed. A
// verification failure records a crypto error on the tag.
func (t *Tag) postprocessData(data []byte, settings int) ([]byte, error) {
	key := t.sessionKey
	if key == nil {
		return data, nil
	}
	if len(data) == 1 {
		return data, nil
	}

	res := data

	switch settings & commModeMask {
	case CommPlain:
		if t.scheme == authSchemeLegacy {
			break
		}
		fallthrough

	case CommMACed:
		switch t.scheme {
		case authSchemeLegacy:
			if settings&macVerify == 0 {
				break
			}
			nbytes := len(data) - key.macingLength()
			edl := t.encipheredDataLength(nbytes-1, settings)
			edata := make([]byte, edl)
			copy(edata, data[:nbytes-1])
			cipherBlocksChained(t, nil, nil, edata, chainDirSend, opEncipher)
			if !bytes.Equal(data[nbytes-1:nbytes-1+macLength], edata[edl-8:edl-8+macLength]) {
				t.lastPCDError = CryptoErrorCode
				return nil, ErrCryptoVerification
			}
			res = data[:nbytes]
			res[nbytes-1] = 0x00

		case authSchemeNew:
			if settings&cmacCommand == 0 {
				break
			}
			numCMACBytes := 0
			var firstCMACByte byte
			if settings&cmacVerify != 0 {
				if len(data) < 1+cmacLength {
					break
				}
				// CMAC covers payload plus status, so swap the
				// status byte into the first CMAC slot for the
				// computation
				firstCMACByte = data[len(data)-1-cmacLength]
				data[len(data)-1-cmacLength] = data[len(data)-1]
				numCMACBytes = cmacLength
			}
			t.cmacLast = cmac(key, t.iv(), data[:len(data)-numCMACBytes])
			if settings&cmacVerify != 0 {
				data[len(data)-1-cmacLength] = firstCMACByte
				if !bytes.Equal(t.cmacLast[:cmacLength], data[len(data)-1-cmacLength:len(data)-1]) {
					t.lastPCDError = CryptoErrorCode
					return nil, ErrCryptoVerification
				}
				res = data[:len(data)-cmacLength]
				res[len(res)-1] = 0x00
			}
		}

	case CommEnciphered:
		nbytes := len(data) - 1
		verified := false

		cipherBlocksChained(t, nil, nil, data[:nbytes], chainDirReceive, opDecipher)

		// The CRC position is not known in advance: padding is
		// optional and a verified CRC stays zero while accumulating
		// zero bytes, so scan from the lowest possible position up.
		var crcPos int
		switch t.scheme {
		case authSchemeLegacy:
			// CRC can straddle the last two blocks
			crcPos = nbytes - 8 - 1
			if crcPos < 0 {
				crcPos = 0
			}
		case authSchemeNew:
			// CRC covers payload plus status, so slot the status
			// byte in between payload and CRC before scanning
			res = t.ensureCryptoBuffer(nbytes + 1)
			copy(res, data[:nbytes])
			crcPos = nbytes - 16 - 3
			if crcPos < 0 {
				crcPos = 0
			}
			copy(res[crcPos+1:nbytes+1], res[crcPos:nbytes])
			res[crcPos] = 0x00
			crcPos++
			nbytes++
		}

		for {
			var crc uint32
			var endCrcPos int
			switch t.scheme {
			case authSchemeLegacy:
				endCrcPos = crcPos + 2
				if endCrcPos > nbytes {
					break
				}
				crc = uint32(crc16(res[:endCrcPos]))
			case authSchemeNew:
				endCrcPos = crcPos + 4
				if endCrcPos > nbytes {
					break
				}
				crc = crc32Desfire(res[:endCrcPos])
			}
			if endCrcPos > nbytes {
				break
			}

			if crc == 0 {
				verified = true
				// anything between CRC and status must be
				// 0x80 00..00 padding
				for n := endCrcPos; n < nbytes-1; n++ {
					b := res[n]
					if !(b == 0x00 || (b == 0x80 && n == endCrcPos)) {
						verified = false
					}
				}
			}

			if verified {
				nbytes = crcPos
				if t.scheme == authSchemeLegacy {
					res[nbytes] = 0x00
					nbytes++
				}
				res = res[:nbytes]
				break
			}

			if t.scheme == authSchemeNew {
				res[crcPos-1], res[crcPos] = res[crcPos], res[crcPos-1]
			}
			crcPos++
			if endCrcPos >= nbytes {
				break
			}
		}

		if !verified {
			t.lastPCDError = CryptoErrorCode
			return nil, ErrCryptoVerification
		}

	default:
		return nil, ErrUnsupportedMode
	}

	return res, nil
}
