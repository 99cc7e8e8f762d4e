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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSessionTag builds a tag that looks freshly authenticated: session
// key installed, IV zeroed, CMAC subkeys derived for the modern scheme.
func newSessionTag(t *testing.T, scheme authScheme, key *Key) *Tag {
	t.Helper()
	tag := &Tag{scheme: scheme, sessionKey: key}
	if scheme == authSchemeNew {
		key.generateCMACSubkeys()
	}
	return tag
}

func newAESSessionTag(t *testing.T) *Tag {
	t.Helper()
	key, err := NewAESKey(make([]byte, 16), 0)
	require.NoError(t, err)
	return newSessionTag(t, authSchemeNew, key)
}

func TestPaddedDataLength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, paddedDataLength(0, 8))
	assert.Equal(t, 8, paddedDataLength(1, 8))
	assert.Equal(t, 8, paddedDataLength(8, 8))
	assert.Equal(t, 16, paddedDataLength(9, 8))
	assert.Equal(t, 16, paddedDataLength(16, 16))
	assert.Equal(t, 32, paddedDataLength(17, 16))
}

func TestPreprocess_NoSession(t *testing.T) {
	t.Parallel()

	tag := &Tag{}
	cmd := []byte{0x64, 0x01}
	out, err := tag.preprocessData(cmd, 1, CommPlain|cmacCommand)
	require.NoError(t, err)
	assert.Equal(t, cmd, out)
}

func TestPreprocess_PlainKeepsDataUpdatesIV(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	cmd := []byte{0x64, 0x01}
	out, err := tag.preprocessData(cmd, 1, CommPlain|cmacCommand)
	require.NoError(t, err)

	assert.Equal(t, cmd, out, "plain mode must not append the CMAC")
	assert.NotEqual(t, make([]byte, 16), tag.ivect[:], "IV must advance with the CMAC chain")
	assert.Len(t, tag.cmacLast, 16)
}

func TestPreprocess_MACedAppendsCMAC(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	mirror := newAESSessionTag(t)

	cmd := []byte{0xF5, 0x01}
	out, err := tag.preprocessData(cmd, 1, CommMACed|cmacCommand)
	require.NoError(t, err)
	require.Len(t, out, len(cmd)+cmacLength)
	assert.Equal(t, cmd, out[:len(cmd)])

	expected := cmac(mirror.sessionKey, mirror.iv(), cmd)
	assert.Equal(t, expected[:cmacLength], out[len(cmd):])
}

func TestPostprocess_CMACVerify(t *testing.T) {
	t.Parallel()

	// card mirror shares the key material but keeps its own IV chain
	tag := newAESSessionTag(t)
	card := newAESSessionTag(t)

	// both sides chain the command CMAC first
	cmd := []byte{0x64, 0x01}
	_, err := tag.preprocessData(cmd, 1, CommPlain|cmacCommand)
	require.NoError(t, err)
	cmac(card.sessionKey, card.iv(), cmd)

	// card MACs the payload plus trailing status byte
	payload := []byte{0x42}
	mac := cmac(card.sessionKey, card.iv(), append(append([]byte{}, payload...), StatusOperationOK))

	resp := append(append(append([]byte{}, payload...), mac[:cmacLength]...), StatusOperationOK)
	out, err := tag.postprocessData(resp, CommPlain|cmacCommand|cmacVerify)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42, StatusOperationOK}, out)
	assert.Equal(t, card.ivect, tag.ivect, "both IV chains must stay in step")
}

func TestPostprocess_CMACVerify_Corrupted(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	card := newAESSessionTag(t)

	payload := []byte{0x42}
	mac := cmac(card.sessionKey, card.iv(), append(append([]byte{}, payload...), StatusOperationOK))

	resp := append(append(append([]byte{}, payload...), mac[:cmacLength]...), StatusOperationOK)
	resp[2] ^= 0x01

	out, err := tag.postprocessData(resp, CommPlain|cmacCommand|cmacVerify)
	assert.ErrorIs(t, err, ErrCryptoVerification)
	assert.Nil(t, out)
	assert.Equal(t, byte(CryptoErrorCode), tag.lastPCDError)
}

func TestPostprocess_StatusOnlyPassesThrough(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	out, err := tag.postprocessData([]byte{StatusOperationOK}, CommPlain|cmacCommand|cmacVerify)
	require.NoError(t, err)
	assert.Equal(t, []byte{StatusOperationOK}, out)
	assert.Equal(t, make([]byte, 16), tag.ivect[:], "a bare status must not advance the IV")
}

func TestPreprocess_UnsupportedMode(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	_, err := tag.preprocessData([]byte{0x3D}, 1, 0x02)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestPreprocess_EncipheredNewScheme(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	mirror := newAESSessionTag(t)

	cmd := []byte{0x3D, 0x01, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	out, err := tag.preprocessData(cmd, 8, CommEnciphered|encCommand)
	require.NoError(t, err)

	// header stays in the clear, ciphertext rounds up to a block
	assert.Equal(t, cmd[:8], out[:8])
	assert.Len(t, out, 8+16)

	// deciphering card-side must recover data, CRC32 over the whole
	// command, then zero padding
	enc := make([]byte, 16)
	copy(enc, out[8:])
	cipherBlocksChained(mirror, nil, nil, enc, chainDirReceive, opDecipher)
	assert.Equal(t, cmd[8:], enc[:4])
	assert.Equal(t, crc32Append(append([]byte{}, cmd...))[len(cmd):], enc[4:8])
	assert.Equal(t, make([]byte, 8), enc[8:])
}

func TestPostprocess_EncipheredNewScheme(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	card := newAESSessionTag(t)

	// card response: payload, CRC32 over payload plus status, zero
	// padding, all CBC enciphered under the session key
	payload := []byte{0x11, 0x22, 0x33, 0x44, 0x55}
	crc := crc32Desfire(append(append([]byte{}, payload...), StatusOperationOK))
	buf := make([]byte, 16)
	copy(buf, payload)
	buf[5] = byte(crc)
	buf[6] = byte(crc >> 8)
	buf[7] = byte(crc >> 16)
	buf[8] = byte(crc >> 24)
	buf[9] = 0x80
	cipherBlocksChained(card, nil, nil, buf, chainDirSend, opEncipher)

	resp := append(buf, StatusOperationOK)
	out, err := tag.postprocessData(resp, CommEnciphered)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, payload...), StatusOperationOK), out)
}

func TestPostprocess_EncipheredNewScheme_Corrupted(t *testing.T) {
	t.Parallel()

	tag := newAESSessionTag(t)
	card := newAESSessionTag(t)

	payload := []byte{0x11, 0x22, 0x33}
	crc := crc32Desfire(append(append([]byte{}, payload...), StatusOperationOK))
	buf := make([]byte, 16)
	copy(buf, payload)
	buf[3] = byte(crc)
	buf[4] = byte(crc >> 8)
	buf[5] = byte(crc >> 16)
	buf[6] = byte(crc >> 24)
	buf[7] = 0x80
	cipherBlocksChained(card, nil, nil, buf, chainDirSend, opEncipher)
	buf[0] ^= 0x01

	_, err := tag.postprocessData(append(buf, StatusOperationOK), CommEnciphered)
	assert.ErrorIs(t, err, ErrCryptoVerification)
	assert.Equal(t, byte(CryptoErrorCode), tag.lastPCDError)
}

func TestPreprocess_LegacyMAC(t *testing.T) {
	t.Parallel()

	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)
	tag := newSessionTag(t, authSchemeLegacy, key)

	cmd := []byte{0xBD, 0x01, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00}
	out, err := tag.preprocessData(cmd, 1, CommMACed|macCommand)
	require.NoError(t, err)
	require.Len(t, out, len(cmd)+macLength)
	assert.Equal(t, cmd, out[:len(cmd)])

	// legacy CBC-MAC: encipher the zero-padded body with a zero IV, the
	// MAC is the head of the last block
	edl := paddedDataLength(len(cmd)-1, 8)
	ref := make([]byte, edl)
	copy(ref, cmd[1:])
	iv := make([]byte, 8)
	cipherBlocksChained(nil, key, iv, ref, chainDirSend, opEncipher)
	assert.Equal(t, ref[edl-8:edl-8+macLength], out[len(cmd):])
}

func TestPreprocess_EncipheredLegacy(t *testing.T) {
	t.Parallel()

	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)
	tag := newSessionTag(t, authSchemeLegacy, key)

	cmd := []byte{0x3D, 0x01, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	out, err := tag.preprocessData(cmd, 8, CommEnciphered|encCommand)
	require.NoError(t, err)
	assert.Equal(t, cmd[:8], out[:8])
	assert.Len(t, out, 8+8)

	// the legacy scheme sends ciphertext made with the decipher
	// primitive, so the card recovers plaintext by enciphering
	block := make([]byte, 8)
	copy(block, out[8:])
	key.block.Encrypt(block, block)
	assert.Equal(t, cmd[8:], block[:4])
	crc := crc16(cmd[8:])
	assert.Equal(t, []byte{byte(crc), byte(crc >> 8)}, block[4:6])
	assert.Equal(t, []byte{0x00, 0x00}, block[6:8])
}

func TestPostprocess_LegacyMACVerify(t *testing.T) {
	t.Parallel()

	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)
	tag := newSessionTag(t, authSchemeLegacy, key)

	// card-side MAC over the padded payload, zero IV
	payload := []byte{0x10, 0x20, 0x30}
	edl := paddedDataLength(len(payload)+2, 8)
	ref := make([]byte, edl)
	copy(ref, payload)
	iv := make([]byte, 8)
	cipherBlocksChained(nil, key, iv, ref, chainDirSend, opEncipher)

	resp := append(append(append([]byte{}, payload...), ref[edl-8:edl-8+macLength]...), StatusOperationOK)
	out, err := tag.postprocessData(resp, CommMACed|macVerify)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, payload...), StatusOperationOK), out)

	resp2 := append(append(append([]byte{}, payload...), ref[edl-8:edl-8+macLength]...), StatusOperationOK)
	resp2[0] ^= 0x01
	_, err = tag.postprocessData(resp2, CommMACed|macVerify)
	assert.ErrorIs(t, err, ErrCryptoVerification)
}

// legacyEncipheredResponse builds a card-side legacy enciphered
// response: payload, CRC16 over the payload, 0x80 padding, all CBC
// enciphered under the card's session key with a zero IV.
func legacyEncipheredResponse(card *Tag, payload []byte) []byte {
	body := crc16Append(append([]byte{}, payload...))
	edl := paddedDataLength(len(body), card.sessionKey.BlockSize())
	buf := make([]byte, edl)
	n := copy(buf, body)
	if n < edl {
		buf[n] = 0x80
	}
	cipherBlocksChained(card, nil, nil, buf, chainDirSend, opEncipher)
	return append(buf, StatusOperationOK)
}

func TestPostprocess_EncipheredLegacy(t *testing.T) {
	t.Parallel()

	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)
	card, err2 := NewDESKey(make([]byte, 8))
	require.NoError(t, err2)

	tag := newSessionTag(t, authSchemeLegacy, key)
	cardTag := newSessionTag(t, authSchemeLegacy, card)

	payload := []byte{0x10, 0x20, 0x30}
	resp := legacyEncipheredResponse(cardTag, payload)

	out, err := tag.postprocessData(resp, CommEnciphered)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, payload...), StatusOperationOK), out)
}

func TestPostprocess_EncipheredLegacy_Corrupted(t *testing.T) {
	t.Parallel()

	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)
	card, err2 := NewDESKey(make([]byte, 8))
	require.NoError(t, err2)

	tag := newSessionTag(t, authSchemeLegacy, key)
	cardTag := newSessionTag(t, authSchemeLegacy, card)

	resp := legacyEncipheredResponse(cardTag, []byte{0x10, 0x20, 0x30})
	resp[0] ^= 0x01

	_, err = tag.postprocessData(resp, CommEnciphered)
	assert.ErrorIs(t, err, ErrCryptoVerification)
	assert.Equal(t, byte(CryptoErrorCode), tag.lastPCDError)
}

// TestPostprocess_EncipheredAllKeyTypes runs the enciphered receive
// path once per key family, with a second tag of the same session key
// playing the card side.
func TestPostprocess_EncipheredAllKeyTypes(t *testing.T) {
	t.Parallel()

	des := func() (*Key, error) { return NewDESKey(make([]byte, 8)) }
	tdes := func() (*Key, error) {
		return New3DESKey([]byte{
			0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
			0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17,
		})
	}
	tkdes := func() (*Key, error) {
		return New3K3DESKey([]byte{
			0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
			0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17,
			0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27,
		})
	}
	aes := func() (*Key, error) { return NewAESKey(make([]byte, 16), 0) }

	cases := []struct {
		name   string
		newKey func() (*Key, error)
		scheme authScheme
	}{
		{"des", des, authSchemeLegacy},
		{"3des", tdes, authSchemeLegacy},
		{"3k3des", tkdes, authSchemeNew},
		{"aes", aes, authSchemeNew},
	}

	payload := []byte{0x11, 0x22, 0x33, 0x44, 0x55}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			hostKey, err := tc.newKey()
			require.NoError(t, err)
			cardKey, err := tc.newKey()
			require.NoError(t, err)
			tag := newSessionTag(t, tc.scheme, hostKey)
			card := newSessionTag(t, tc.scheme, cardKey)

			var resp []byte
			if tc.scheme == authSchemeLegacy {
				resp = legacyEncipheredResponse(card, payload)
			} else {
				// modern scheme: CRC32 covers payload plus status
				crc := crc32Desfire(append(append([]byte{}, payload...), StatusOperationOK))
				body := append(append([]byte{}, payload...),
					byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
				edl := paddedDataLength(len(body), cardKey.BlockSize())
				buf := make([]byte, edl)
				n := copy(buf, body)
				if n < edl {
					buf[n] = 0x80
				}
				cipherBlocksChained(card, nil, nil, buf, chainDirSend, opEncipher)
				resp = append(buf, StatusOperationOK)
			}

			out, err := tag.postprocessData(resp, CommEnciphered)
			require.NoError(t, err)
			assert.Equal(t, append(append([]byte{}, payload...), StatusOperationOK), out)
		})
	}
}
