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

	"github.com/openterm/go-sl032/internal/frame"
)

// TestAuthenticate_LegacyDES scripts the card side of the legacy
// three-pass handshake with the transport write hook, so the whole
// exchange runs deterministically against the real crypto.
func TestAuthenticate_LegacyDES(t *testing.T) {
	t.Parallel()

	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)

	tag, mock := connectedTag(t)
	rndB := []byte{0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7}
	var rndA []byte

	mock.SetOnWrite(func(buf []byte) {
		if buf[2] != frame.CmdTCL {
			return
		}
		payload := buf[3 : len(buf)-1]

		switch payload[0] {
		case cmdAuthenticateLegacy:
			// pass 1: eK(RndB), deciphered host-side with a zero IV
			challenge := make([]byte, 8)
			copy(challenge, rndB)
			key.block.Encrypt(challenge, challenge)
			queueCardResponse(mock, StatusAdditionalFrame, challenge...)

		case StatusAdditionalFrame:
			// pass 2: undo the decipher-chained token to recover
			// RndA || rol(RndB)
			token := make([]byte, 16)
			copy(token, payload[1:])
			plain := make([]byte, 16)
			key.block.Encrypt(plain[:8], token[:8])
			key.block.Encrypt(plain[8:], token[8:])
			xorBytes(plain[8:], token[:8])

			expected := make([]byte, 8)
			copy(expected, rndB)
			rotateLeft(expected)
			if !assert.Equal(t, expected, plain[8:]) {
				return
			}
			rndA = plain[:8]

			// pass 3: eK(rol(RndA))
			reply := make([]byte, 8)
			copy(reply, rndA)
			rotateLeft(reply)
			key.block.Encrypt(reply, reply)
			queueCardResponse(mock, StatusOperationOK, reply...)
		}
	})

	require.NoError(t, tag.Authenticate(0, key))

	keyNo, ok := tag.AuthenticatedKeyNo()
	require.True(t, ok)
	assert.Equal(t, uint8(0), keyNo)

	// session key interleaves the two challenges
	require.NotNil(t, tag.sessionKey)
	expected := append(append([]byte{}, rndA[:4]...), rndB[:4]...)
	assert.Equal(t, expected, tag.sessionKey.KeyData()[:8])
	assert.Equal(t, [maxCryptoBlockSize]byte{}, tag.ivect, "IV starts fresh after authentication")
}

func TestAuthenticate_Inactive(t *testing.T) {
	t.Parallel()

	tag := NewTag(mustDevice(t))
	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)
	assert.ErrorIs(t, tag.Authenticate(0, key), ErrTagInactive)
}

func TestAuthenticate_NoSuchKey(t *testing.T) {
	t.Parallel()

	tag, mock := connectedTag(t)
	key, err := NewAESKey(make([]byte, 16), 0)
	require.NoError(t, err)
	queueCardResponse(mock, StatusNoSuchKey)

	var cardErr *CardError
	require.ErrorAs(t, tag.Authenticate(13, key), &cardErr)
	assert.Equal(t, byte(StatusNoSuchKey), cardErr.Code)
}

func TestAuthenticate_ShortChallenge(t *testing.T) {
	t.Parallel()

	tag, mock := connectedTag(t)
	key, err := NewAESKey(make([]byte, 16), 0)
	require.NoError(t, err)
	queueCardResponse(mock, StatusAdditionalFrame, 0x01, 0x02, 0x03)

	assert.ErrorIs(t, tag.Authenticate(0, key), ErrFrameCorrupted)
}

func TestAuthenticate_BogusPass3(t *testing.T) {
	t.Parallel()

	key, err := NewDESKey(make([]byte, 8))
	require.NoError(t, err)

	tag, mock := connectedTag(t)
	mock.SetOnWrite(func(buf []byte) {
		if buf[2] != frame.CmdTCL {
			return
		}
		payload := buf[3 : len(buf)-1]
		switch payload[0] {
		case cmdAuthenticateLegacy:
			queueCardResponse(mock, StatusAdditionalFrame,
				0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88)
		case StatusAdditionalFrame:
			// a wrong pass 3 token cannot match rol(RndA)
			queueCardResponse(mock, StatusOperationOK,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
		}
	})

	assert.ErrorIs(t, tag.Authenticate(0, key), ErrAuthenticationFailed)
	assert.Nil(t, tag.sessionKey)

	_, ok := tag.AuthenticatedKeyNo()
	assert.False(t, ok)
}

// a failed authentication must drop any previous session
func TestAuthenticate_FailureClearsSession(t *testing.T) {
	t.Parallel()

	tag, mock := connectedTag(t)
	previous, err := NewAESKey(make([]byte, 16), 0)
	require.NoError(t, err)
	tag.sessionKey = previous
	tag.authKeyNo = 1

	key, err := NewAESKey(make([]byte, 16), 0)
	require.NoError(t, err)
	queueCardResponse(mock, StatusAuthenticationError)

	var cardErr *CardError
	require.ErrorAs(t, tag.Authenticate(0, key), &cardErr)
	assert.Nil(t, tag.sessionKey)

	_, ok := tag.AuthenticatedKeyNo()
	assert.False(t, ok)
}
