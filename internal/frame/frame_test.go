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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", nil, 0x00},
		{"single byte", []byte{0xBA}, 0xBA},
		{"select card command", []byte{0xBA, 0x02, 0x01}, 0xB9},
		{"self cancelling", []byte{0x55, 0x55}, 0x00},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Checksum(tt.data))
		})
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("no payload", func(t *testing.T) {
		t.Parallel()
		buf := Build(CmdSelectCard, nil)
		assert.Equal(t, []byte{0xBA, 0x02, 0x01, 0xB9}, buf)
	})

	t.Run("with payload", func(t *testing.T) {
		t.Parallel()
		buf := Build(CmdTCL, []byte{0x60})
		require.Len(t, buf, 5)
		assert.Equal(t, byte(PreambleHost), buf[0])
		assert.Equal(t, byte(0x03), buf[1])
		assert.Equal(t, byte(CmdTCL), buf[2])
		assert.Equal(t, byte(0x60), buf[3])
		assert.Equal(t, Checksum(buf[:4]), buf[4])
	})

	t.Run("length counts command through checksum", func(t *testing.T) {
		t.Parallel()
		payload := []byte{1, 2, 3, 4, 5}
		buf := Build(CmdTCL, payload)
		assert.Equal(t, byte(len(payload)+2), buf[1])
		assert.Len(t, buf, len(payload)+4)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() []byte {
		// reader frame with a two byte data section
		buf := []byte{PreambleReader, 0x05, CmdSelectCard, StatusSuccess, 0xAA, 0xBB}
		return append(buf, Checksum(buf))
	}

	t.Run("valid frame", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, Validate(valid()))
	})

	t.Run("too short", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, Validate([]byte{PreambleReader, 0x03, 0x01}), ErrTooShort)
	})

	t.Run("wrong preamble", func(t *testing.T) {
		t.Parallel()
		buf := valid()
		buf[0] = PreambleHost
		assert.ErrorIs(t, Validate(buf), ErrPreamble)
	})

	t.Run("corrupted byte", func(t *testing.T) {
		t.Parallel()
		buf := valid()
		buf[4] ^= 0x01
		assert.ErrorIs(t, Validate(buf), ErrChecksum)
	})

	t.Run("corrupted checksum", func(t *testing.T) {
		t.Parallel()
		buf := valid()
		buf[len(buf)-1] ^= 0x80
		assert.ErrorIs(t, Validate(buf), ErrChecksum)
	})
}

func TestAccessors(t *testing.T) {
	t.Parallel()

	buf := []byte{PreambleReader, 0x06, CmdTCL, StatusSuccess, 0x00, 0x11, 0x22}
	buf = append(buf, Checksum(buf))
	require.NoError(t, Validate(buf))

	assert.Equal(t, byte(CmdTCL), Command(buf))
	assert.Equal(t, byte(StatusSuccess), Status(buf))
	assert.Equal(t, []byte{0x00, 0x11, 0x22}, Data(buf))
}

func TestData_Empty(t *testing.T) {
	t.Parallel()

	buf := []byte{PreambleReader, 0x03, CmdRATS, StatusATSFail}
	buf = append(buf, Checksum(buf))
	require.NoError(t, Validate(buf))
	assert.Empty(t, Data(buf))
}
