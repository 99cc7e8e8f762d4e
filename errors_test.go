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
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openterm/go-sl032/internal/frame"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"timeout sentinel", ErrTransportTimeout, true},
		{"checksum sentinel", ErrChecksumMismatch, true},
		{"corrupted frame", ErrFrameCorrupted, true},
		{"wrapped timeout", fmt.Errorf("read frame: %w", ErrTransportTimeout), true},
		{"timeout transport error", NewTimeoutError("read", "/dev/ttyUSB0"), true},
		{"permanent transport error",
			NewTransportError("open", "/dev/ttyUSB0", ErrTransportClosed, ErrorTypePermanent), false},
		{"reader collision", &ReaderError{Op: "select", Status: frame.StatusCollision}, true},
		{"reader checksum complaint", &ReaderError{Op: "send", Status: frame.StatusChecksumErr}, true},
		{"reader no tag", &ReaderError{Op: "select", Status: frame.StatusNoTag}, false},
		{"no card", ErrNoCard, false},
		{"card error", &CardError{Op: "read data", Code: StatusBoundaryError}, false},
		{"crypto failure", ErrCryptoVerification, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"closed transport", ErrTransportClosed, true},
		{"eof", io.EOF, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"permanent transport error",
			NewTransportError("open", "", ErrTransportClosed, ErrorTypePermanent), true},
		{"timeout", ErrTransportTimeout, false},
		{"no card", ErrNoCard, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestIsCryptoError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCryptoError(fmt.Errorf("read data: %w", ErrCryptoVerification)))
	assert.False(t, IsCryptoError(ErrTransportTimeout))
}

func TestCardErrorClassifiers(t *testing.T) {
	t.Parallel()

	authErr := &CardError{Op: "read data", Code: StatusAuthenticationError}
	assert.True(t, authErr.IsAuthenticationError())
	assert.False(t, authErr.IsPermissionError())

	permErr := &CardError{Op: "write data", Code: StatusPermissionDenied}
	assert.True(t, permErr.IsPermissionError())
	assert.Contains(t, permErr.Error(), "permission denied")
}

func TestReaderErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ReaderError{Op: "select card", Cmd: frame.CmdSelectCard, Status: frame.StatusCollision}
	assert.Contains(t, err.Error(), "select card")
	assert.Contains(t, err.Error(), "0x0A")
}

func TestTraceableError(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("mock", "sim", 2)
	tb.RecordTX([]byte{0xBA, 0x02, 0x01, 0xB9}, "")
	tb.RecordTimeout("after 0 bytes")

	err := tb.WrapError(fmt.Errorf("read frame: %w", ErrTransportTimeout))
	require.Error(t, err)

	assert.True(t, HasTrace(err))
	assert.ErrorIs(t, err, ErrTransportTimeout, "wrapping must preserve the error chain")

	trace := GetTrace(err)
	require.NotNil(t, trace)
	assert.Len(t, trace.Trace, 2)
	assert.Equal(t, "mock", trace.Transport)

	assert.NoError(t, tb.WrapError(nil))
}

func TestTraceBufferEviction(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("mock", "", 2)
	tb.RecordTX([]byte{0x01}, "first")
	tb.RecordTX([]byte{0x02}, "second")
	tb.RecordTX([]byte{0x03}, "third")

	err := tb.WrapError(errors.New("boom"))
	trace := GetTrace(err)
	require.NotNil(t, trace)
	require.Len(t, trace.Trace, 2)
	assert.Equal(t, "second", trace.Trace[0].Note)
	assert.Equal(t, "third", trace.Trace[1].Note)
}
