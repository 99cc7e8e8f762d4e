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
	"time"

	sl032 "github.com/openterm/go-sl032"
	"github.com/openterm/go-sl032/internal/syncutil"
)

// JitterConfig controls the timing faults a JitteryTransport injects
type JitterConfig struct {
	// ReadLatency delays every byte read
	ReadLatency time.Duration
	// StallAfterBytes makes one read time out after this many bytes
	// have been delivered. Zero disables stalling.
	StallAfterBytes int
	// CorruptByte XORs this mask into the byte at CorruptOffset.
	// Zero disables corruption.
	CorruptByte byte
	// CorruptOffset is the read position to corrupt
	CorruptOffset int
}

// JitteryTransport wraps a transport and injects the delivery faults
// of a marginal serial link: per-byte latency, a mid-frame stall, and
// single-byte corruption. Used to exercise the framer's timeout and
// checksum handling.
type JitteryTransport struct {
	inner   sl032.Transport
	config  JitterConfig
	mu      syncutil.Mutex
	count   int
	stalled bool
}

// NewJitteryTransport wraps inner with fault injection
func NewJitteryTransport(inner sl032.Transport, config JitterConfig) *JitteryTransport {
	return &JitteryTransport{inner: inner, config: config}
}

// ResetFaultState re-arms the one-shot stall and the byte counter
func (j *JitteryTransport) ResetFaultState() {
	j.mu.Lock()
	j.count = 0
	j.stalled = false
	j.mu.Unlock()
}

// Write passes through unchanged
func (j *JitteryTransport) Write(data []byte) error {
	return j.inner.Write(data)
}

// ReadByte delivers the next byte with the configured faults applied
func (j *JitteryTransport) ReadByte() (byte, error) {
	j.mu.Lock()
	if j.config.StallAfterBytes > 0 && !j.stalled && j.count >= j.config.StallAfterBytes {
		j.stalled = true
		j.mu.Unlock()
		return 0, sl032.NewTimeoutError("jitter.ReadByte", "jitter")
	}
	offset := j.count
	j.count++
	j.mu.Unlock()

	if j.config.ReadLatency > 0 {
		time.Sleep(j.config.ReadLatency)
	}

	b, err := j.inner.ReadByte()
	if err != nil {
		return 0, err
	}
	if j.config.CorruptByte != 0 && offset == j.config.CorruptOffset {
		b ^= j.config.CorruptByte
	}
	return b, nil
}

// SetTimeout passes through unchanged
func (j *JitteryTransport) SetTimeout(timeout time.Duration) error {
	return j.inner.SetTimeout(timeout)
}

// IsConnected passes through unchanged
func (j *JitteryTransport) IsConnected() bool {
	return j.inner.IsConnected()
}

// Type reports the wrapped transport's type
func (j *JitteryTransport) Type() sl032.TransportType {
	return j.inner.Type()
}

// Close closes the wrapped transport
func (j *JitteryTransport) Close() error {
	return j.inner.Close()
}
