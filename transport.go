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
	"sync"
	"time"

	"github.com/openterm/go-sl032/internal/frame"
)

// Transport is the byte-level serial link to the SL032 reader. Framing,
// checksums and timeouts above the single-byte level belong to the Device;
// the transport only moves bytes and enforces the per-byte read deadline.
type Transport interface {
	// Write sends raw bytes to the reader
	Write(data []byte) error

	// ReadByte returns the next byte from the reader, blocking for at
	// most the configured byte timeout. A lapsed deadline is reported
	// as ErrTransportTimeout.
	ReadByte() (byte, error)

	// SetTimeout sets the per-byte read deadline
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType

	// Close closes the transport connection
	Close() error
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport provides a mock implementation of Transport for testing.
// Received bytes are scripted by queueing whole reader frames; writes are
// recorded for inspection.
type MockTransport struct {
	readErr   error
	writeErr  error
	rx        []byte
	written   [][]byte
	onWrite   func(data []byte)
	timeout   time.Duration
	mu        sync.Mutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   200 * time.Millisecond,
	}
}

// Write implements Transport
func (m *MockTransport) Write(data []byte) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return ErrTransportClosed
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	m.written = append(m.written, dataCopy)
	onWrite := m.onWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(dataCopy)
	}
	return nil
}

// ReadByte implements Transport. An empty receive queue behaves like a
// countdown expiry on the wire.
func (m *MockTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0, ErrTransportClosed
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.rx) == 0 {
		return 0, ErrTransportTimeout
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

// SetTimeout implements Transport
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// Test helper methods

// QueueBytes appends raw bytes to the receive queue
func (m *MockTransport) QueueBytes(data ...byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// QueueFrame builds a complete reader frame (preamble, length, command,
// status, data, checksum) and appends it to the receive queue
func (m *MockTransport) QueueFrame(cmd, status byte, data ...byte) {
	buf := make([]byte, 0, len(data)+5)
	buf = append(buf, frame.PreambleReader, byte(len(data)+3), cmd, status)
	buf = append(buf, data...)
	buf = append(buf, frame.Checksum(buf))
	m.QueueBytes(buf...)
}

// SetOnWrite installs a callback invoked after every successful Write,
// letting tests script responses based on the frame just sent
func (m *MockTransport) SetOnWrite(fn func(data []byte)) {
	m.mu.Lock()
	m.onWrite = fn
	m.mu.Unlock()
}

// SetReadError makes subsequent ReadByte calls fail with err
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetWriteError makes subsequent Write calls fail with err
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Written returns all frames written so far
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// Pending returns the number of unread bytes in the receive queue
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// Reset clears scripted state and reconnects the transport
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.rx = nil
	m.written = nil
	m.readErr = nil
	m.writeErr = nil
	m.onWrite = nil
	m.connected = true
	m.mu.Unlock()
}
