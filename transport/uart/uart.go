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

// Package uart provides the serial transport for the SL032 reader.
package uart

import (
	"fmt"
	"sync"
	"time"

	sl032 "github.com/openterm/go-sl032"
	"go.bug.st/serial"
)

// DefaultBaudRate is the SL032 factory baud rate
const DefaultBaudRate = 115200

// Transport implements the sl032.Transport interface over a serial
// port. The reader talks 115200 8N1 with no flow control.
type Transport struct {
	port     serial.Port
	portName string
	readBuf  [1]byte
	mu       sync.Mutex
	closed   bool
}

// New opens the serial port portName and returns a transport bound to
// it
func New(portName string) (*Transport, error) {
	return NewWithBaudRate(portName, DefaultBaudRate)
}

// NewWithBaudRate opens portName at a non-default baud rate, for
// readers reconfigured away from the factory setting
func NewWithBaudRate(portName string, baudRate int) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// Write sends raw bytes to the reader in one port write
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return sl032.ErrTransportClosed
	}

	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART write failed: %w", err)
	}
	if n != len(data) {
		return sl032.NewTransportWriteError("uart.Write", t.portName)
	}
	return nil
}

// ReadByte returns the next byte from the reader. The serial read
// deadline set by SetTimeout applies per byte; a read that returns no
// data within the deadline reports a timeout.
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, sl032.ErrTransportClosed
	}

	n, err := t.port.Read(t.readBuf[:])
	if err != nil {
		return 0, fmt.Errorf("UART read failed: %w", err)
	}
	if n == 0 {
		return 0, sl032.NewTimeoutError("uart.ReadByte", t.portName)
	}
	return t.readBuf[0], nil
}

// SetTimeout sets the per-byte read deadline on the port
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return sl032.ErrTransportClosed
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() sl032.TransportType {
	return sl032.TransportUART
}

// Port returns the name of the underlying serial port
func (t *Transport) Port() string {
	return t.portName
}

// Close closes the serial port. Further operations fail with
// ErrTransportClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}
