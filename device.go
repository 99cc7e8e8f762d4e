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
	"fmt"
	"time"

	"github.com/openterm/go-sl032/internal/frame"
	"github.com/openterm/go-sl032/internal/syncutil"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// ByteTimeout is the restartable per-byte receive countdown. The
	// reader is considered silent when no byte arrives within it.
	ByteTimeout time.Duration
	// TraceSize is the number of wire operations kept for error reports
	TraceSize int
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		ByteTimeout: 200 * time.Millisecond,
		TraceSize:   16,
	}
}

// Device represents an SL032 reader attached over a byte transport.
// Frame exchanges are serialized with an internal mutex; higher layers
// (Tag) remain single-session.
type Device struct {
	transport Transport
	config    *DeviceConfig
	trace     *TraceBuffer
	mu        syncutil.Mutex
}

// Option configures a Device during New
type Option func(*Device) error

// WithByteTimeout overrides the per-byte receive countdown
func WithByteTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: byte timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.ByteTimeout = timeout
		return nil
	}
}

// WithTraceSize overrides the wire trace buffer capacity
func WithTraceSize(size int) Option {
	return func(d *Device) error {
		d.config.TraceSize = size
		return nil
	}
}

// New creates a Device on the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	d := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	d.trace = NewTraceBuffer(string(transport.Type()), "", d.config.TraceSize)
	return d, nil
}

// Close closes the underlying transport
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// DetectedTag describes a card found in the reader's field
type DetectedTag struct {
	DetectedAt time.Time
	UID        []byte
	CardType   byte
}

// command sends one reader command and returns the validated response
// frame. The response must echo the command code.
func (d *Device) command(cmd byte, payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.trace.Clear()
	if err := d.sendFrame(cmd, payload); err != nil {
		return nil, d.trace.WrapError(err)
	}
	buf, err := d.receiveFrame()
	if err != nil {
		return nil, d.trace.WrapError(err)
	}
	if frame.Command(buf) != cmd {
		return nil, d.trace.WrapError(fmt.Errorf("%w: sent 0x%02X, echoed 0x%02X",
			ErrCommandEcho, cmd, frame.Command(buf)))
	}
	return buf, nil
}

// DetectTag polls once for any card in the field. A collision (more
// than one card present) is not reported as a detection.
func (d *Device) DetectTag() (*DetectedTag, error) {
	uid, cardType, err := d.selectCard()
	if err != nil {
		return nil, err
	}
	return &DetectedTag{
		UID:        uid,
		CardType:   cardType,
		DetectedAt: time.Now(),
	}, nil
}

// selectCard asks the reader to select a card. Returns the UID and the
// reader-reported card type.
func (d *Device) selectCard() (uid []byte, cardType byte, err error) {
	buf, err := d.command(frame.CmdSelectCard, nil)
	if err != nil {
		return nil, 0, err
	}
	if status := frame.Status(buf); status != frame.StatusSuccess {
		if status == frame.StatusNoTag {
			return nil, 0, ErrNoCard
		}
		return nil, 0, &ReaderError{Op: "select card", Cmd: frame.CmdSelectCard, Status: status}
	}
	// data section is the 7 byte UID followed by the card type
	if int(buf[1]) < 3+UIDLength+1 {
		return nil, 0, fmt.Errorf("select card: %w", ErrFrameCorrupted)
	}
	uid = make([]byte, UIDLength)
	copy(uid, buf[4:4+UIDLength])
	cardType = buf[buf[1]]
	return uid, cardType, nil
}

// requestATS asks the selected card for its answer-to-select, moving it
// into the ISO 14443-4 protocol state required for transparent
// exchanges
func (d *Device) requestATS() error {
	buf, err := d.command(frame.CmdRATS, nil)
	if err != nil {
		return err
	}
	if status := frame.Status(buf); status != frame.StatusSuccess {
		return &ReaderError{Op: "request ATS", Cmd: frame.CmdRATS, Status: status}
	}
	return nil
}

// exchangeTCL performs one transparent T=CL exchange with the selected
// card. The returned slice is the card's response payload followed by
// its status byte, so callers always find the status at the end.
func (d *Device) exchangeTCL(data []byte) ([]byte, error) {
	buf, err := d.command(frame.CmdTCL, data)
	if err != nil {
		return nil, err
	}
	if status := frame.Status(buf); status != frame.StatusSuccess {
		return nil, &ReaderError{Op: "T=CL exchange", Cmd: frame.CmdTCL, Status: status}
	}
	// reader frame data is the card status followed by the payload;
	// relocate the status behind the payload
	if int(buf[1]) < 4 {
		return nil, fmt.Errorf("T=CL exchange: %w", ErrFrameCorrupted)
	}
	rxlen := int(buf[1]) - 3
	out := make([]byte, rxlen)
	copy(out, buf[5:5+rxlen-1])
	out[rxlen-1] = buf[4]
	return out, nil
}
