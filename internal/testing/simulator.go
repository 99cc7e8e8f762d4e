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

// Package testing provides a wire-accurate SL032 reader simulator and
// a virtual DESFire card for tests that need a full protocol stack
// without hardware.
package testing

import (
	"time"

	sl032 "github.com/openterm/go-sl032"
	"github.com/openterm/go-sl032/internal/syncutil"
)

// Reader frame protocol bytes, mirrored from the wire format
const (
	preambleHost   = 0xBA
	preambleReader = 0xBD

	cmdSelectCard = 0x01
	cmdRATS       = 0x20
	cmdTCL        = 0x21

	readerStatusSuccess     = 0x00
	readerStatusNoTag       = 0x01
	readerStatusATSFail     = 0x10
	readerStatusTCLFail     = 0x11
	readerStatusChecksumErr = 0xF0
	readerStatusCommandErr  = 0xF1
)

// VirtualSL032 emulates an SL032 reader at the byte level. It
// implements the transport interface: host frames written to it are
// parsed, dispatched against the attached virtual card, and the reader
// response frame is queued for byte-wise reads.
type VirtualSL032 struct {
	mu syncutil.Mutex

	card        *VirtualCard
	cardPresent bool

	rx       []byte
	commands []byte
	readErr  error
	writeErr error
	closed   bool
}

// NewVirtualSL032 creates a simulated reader with the given card in
// its field. A nil card simulates an empty field.
func NewVirtualSL032(card *VirtualCard) *VirtualSL032 {
	return &VirtualSL032{
		card:        card,
		cardPresent: card != nil,
	}
}

// RemoveCard takes the card out of the RF field
func (s *VirtualSL032) RemoveCard() {
	s.mu.Lock()
	s.cardPresent = false
	s.mu.Unlock()
}

// InsertCard puts a card into the RF field
func (s *VirtualSL032) InsertCard(card *VirtualCard) {
	s.mu.Lock()
	s.card = card
	s.cardPresent = card != nil
	s.mu.Unlock()
}

// Card returns the attached virtual card
func (s *VirtualSL032) Card() *VirtualCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.card
}

// CommandLog returns the reader command codes received so far
func (s *VirtualSL032) CommandLog() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.commands))
	copy(out, s.commands)
	return out
}

// SetReadError makes subsequent reads fail with err
func (s *VirtualSL032) SetReadError(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

// SetWriteError makes subsequent writes fail with err
func (s *VirtualSL032) SetWriteError(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// Write receives one host frame and queues the reader's response
func (s *VirtualSL032) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sl032.ErrTransportClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}

	if len(data) < 4 || data[0] != preambleHost || int(data[1])+2 != len(data) {
		// a real reader stays silent on garbage it cannot frame
		return nil
	}

	cmd := data[2]
	s.commands = append(s.commands, cmd)

	chk := byte(0)
	for _, b := range data[:len(data)-1] {
		chk ^= b
	}
	if chk != data[len(data)-1] {
		s.queueResponse(cmd, readerStatusChecksumErr, nil)
		return nil
	}

	s.dispatch(cmd, data[3:len(data)-1])
	return nil
}

// dispatch handles one framed reader command
func (s *VirtualSL032) dispatch(cmd byte, payload []byte) {
	switch cmd {
	case cmdSelectCard:
		if !s.cardPresent {
			s.queueResponse(cmd, readerStatusNoTag, nil)
			return
		}
		s.card.Deselect()
		data := make([]byte, 0, 8)
		data = append(data, s.card.UID[:]...)
		data = append(data, sl032.CardTypeDESFire)
		s.queueResponse(cmd, readerStatusSuccess, data)

	case cmdRATS:
		if !s.cardPresent {
			s.queueResponse(cmd, readerStatusATSFail, nil)
			return
		}
		s.queueResponse(cmd, readerStatusSuccess, s.card.ATS)

	case cmdTCL:
		if !s.cardPresent {
			s.queueResponse(cmd, readerStatusTCLFail, nil)
			return
		}
		resp, cardStatus := s.card.Exchange(payload)
		data := make([]byte, 0, len(resp)+1)
		data = append(data, cardStatus)
		data = append(data, resp...)
		s.queueResponse(cmd, readerStatusSuccess, data)

	default:
		s.queueResponse(cmd, readerStatusCommandErr, nil)
	}
}

// queueResponse frames a reader response and appends it to the read
// queue. The trailing checksum makes the whole frame XOR to zero.
func (s *VirtualSL032) queueResponse(cmd, status byte, data []byte) {
	buf := make([]byte, 0, len(data)+5)
	buf = append(buf, preambleReader, byte(len(data)+3), cmd, status)
	buf = append(buf, data...)
	chk := byte(0)
	for _, b := range buf {
		chk ^= b
	}
	buf = append(buf, chk)
	s.rx = append(s.rx, buf...)
}

// ReadByte returns the next queued response byte
func (s *VirtualSL032) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, sl032.ErrTransportClosed
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	if len(s.rx) == 0 {
		return 0, sl032.NewTimeoutError("sim.ReadByte", "sim")
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, nil
}

// SetTimeout is a no-op for the simulator
func (s *VirtualSL032) SetTimeout(_ time.Duration) error {
	return nil
}

// IsConnected reports whether the simulator is open
func (s *VirtualSL032) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Type returns the transport type
func (*VirtualSL032) Type() sl032.TransportType {
	return sl032.TransportMock
}

// Close shuts the simulator down
func (s *VirtualSL032) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
