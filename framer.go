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
	"errors"
	"fmt"

	"github.com/openterm/go-sl032/internal/frame"
)

// sendFrame builds one host frame and writes it to the reader in a
// single transport write
func (d *Device) sendFrame(cmd byte, payload []byte) error {
	if len(payload) > frame.MaxFrameSize {
		return fmt.Errorf("%w: %d byte payload", ErrFrameTooLarge, len(payload))
	}

	buf := frame.Build(cmd, payload)
	d.trace.RecordTX(buf, "")
	Debugf("TX: % X", buf)

	if err := d.transport.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// receiveFrame reads one reader frame byte by byte. The length byte
// arrives second and fixes the total frame size; the receive countdown
// restarts with every byte, so a silent reader times out after one
// byte period rather than one frame period.
func (d *Device) receiveFrame() ([]byte, error) {
	if err := d.transport.SetTimeout(d.config.ByteTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	buf := make([]byte, 0, frame.MaxFrameSize+5)
	for len(buf) < 2 || len(buf) < int(buf[1])+frame.LenOverhead {
		b, err := d.transport.ReadByte()
		if err != nil {
			d.trace.RecordTimeout(fmt.Sprintf("after %d bytes", len(buf)))
			return nil, fmt.Errorf("read frame: %w", err)
		}
		buf = append(buf, b)
		if len(buf) == 2 && int(buf[1])+frame.LenOverhead > cap(buf) {
			return nil, fmt.Errorf("%w: length byte 0x%02X", ErrFrameTooLarge, buf[1])
		}
	}

	d.trace.RecordRX(buf, "")
	Debugf("RX: % X", buf)

	if err := frame.Validate(buf); err != nil {
		if errors.Is(err, frame.ErrChecksum) {
			return nil, fmt.Errorf("validate frame: %w", ErrChecksumMismatch)
		}
		return nil, fmt.Errorf("validate frame: %w", ErrFrameCorrupted)
	}
	return buf, nil
}
