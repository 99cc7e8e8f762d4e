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

// sl032tool is a small card inspector: it finds an SL032 reader, waits
// for a DESFire card and prints its identity and layout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sl032 "github.com/openterm/go-sl032"
	"github.com/openterm/go-sl032/detection"
	"github.com/openterm/go-sl032/transport/uart"
)

var (
	flagDevice   string
	flagDebug    bool
	flagLog      bool
	flagTimeout  time.Duration
	flagFullScan bool
)

func init() {
	flag.StringVar(&flagDevice, "device", "", "Serial port of the reader (auto-detect if empty)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable wire debug output")
	flag.BoolVar(&flagLog, "log", false, "Write a session log file in the current directory")
	flag.DurationVar(&flagTimeout, "timeout", 30*time.Second, "How long to wait for a card")
	flag.BoolVar(&flagFullScan, "full-scan", false, "Probe every serial port during auto-detection")
}

func main() {
	flag.Parse()

	if flagDebug {
		sl032.SetDebugEnabled(true)
	}
	if flagLog {
		path, err := sl032.InitSessionLog()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sl032tool: session log: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session log: %s\n", path)
		defer func() { _ = sl032.CloseSessionLog() }()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sl032tool: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	path := flagDevice
	if path == "" {
		detected, err := detectReader(ctx)
		if err != nil {
			return err
		}
		path = detected.Path
		fmt.Printf("Reader: %s\n", detected)
	}

	transport, err := uart.New(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = transport.Close() }()

	device, err := sl032.New(transport)
	if err != nil {
		return fmt.Errorf("initialize reader: %w", err)
	}

	tag, err := waitForCard(ctx, device)
	if err != nil {
		return err
	}
	defer func() { _ = tag.Disconnect() }()

	return inspect(tag)
}

// detectReader scans serial ports for an SL032
func detectReader(ctx context.Context) (detection.DeviceInfo, error) {
	opts := detection.DefaultOptions()
	if flagFullScan {
		opts.Mode = detection.Full
	}

	device, err := detection.DetectFirst(ctx, &opts)
	if err != nil {
		return detection.DeviceInfo{}, fmt.Errorf("reader detection: %w", err)
	}
	return device, nil
}

// waitForCard polls until a DESFire card enters the field
func waitForCard(ctx context.Context, device *sl032.Device) (*sl032.Tag, error) {
	fmt.Println("Waiting for card...")

	deadline := time.Now().Add(flagTimeout)
	tag := sl032.NewTag(device)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("cancelled: %w", ctx.Err())
		default:
		}

		err := tag.ConnectWithRetry(ctx, nil)
		if err == nil {
			return tag, nil
		}
		if !errors.Is(err, sl032.ErrNoCard) && !sl032.IsRetryable(err) {
			return nil, fmt.Errorf("connect: %w", err)
		}

		time.Sleep(250 * time.Millisecond)
	}

	return nil, errors.New("no card seen before timeout")
}

// inspect prints the card's identity and application layout
func inspect(tag *sl032.Tag) error {
	fmt.Printf("Card UID:  %s\n", tag.UID())

	info, err := tag.GetVersion()
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	fmt.Printf("Hardware:  vendor 0x%02X, type 0x%02X.%02X, version %d.%d, storage 0x%02X\n",
		info.Hardware.VendorID, info.Hardware.Type, info.Hardware.Subtype,
		info.Hardware.VersionMajor, info.Hardware.VersionMinor, info.Hardware.StorageSize)
	fmt.Printf("Software:  version %d.%d\n",
		info.Software.VersionMajor, info.Software.VersionMinor)
	fmt.Printf("Produced:  week %02X of 20%02X, batch % X\n",
		info.ProductionWeek, info.ProductionYear, info.BatchNumber)

	aids, err := tag.GetApplicationIDs()
	if err != nil {
		return fmt.Errorf("get application ids: %w", err)
	}
	if len(aids) == 0 {
		fmt.Println("Applications: none")
		return nil
	}

	fmt.Printf("Applications (%d):\n", len(aids))
	for _, aid := range aids {
		fmt.Printf("  %06X", aid)
		if err := tag.SelectApplication(aid); err != nil {
			fmt.Printf("  (select failed: %v)\n", err)
			continue
		}
		files, err := tag.GetFileIDs()
		if err != nil {
			fmt.Printf("  (files unreadable: %v)\n", err)
			continue
		}
		fmt.Printf("  files: %d\n", len(files))
	}
	return nil
}
