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

// Package detection finds SL032 readers attached to the host. The
// reader is a bare TTL serial module, so it shows up as whatever
// USB-serial adapter it sits behind; detection enumerates serial
// ports, filters by descriptor, and optionally probes each candidate
// with a select-card command to confirm the protocol.
package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sl032 "github.com/openterm/go-sl032"
	"github.com/openterm/go-sl032/transport/uart"
)

// Mode represents the level of invasiveness for reader detection
type Mode int

const (
	// Passive mode only checks port descriptors without any communication
	Passive Mode = iota
	// Safe mode probes descriptor-likely ports with a select-card command
	Safe
	// Full mode probes every enumerated port
	Full
)

// Confidence represents how sure detection is about a candidate
type Confidence int

const (
	// Low confidence - a serial port that could carry an SL032
	Low Confidence = iota
	// Medium confidence - descriptors match a known adapter pairing
	Medium
	// High confidence - the port answered a select-card command
	High
)

// DeviceInfo describes one detected reader candidate
type DeviceInfo struct {
	// Additional metadata (VID:PID, manufacturer, product, serial)
	Metadata map[string]string
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// Human-readable port name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the candidate
func (d DeviceInfo) String() string {
	confidence := "unknown"
	switch d.Confidence {
	case Low:
		confidence = "low"
	case Medium:
		confidence = "medium"
	case High:
		confidence = "high"
	}
	return fmt.Sprintf("serial device at %s (confidence: %s)", d.Path, confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Port paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Per-port probe timeout
	ProbeTimeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		ProbeTimeout: 500 * time.Millisecond,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Errors
var (
	// ErrNoDevicesFound indicates no SL032 readers were detected
	ErrNoDevicesFound = errors.New("no SL032 readers found")
	// ErrDetectionCancelled indicates the context ended mid-scan
	ErrDetectionCancelled = errors.New("detection cancelled")
)

// DetectAll searches all serial ports for SL032 readers
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	if opts.EnableCache {
		if cached, found := getCached(opts.CacheTTL); found {
			devices := filterDevices(cached, opts)
			if len(devices) == 0 {
				return nil, ErrNoDevicesFound
			}
			return devices, nil
		}
	}

	ports, err := enumeratePorts(ctx)
	if err != nil {
		return nil, err
	}

	devices, err := scanPorts(ctx, ports, opts)
	if err != nil {
		return nil, err
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(devices)
		} else {
			// Clear stale cache when no readers found. Without this,
			// a cached result for a now-disconnected reader persists
			// until TTL expiry, pointing consumers at a dead path.
			clearCache()
		}
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

// DetectFirst returns the single best candidate, preferring higher
// confidence
func DetectFirst(ctx context.Context, opts *Options) (DeviceInfo, error) {
	devices, err := DetectAll(ctx, opts)
	if err != nil {
		return DeviceInfo{}, err
	}

	best := devices[0]
	for _, d := range devices[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, nil
}

// scanPorts walks the candidate ports sequentially. Probing is serial
// on purpose: hammering every port at once can wedge unrelated
// devices sharing the bus.
func scanPorts(ctx context.Context, ports []serialPort, opts *Options) ([]DeviceInfo, error) {
	var devices []DeviceInfo

	for i := range ports {
		select {
		case <-ctx.Done():
			return nil, ErrDetectionCancelled
		default:
		}

		device, ok := considerPort(&ports[i], opts)
		if ok {
			devices = append(devices, device)
		}
	}

	return devices, nil
}

// considerPort applies filtering, descriptor scoring and probing to a
// single port
func considerPort(port *serialPort, opts *Options) (DeviceInfo, bool) {
	if port.VIDPID != "" && IsBlocked(port.VIDPID, opts.Blocklist) {
		return DeviceInfo{}, false
	}
	if IsPathIgnored(port.Path, opts.IgnorePaths) {
		return DeviceInfo{}, false
	}

	confidence, shouldProbe := portHandling(port, opts.Mode)
	if opts.Mode == Passive && !isLikelyReader(port) {
		return DeviceInfo{}, false
	}

	device := deviceInfo(port, confidence)

	if shouldProbe {
		if probePort(port.Path, opts.ProbeTimeout) {
			device.Confidence = High
		} else if opts.Mode == Safe && !isLikelyReader(port) {
			// In safe mode, drop unlikely ports that do not answer
			return DeviceInfo{}, false
		}
	}

	return device, true
}

// portHandling decides the starting confidence and whether to probe
func portHandling(port *serialPort, mode Mode) (Confidence, bool) {
	switch mode {
	case Passive:
		if isLikelyReader(port) {
			return Medium, false
		}
		return Low, false

	case Safe:
		if isLikelyReader(port) {
			return Medium, true
		}
		return Low, true

	case Full:
		return Low, true

	default:
		return Low, false
	}
}

// deviceInfo builds a DeviceInfo from port data
func deviceInfo(port *serialPort, confidence Confidence) DeviceInfo {
	device := DeviceInfo{
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}

	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Manufacturer != "" {
		device.Metadata["manufacturer"] = port.Manufacturer
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// isLikelyReader checks whether a port's descriptors match the
// USB-serial adapters SL032 boards usually sit behind
func isLikelyReader(port *serialPort) bool {
	knownAdapters := []string{
		"067B:2303", // Prolific PL2303
		"0403:6001", // FTDI FT232
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
	}

	for _, known := range knownAdapters {
		if port.VIDPID == known {
			return true
		}
	}

	keywords := []string{"sl032", "stronglink", "rfid", "nfc", "13.56"}
	product := strings.ToLower(port.Product)
	manufacturer := strings.ToLower(port.Manufacturer)
	for _, keyword := range keywords {
		if strings.Contains(product, keyword) || strings.Contains(manufacturer, keyword) {
			return true
		}
	}

	return false
}

// probePort opens the port and sends one select-card command. Any
// well-formed reader frame back, card present or not, confirms the
// protocol. A single attempt only: retrying against ports that turn
// out to be other hardware can wedge them.
func probePort(path string, timeout time.Duration) bool {
	transport, err := uart.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	device, err := sl032.New(transport, sl032.WithByteTimeout(timeout))
	if err != nil {
		return false
	}

	_, err = device.DetectTag()
	if err == nil || errors.Is(err, sl032.ErrNoCard) {
		return true
	}
	var readerErr *sl032.ReaderError
	return errors.As(err, &readerErr)
}

// filterDevices applies IgnorePaths and Blocklist filtering to a
// cached device list, since cached results bypass the scan loop that
// applied them originally
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}
