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

//go:build linux

package detection

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// listPorts enumerates ports on Linux. USB-backed ttys come from sysfs
// with full VID:PID and descriptor metadata; built-in UARTs are added
// without it. Falls back to the plain serial enumeration if sysfs
// yields nothing.
func listPorts(ctx context.Context) ([]serialPort, error) {
	var ports []serialPort

	if usbPorts, err := listUSBPorts(); err == nil {
		ports = append(ports, usbPorts...)
	}
	ports = append(ports, listBuiltinPorts()...)

	if len(ports) == 0 {
		return listPortsBasic(ctx)
	}
	return ports, nil
}

// listUSBPorts walks /sys/class/tty for USB-backed serial devices
func listUSBPorts() ([]serialPort, error) {
	const ttyDir = "/sys/class/tty"
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil, err
	}

	var ports []serialPort
	for _, entry := range entries {
		if port, ok := usbPortEntry(ttyDir, entry); ok {
			ports = append(ports, port)
		}
	}
	return ports, nil
}

func usbPortEntry(ttyDir string, entry os.DirEntry) (serialPort, bool) {
	if entry.IsDir() {
		return serialPort{}, false
	}

	devicePath := filepath.Join(ttyDir, entry.Name(), "device")
	if _, err := os.Stat(devicePath); err != nil {
		return serialPort{}, false
	}

	resolved, err := filepath.EvalSymlinks(devicePath)
	if err != nil || !strings.Contains(resolved, "/usb") {
		return serialPort{}, false
	}

	port := serialPort{
		Path: "/dev/" + entry.Name(),
		Name: entry.Name(),
	}
	readUSBAttributes(&port, resolved)
	return port, true
}

// readUSBAttributes walks up the sysfs device tree until it finds the
// USB interface carrying idVendor/idProduct
func readUSBAttributes(port *serialPort, devicePath string) {
	current := devicePath
	for n := 0; n < 10; n++ {
		if readUSBIdentifiers(port, current) {
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

func readUSBIdentifiers(port *serialPort, path string) bool {
	if !strings.HasPrefix(filepath.Clean(path), "/sys/") {
		return false
	}

	vid, err := readSysfsAttr(path, "idVendor")
	if err != nil {
		return false
	}
	pid, err := readSysfsAttr(path, "idProduct")
	if err != nil {
		return false
	}
	port.VIDPID = strings.ToUpper(vid + ":" + pid)

	if s, err := readSysfsAttr(path, "manufacturer"); err == nil {
		port.Manufacturer = s
	}
	if s, err := readSysfsAttr(path, "product"); err == nil {
		port.Product = s
	}
	if s, err := readSysfsAttr(path, "serial"); err == nil {
		port.SerialNumber = s
	}
	return true
}

func readSysfsAttr(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(filepath.Join(dir, name))) // #nosec G304 -- dir is validated to be under /sys/
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// listBuiltinPorts returns non-USB serial ports
func listBuiltinPorts() []serialPort {
	var ports []serialPort
	for _, pattern := range []string{"/dev/ttyS*", "/dev/ttyAMA*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{
					Path: path,
					Name: filepath.Base(path),
				})
			}
		}
	}
	return ports
}
