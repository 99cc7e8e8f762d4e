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

package detection

import (
	"context"
	"fmt"
	"path/filepath"

	"go.bug.st/serial"
)

// serialPort is one enumerated port with whatever USB metadata the
// platform could supply
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// enumeratePorts lists candidate serial ports for scanning
func enumeratePorts(ctx context.Context) ([]serialPort, error) {
	ports, err := listPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	if len(ports) == 0 {
		return nil, ErrNoDevicesFound
	}
	return ports, nil
}

// listPortsBasic enumerates ports through the serial library without
// USB metadata. Platforms with richer sources layer metadata on top.
func listPortsBasic(_ context.Context) ([]serialPort, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}

	ports := make([]serialPort, 0, len(names))
	for _, name := range names {
		ports = append(ports, serialPort{
			Path: name,
			Name: filepath.Base(name),
		})
	}
	return ports, nil
}
