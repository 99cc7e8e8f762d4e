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

package sl032

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Error categories for error handling and retry decisions
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")

	// Protocol errors - potentially retryable
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrFrameCorrupted   = errors.New("frame corrupted")
	ErrFrameTooLarge    = errors.New("frame exceeds receive buffer")
	ErrResponseTooLong  = errors.New("chained response exceeds limit")
	ErrCommandEcho      = errors.New("unexpected echoed command")
	ErrCardStatus       = errors.New("unexpected card status")

	// Crypto errors - not retryable without re-authentication
	ErrCryptoVerification = errors.New("MAC/CRC verification failed")
	ErrUnsupportedMode    = errors.New("unsupported communication settings")

	// State errors - not retryable
	ErrTagInactive          = errors.New("tag is not connected")
	ErrTagActive            = errors.New("tag is already connected")
	ErrNotAuthenticated     = errors.New("tag is not authenticated")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnknownKeyType       = errors.New("unknown key type")
	ErrNoCard               = errors.New("no card detected")
	ErrNotDESFire           = errors.New("card is not a DESFire card")

	// Data errors - not retryable
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReaderError reports a failure signalled by the SL032 itself: either a
// non-success status byte or an echoed command that does not match the
// one sent.
type ReaderError struct {
	Op     string // Operation that failed
	Cmd    byte   // Command sent to the reader
	Status byte   // Status byte from the reader frame
}

func (e *ReaderError) Error() string {
	return fmt.Sprintf("%s: reader status 0x%02X (%s)", e.Op, e.Status, readerStatusMeaning(e.Status))
}

// readerStatusMeaning returns a human-readable meaning for SL032 status
// codes, from the SL032 user manual.
func readerStatusMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "operation success",
		0x01: "no tag",
		0x02: "login success",
		0x03: "login fail",
		0x04: "read fail",
		0x05: "write fail",
		0x06: "unable to read after write",
		0x08: "address overflow",
		0x0A: "collision",
		0x0D: "not authenticated",
		0x0E: "not a value block",
		0x10: "ATS failed",
		0x11: "T=CL communication failed",
		0xF0: "checksum error",
		0xF1: "command code error",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown status"
}

// CardError reports a non-success status byte returned by the DESFire
// card itself (the PICC status trailing every transparent exchange).
type CardError struct {
	Op   string // Card operation that failed
	Code byte   // PICC status code
}

func (e *CardError) Error() string {
	return fmt.Sprintf("%s: card status 0x%02X (%s)", e.Op, e.Code, cardStatusMeaning(e.Code))
}

// CryptoErrorCode is a PCD-side status recorded on the tag when secure
// messaging verification fails. It never appears on the wire.
const CryptoErrorCode = 0x01

// cardStatusMeaning returns a human-readable meaning for DESFire status
// codes, from the DESFire datasheet.
func cardStatusMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "operation OK",
		0x0C: "no changes",
		0x0E: "out of EEPROM",
		0x1C: "illegal command code",
		0x1E: "integrity error",
		0x40: "no such key",
		0x7E: "length error",
		0x9D: "permission denied",
		0x9E: "parameter error",
		0xA0: "application not found",
		0xA1: "application integrity error",
		0xAE: "authentication error",
		0xAF: "additional frame",
		0xBE: "boundary error",
		0xC1: "PICC integrity error",
		0xCA: "command aborted",
		0xCD: "PICC disabled",
		0xCE: "count error",
		0xDE: "duplicate error",
		0xEE: "EEPROM error",
		0xF0: "file not found",
		0xF1: "file integrity error",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown status"
}

// IsAuthenticationError returns true if the card refused the operation
// for authentication reasons
func (e *CardError) IsAuthenticationError() bool {
	return e.Code == 0xAE
}

// IsPermissionError returns true if the current configuration does not
// allow the requested command
func (e *CardError) IsPermissionError() bool {
	return e.Code == 0x9D
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	// Reader-side collisions and checksum errors clear up on a re-send;
	// anything the card itself rejected will not.
	var re *ReaderError
	if errors.As(err, &re) {
		return re.Status == 0x0A || re.Status == 0xF0
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrFrameCorrupted):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the reader/connection is
// gone and the caller should stop entirely. This is distinct from
// IsRetryable which indicates whether a single operation can be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// IsCryptoError returns true if the error came from secure messaging
// verification (MAC, CMAC, CRC or padding mismatch)
func IsCryptoError(err error) bool {
	return errors.Is(err, ErrCryptoVerification)
}

// Error constructors for consistent error creation

// NewTransportError creates a standard transport error
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewChecksumMismatchError creates a checksum mismatch error (transient)
func NewChecksumMismatchError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrChecksumMismatch, ErrorTypeTransient)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewFrameCorruptedError creates a frame corruption error (transient)
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// =============================================================================
// Wire Trace Logging
// =============================================================================
// TraceableError embeds wire-level trace data in errors, allowing consumer
// applications to access debug information when operations fail.

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX indicates data sent to the reader
	TraceTX TraceDirection = "TX"
	// TraceRX indicates data received from the reader
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single wire-level operation
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := formatHexBytes(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData)
}

// TraceableError wraps an error with wire-level trace data for debugging.
// Consumer applications can use errors.As() to extract trace information:
//
//	var te *sl032.TraceableError
//	if errors.As(err, &te) {
//	    log.Printf("Wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

// Error implements the error interface
func (e *TraceableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}

	var sb strings.Builder
	_, _ = sb.WriteString(fmt.Sprintf("[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace)))

	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		hexData := formatHexBytes(entry.Data)
		if entry.Note != "" {
			_, _ = sb.WriteString(fmt.Sprintf("  %s %s (%s)\n", direction, hexData, entry.Note))
		} else {
			_, _ = sb.WriteString(fmt.Sprintf("  %s %s\n", direction, hexData))
		}
	}

	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	if len(data) > 32 {
		parts := make([]string, 32)
		for i := 0; i < 32; i++ {
			parts[i] = fmt.Sprintf("%02X", data[i])
		}
		return strings.Join(parts, " ") + fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// TraceBuffer collects trace entries during a command operation.
// It uses a fixed-size circular buffer to limit memory usage.
type TraceBuffer struct {
	transport string
	port      string
	entries   []TraceEntry
	maxSize   int
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(transport, port string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16 // Default to 16 entries
	}
	return &TraceBuffer{
		entries:   make([]TraceEntry, 0, maxSize),
		maxSize:   maxSize,
		transport: transport,
		port:      port,
	}
}

// RecordTX records a transmission to the reader
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records data received from the reader
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// RecordTimeout records a timeout event
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.record(TraceRX, nil, "TIMEOUT: "+note)
}

// record adds an entry to the buffer, evicting oldest if full
func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	// Copy data to avoid aliasing the caller's buffer
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	entry := TraceEntry{
		Direction: dir,
		Data:      dataCopy,
		Timestamp: time.Now(),
		Note:      note,
	}

	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
	} else {
		tb.entries = append(tb.entries, entry)
	}
}

// WrapError wraps an error with the collected trace data.
// Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}

	entriesCopy := make([]TraceEntry, len(tb.entries))
	copy(entriesCopy, tb.entries)

	return &TraceableError{
		Err:       err,
		Trace:     entriesCopy,
		Transport: tb.transport,
		Port:      tb.port,
	}
}

// Clear resets the trace buffer
func (tb *TraceBuffer) Clear() {
	tb.entries = tb.entries[:0]
}

// HasTrace checks if an error contains trace data
func HasTrace(err error) bool {
	var te *TraceableError
	return errors.As(err, &te)
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
