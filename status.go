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

// DESFire status codes, returned by the card as the trailing byte of
// every transparent exchange
const (
	StatusOperationOK         = 0x00 // successful operation
	StatusNoChanges           = 0x0C // no changes done to backup files
	StatusOutOfEEPROM         = 0x0E // insufficient NV memory to complete command
	StatusIllegalCommandCode  = 0x1C // command code not supported
	StatusIntegrityError      = 0x1E // CRC or MAC does not match data
	StatusNoSuchKey           = 0x40 // invalid key number specified
	StatusLengthError         = 0x7E // length of command string invalid
	StatusPermissionDenied    = 0x9D // current configuration or status does not allow command
	StatusParameterError      = 0x9E // value of the parameter(s) invalid
	StatusAppNotFound         = 0xA0 // requested AID not present on PICC
	StatusAppIntegrityError   = 0xA1 // unrecoverable error within application
	StatusAuthenticationError = 0xAE // current authentication status does not allow command
	StatusAdditionalFrame     = 0xAF // additional data frame to be sent
	StatusBoundaryError       = 0xBE // attempt to read or write beyond limits
	StatusPICCIntegrityError  = 0xC1 // unrecoverable error within PICC
	StatusCommandAborted      = 0xCA // previous command not fully completed
	StatusPICCDisabled        = 0xCD // PICC disabled by an unrecoverable error
	StatusCountError          = 0xCE // cannot create more applications
	StatusDuplicateError      = 0xDE // cannot create duplicate file or application
	StatusEEPROMError         = 0xEE // could not complete NV write operation
	StatusFileNotFound        = 0xF0 // specified file number does not exist
	StatusFileIntegrityError  = 0xF1 // unrecoverable error within file
)
