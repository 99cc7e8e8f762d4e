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
	"encoding/binary"
	"fmt"
)

// Card command codes at the PICC level
const (
	cmdChangeKeySettings = 0x54
	cmdGetKeySettings    = 0x45
	cmdSetConfiguration  = 0x5C
	cmdChangeKey         = 0xC4
	cmdGetKeyVersion     = 0x64
	cmdCreateApplication = 0xCA
	cmdDeleteApplication = 0xDA
	cmdGetApplicationIDs = 0x6A
	cmdGetFreeMemory     = 0x6E
	cmdGetDFNames        = 0x6D
	cmdSelectApplication = 0x5A
	cmdFormatPICC        = 0xFC
	cmdGetVersion        = 0x60
	cmdGetCardUID        = 0x51
)

// Application crypto selectors ORed into the key settings byte at
// application creation
const (
	ApplicationCryptoDES    = 0x00
	ApplicationCrypto3K3DES = 0x40
	ApplicationCryptoAES    = 0x80
)

// aidSize is the wire size of an application identifier
const aidSize = 3

// MaxApplicationCount is the most applications one card can hold
const MaxApplicationCount = 28

// maxChainedResponse bounds reassembled responses whose length the
// command cannot predict. Larger than the storage of any card.
const maxChainedResponse = 64 * 1024

// additionalFrame requests the next frame of a chained response
var additionalFrame = []byte{StatusAdditionalFrame}

func le16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

func le24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func le32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func appendLE16(dst []byte, v uint16) []byte {
	return append(dst, byte(v), byte(v>>8))
}

func appendLE24(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16))
}

func appendLE32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// transceive runs one secured exchange: cmd goes through the outbound
// secure messaging pipeline with txSettings, is exchanged over T=CL,
// and the response comes back through the inbound pipeline with
// rxSettings. The returned slice is the response payload followed by
// the (zeroed) status byte.
func (t *Tag) transceive(op string, cmd []byte, offset, txSettings, rxSettings int) ([]byte, error) {
	p, err := t.preprocessData(cmd, offset, txSettings)
	if err != nil {
		return nil, err
	}

	resp, err := t.device.exchangeTCL(p)
	if err != nil {
		return nil, err
	}

	status := resp[len(resp)-1]
	t.lastPICCError = status
	if status != StatusOperationOK {
		return nil, &CardError{Op: op, Code: status}
	}

	return t.postprocessData(resp, rxSettings)
}

// transceiveChained is transceive for commands whose response spans
// multiple frames. Frame payloads are accumulated until the card stops
// answering 0xAF or the reassembled response exceeds limit bytes; a
// card that chains past the limit is misbehaving and the exchange is
// abandoned. Additional-frame requests are sent bare so the chained IV
// only advances on the initial command.
func (t *Tag) transceiveChained(op string, cmd []byte, offset, txSettings, rxSettings, limit int) ([]byte, error) {
	p, err := t.preprocessData(cmd, offset, txSettings)
	if err != nil {
		return nil, err
	}

	var data []byte
	for {
		resp, err := t.device.exchangeTCL(p)
		if err != nil {
			return nil, err
		}

		status := resp[len(resp)-1]
		t.lastPICCError = status
		if status != StatusOperationOK && status != StatusAdditionalFrame {
			return nil, &CardError{Op: op, Code: status}
		}

		data = append(data, resp[:len(resp)-1]...)
		if status == StatusOperationOK {
			break
		}
		if len(data) > limit {
			return nil, fmt.Errorf("%s: %d bytes chained: %w", op, len(data), ErrResponseTooLong)
		}
		p = additionalFrame
	}

	data = append(data, StatusOperationOK)
	return t.postprocessData(data, rxSettings)
}

// ChangeKeySettings changes the key settings of the card or of the
// currently selected application. The settings byte travels enciphered
// under the session key.
func (t *Tag) ChangeKeySettings(settings byte) error {
	if !t.active {
		return ErrTagInactive
	}
	if t.authKeyNo == notYetAuthenticated {
		return ErrNotAuthenticated
	}

	cmd := []byte{cmdChangeKeySettings, settings}
	_, err := t.transceive("change key settings", cmd, 1,
		CommEnciphered|encCommand,
		CommPlain|cmacCommand|cmacVerify|macCommand|macVerify)
	return err
}

// GetKeySettings returns the key settings byte and the number of keys
// of the card or of the currently selected application
func (t *Tag) GetKeySettings() (settings, maxKeys byte, err error) {
	if !t.active {
		return 0, 0, ErrTagInactive
	}

	cmd := []byte{cmdGetKeySettings}
	p, err := t.transceive("get key settings", cmd, 1,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	if err != nil {
		return 0, 0, err
	}
	if len(p) < 3 {
		return 0, 0, fmt.Errorf("get key settings: %w", ErrFrameCorrupted)
	}

	return p[0], p[1] & 0x0f, nil
}

// SetConfiguration sets the card configuration flags: disableFormat
// permanently disables FormatPICC, enableRandomUID permanently switches
// the card to random UIDs. Both are irreversible on the card.
func (t *Tag) SetConfiguration(disableFormat, enableRandomUID bool) error {
	if !t.active {
		return ErrTagInactive
	}

	var flags byte
	if enableRandomUID {
		flags |= 0x02
	}
	if disableFormat {
		flags |= 0x01
	}

	cmd := []byte{cmdSetConfiguration, 0x00, flags}
	_, err := t.transceive("set configuration", cmd, 2,
		CommEnciphered|encCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// SetDefaultKey sets the default key installed on newly created
// applications
func (t *Tag) SetDefaultKey(key *Key) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := make([]byte, 0, 27)
	cmd = append(cmd, cmdSetConfiguration, 0x01)
	cmd = append(cmd, key.KeyData()...)
	for len(cmd) < 26 {
		cmd = append(cmd, 0x00)
	}
	cmd = append(cmd, key.Version())

	_, err := t.transceive("set default key", cmd, 2,
		CommEnciphered|encCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// SetAts replaces the answer-to-select the card returns on activation.
// ats carries its own length in the first byte. The CRC is computed
// over the plain command here, so the enciphering below must not add
// its own.
func (t *Tag) SetAts(ats []byte) error {
	if !t.active {
		return ErrTagInactive
	}
	if len(ats) == 0 || int(ats[0]) != len(ats) {
		return fmt.Errorf("set ats: %w: bad length byte", ErrInvalidParameter)
	}

	cmd := make([]byte, 0, 2+len(ats)+5)
	cmd = append(cmd, cmdSetConfiguration, 0x02)
	cmd = append(cmd, ats...)

	switch t.scheme {
	case authSchemeLegacy:
		crc := crc16(cmd[2:])
		cmd = append(cmd, byte(crc), byte(crc>>8))
	case authSchemeNew:
		cmd = crc32Append(cmd)
	}
	cmd = append(cmd, 0x80)

	_, err := t.transceive("set ats", cmd, 2,
		CommEnciphered|noCRC|encCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// ChangeKey replaces the key keyNo with newKey. When the key being
// changed is not the authenticated key the new key data is XORed with
// oldKey and a second CRC over the plain new key is added, per the
// card's change key protocol. At the card level the key number also
// selects the crypto method of the new card master key.
func (t *Tag) ChangeKey(keyNo uint8, newKey, oldKey *Key) error {
	if !t.active {
		return ErrTagInactive
	}
	if t.authKeyNo == notYetAuthenticated {
		return ErrNotAuthenticated
	}

	keyNo &= 0x0f
	if t.selectedApp == 0 {
		switch newKey.Type() {
		case KeyType3K3DES:
			keyNo |= 0x40
		case KeyTypeAES:
			keyNo |= 0x80
		}
	}

	newKeyData := newKey.KeyData()

	cmd := make([]byte, 0, 42)
	cmd = append(cmd, cmdChangeKey, keyNo)
	cmd = append(cmd, newKeyData...)

	changingOtherKey := t.authKeyNo&0x0f != keyNo&0x0f
	if changingOtherKey && oldKey != nil {
		for i := range newKeyData {
			cmd[2+i] ^= oldKey.data[i]
		}
	}

	if newKey.Type() == KeyTypeAES {
		cmd = append(cmd, newKey.Version())
	}

	switch t.scheme {
	case authSchemeLegacy:
		crc := crc16(cmd[2:])
		cmd = append(cmd, byte(crc), byte(crc>>8))
		if changingOtherKey {
			crc = crc16(newKeyData)
			cmd = append(cmd, byte(crc), byte(crc>>8))
		}
	case authSchemeNew:
		cmd = crc32Append(cmd)
		if changingOtherKey {
			crc := crc32Desfire(newKeyData)
			cmd = appendLE32(cmd, crc)
		}
	}

	_, err := t.transceive("change key", cmd, 2,
		CommEnciphered|encCommand|noCRC,
		CommPlain|cmacCommand|cmacVerify)
	if err != nil {
		return err
	}

	// changing the authenticated key invalidates the session
	if !changingOtherKey {
		t.authKeyNo = notYetAuthenticated
		t.sessionKey = nil
	}
	return nil
}

// GetKeyVersion returns the version byte of the key keyNo
func (t *Tag) GetKeyVersion(keyNo uint8) (byte, error) {
	if !t.active {
		return 0, ErrTagInactive
	}

	cmd := []byte{cmdGetKeyVersion, keyNo}
	p, err := t.transceive("get key version", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify|macVerify)
	if err != nil {
		return 0, err
	}
	if len(p) < 2 {
		return 0, fmt.Errorf("get key version: %w", ErrFrameCorrupted)
	}
	return p[0], nil
}

// createApplication is the shared implementation behind the
// CreateApplication variants
func (t *Tag) createApplication(aid uint32, settings1, settings2 byte,
	wantIsoApplication, wantIsoFileIDs bool, isoFileID uint16, isoFileName []byte) error {
	if !t.active {
		return ErrTagInactive
	}

	if wantIsoFileIDs {
		settings2 |= 0x20
	}

	cmd := make([]byte, 0, 22)
	cmd = append(cmd, cmdCreateApplication)
	cmd = appendLE24(cmd, aid)
	cmd = append(cmd, settings1, settings2)
	if wantIsoApplication {
		cmd = appendLE16(cmd, isoFileID)
	}
	cmd = append(cmd, isoFileName...)

	_, err := t.transceive("create application", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify|macVerify)
	return err
}

// CreateApplication creates a new application with numKeys DES/3DES
// keys and the given key settings
func (t *Tag) CreateApplication(aid uint32, settings byte, numKeys byte) error {
	return t.createApplication(aid, settings, numKeys, false, false, 0, nil)
}

// CreateApplicationIso creates a DES/3DES application carrying an ISO
// 7816-4 file identifier and DF name
func (t *Tag) CreateApplicationIso(aid uint32, settings byte, numKeys byte,
	wantIsoFileIDs bool, isoFileID uint16, isoFileName []byte) error {
	return t.createApplication(aid, settings, numKeys, true, wantIsoFileIDs, isoFileID, isoFileName)
}

// CreateApplication3K3DES creates an application keyed with 3K3DES keys
func (t *Tag) CreateApplication3K3DES(aid uint32, settings byte, numKeys byte) error {
	return t.createApplication(aid, settings, ApplicationCrypto3K3DES|numKeys, false, false, 0, nil)
}

// CreateApplication3K3DESIso creates a 3K3DES application carrying an
// ISO 7816-4 file identifier and DF name
func (t *Tag) CreateApplication3K3DESIso(aid uint32, settings byte, numKeys byte,
	wantIsoFileIDs bool, isoFileID uint16, isoFileName []byte) error {
	return t.createApplication(aid, settings, ApplicationCrypto3K3DES|numKeys,
		true, wantIsoFileIDs, isoFileID, isoFileName)
}

// CreateApplicationAES creates an application keyed with AES keys
func (t *Tag) CreateApplicationAES(aid uint32, settings byte, numKeys byte) error {
	return t.createApplication(aid, settings, ApplicationCryptoAES|numKeys, false, false, 0, nil)
}

// CreateApplicationAESIso creates an AES application carrying an ISO
// 7816-4 file identifier and DF name
func (t *Tag) CreateApplicationAESIso(aid uint32, settings byte, numKeys byte,
	wantIsoFileIDs bool, isoFileID uint16, isoFileName []byte) error {
	return t.createApplication(aid, settings, ApplicationCryptoAES|numKeys,
		true, wantIsoFileIDs, isoFileID, isoFileName)
}

// DeleteApplication deactivates the application aid. Deleting the
// currently selected application drops the selection back to the card
// level.
func (t *Tag) DeleteApplication(aid uint32) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := make([]byte, 0, 4)
	cmd = append(cmd, cmdDeleteApplication)
	cmd = appendLE24(cmd, aid)

	_, err := t.transceive("delete application", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	if err != nil {
		return err
	}

	if t.selectedApp == aid {
		t.selectedApp = 0
	}
	return nil
}

// GetApplicationIDs lists the identifiers of all applications on the
// card. The response spans two frames when more than 19 applications
// exist.
func (t *Tag) GetApplicationIDs() ([]uint32, error) {
	if !t.active {
		return nil, ErrTagInactive
	}

	cmd := []byte{cmdGetApplicationIDs}
	p, err := t.transceiveChained("get application ids", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify|macVerify,
		MaxApplicationCount*aidSize+cmacLength)
	if err != nil {
		return nil, err
	}

	count := (len(p) - 1) / aidSize
	aids := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		aids = append(aids, le24(p[i*aidSize:]))
	}
	return aids, nil
}

// GetFreeMemory returns the free card storage in bytes
func (t *Tag) GetFreeMemory() (uint32, error) {
	if !t.active {
		return 0, ErrTagInactive
	}

	cmd := []byte{cmdGetFreeMemory}
	p, err := t.transceive("get free memory", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	if err != nil {
		return 0, err
	}
	if len(p) < 4 {
		return 0, fmt.Errorf("get free memory: %w", ErrFrameCorrupted)
	}
	return le24(p), nil
}

// DFName is one entry of the card's directory of ISO 7816-4 application
// names
type DFName struct {
	AID  uint32
	FID  uint16
	Name []byte
}

// GetDFNames lists the ISO DF names of all applications. Each
// application answers in a frame of its own.
func (t *Tag) GetDFNames() ([]DFName, error) {
	if !t.active {
		return nil, ErrTagInactive
	}

	cmd := []byte{cmdGetDFNames}
	p, err := t.preprocessData(cmd, 0, CommPlain|cmacCommand)
	if err != nil {
		return nil, err
	}

	var names []DFName
	for frames := 0; ; frames++ {
		resp, err := t.device.exchangeTCL(p)
		if err != nil {
			return nil, err
		}

		status := resp[len(resp)-1]
		t.lastPICCError = status
		if status != StatusOperationOK && status != StatusAdditionalFrame {
			return nil, &CardError{Op: "get df names", Code: status}
		}

		if len(resp) > 1 {
			payload := resp[:len(resp)-1]
			if len(payload) < aidSize+2 {
				return nil, fmt.Errorf("get df names: %w", ErrFrameCorrupted)
			}
			names = append(names, DFName{
				AID:  le24(payload),
				FID:  le16(payload[3:]),
				Name: append([]byte(nil), payload[5:]...),
			})
		}

		if status == StatusOperationOK {
			return names, nil
		}
		// One frame per application; a card chaining past the
		// application limit is misbehaving.
		if frames+1 >= MaxApplicationCount {
			return nil, fmt.Errorf("get df names: %d frames chained: %w",
				frames+1, ErrResponseTooLong)
		}
		p = additionalFrame
	}
}

// SelectApplication selects the application aid, or the card level for
// aid 0. Any authentication is invalidated by the card.
func (t *Tag) SelectApplication(aid uint32) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := make([]byte, 0, 4)
	cmd = append(cmd, cmdSelectApplication)
	cmd = appendLE24(cmd, aid)

	_, err := t.transceive("select application", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand)
	if err != nil {
		return err
	}

	t.selectedApp = aid
	t.authKeyNo = notYetAuthenticated
	t.sessionKey = nil
	return nil
}

// FormatPICC releases all applications and files. The card storage is
// wiped but the card master key and its settings survive.
func (t *Tag) FormatPICC() error {
	if !t.active {
		return ErrTagInactive
	}
	if t.authKeyNo == notYetAuthenticated {
		return ErrNotAuthenticated
	}

	cmd := []byte{cmdFormatPICC}
	_, err := t.transceive("format picc", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// VersionComponent is the hardware or software half of the card version
type VersionComponent struct {
	VendorID     byte
	Type         byte
	Subtype      byte
	VersionMajor byte
	VersionMinor byte
	StorageSize  byte
	Protocol     byte
}

// VersionInfo is the card's manufacturing data as reported by
// GetVersion
type VersionInfo struct {
	Hardware       VersionComponent
	Software       VersionComponent
	UID            [UIDLength]byte
	BatchNumber    [5]byte
	ProductionWeek byte
	ProductionYear byte
}

func parseVersionComponent(b []byte) VersionComponent {
	return VersionComponent{
		VendorID:     b[0],
		Type:         b[1],
		Subtype:      b[2],
		VersionMajor: b[3],
		VersionMinor: b[4],
		StorageSize:  b[5],
		Protocol:     b[6],
	}
}

// GetVersion returns the card's manufacturing data. The card answers in
// three chained frames of 7, 7 and 14 bytes.
func (t *Tag) GetVersion() (*VersionInfo, error) {
	if !t.active {
		return nil, ErrTagInactive
	}

	cmd := []byte{cmdGetVersion}
	p, err := t.transceiveChained("get version", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify,
		28+cmacLength)
	if err != nil {
		return nil, err
	}
	if len(p) < 29 {
		return nil, fmt.Errorf("get version: %w", ErrFrameCorrupted)
	}

	info := &VersionInfo{
		Hardware:       parseVersionComponent(p),
		Software:       parseVersionComponent(p[7:]),
		ProductionWeek: p[26],
		ProductionYear: p[27],
	}
	copy(info.UID[:], p[14:21])
	copy(info.BatchNumber[:], p[21:26])
	return info, nil
}

// GetCardUID returns the real card UID, readable under any
// authentication even when the card is configured for random UIDs
func (t *Tag) GetCardUID() ([]byte, error) {
	if !t.active {
		return nil, ErrTagInactive
	}
	if t.authKeyNo == notYetAuthenticated {
		return nil, ErrNotAuthenticated
	}

	cmd := []byte{cmdGetCardUID}
	p, err := t.transceive("get card uid", cmd, 1,
		CommPlain|cmacCommand,
		CommEnciphered)
	if err != nil {
		return nil, err
	}
	if len(p) < UIDLength+1 {
		return nil, fmt.Errorf("get card uid: %w", ErrFrameCorrupted)
	}

	uid := make([]byte, UIDLength)
	copy(uid, p)
	return uid, nil
}
