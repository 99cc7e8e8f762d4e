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

import "fmt"

// Card command codes at the application level
const (
	cmdGetFileIDs             = 0x6F
	cmdGetIsoFileIDs          = 0x61
	cmdGetFileSettings        = 0xF5
	cmdChangeFileSettings     = 0x5F
	cmdCreateStdDataFile      = 0xCD
	cmdCreateBackupDataFile   = 0xCB
	cmdCreateValueFile        = 0xCC
	cmdCreateLinearRecordFile = 0xC1
	cmdCreateCyclicRecordFile = 0xC0
	cmdDeleteFile             = 0xDF
	cmdReadData               = 0xBD
	cmdWriteData              = 0x3D
	cmdGetValue               = 0x6C
	cmdCredit                 = 0x0C
	cmdDebit                  = 0xDC
	cmdLimitedCredit          = 0x1C
	cmdWriteRecord            = 0x3B
	cmdReadRecords            = 0xBB
	cmdClearRecordFile        = 0xEB
	cmdCommitTransaction      = 0xC7
	cmdAbortTransaction       = 0xA7
)

// MaxFileCount is the most files one application can hold
const MaxFileCount = 16

// FileType identifies the kind of a card file
type FileType byte

const (
	FileTypeStandardData FileType = 0x00
	FileTypeBackupData   FileType = 0x01
	FileTypeValue        FileType = 0x02
	FileTypeLinearRecord FileType = 0x03
	FileTypeCyclicRecord FileType = 0x04
)

// Access right nibble values beyond the key numbers 0x0..0xD
const (
	// AccessFree grants the operation without authentication
	AccessFree = 0x0E
	// AccessDeny refuses the operation under any authentication
	AccessDeny = 0x0F
)

// AccessRights packs a file's four access right nibbles:
//
//	15         12 11          8 7                 4 3                    0
//	| Read        | Write       | Read&Write       | Change Access Rights |
type AccessRights uint16

// MakeAccessRights builds an access rights word from the four key
// nibbles
func MakeAccessRights(read, write, readWrite, change byte) AccessRights {
	return AccessRights(read)<<12 | AccessRights(write)<<8 |
		AccessRights(readWrite)<<4 | AccessRights(change)
}

// Read returns the key number granting read access
func (ar AccessRights) Read() byte { return byte(ar>>12) & 0x0f }

// Write returns the key number granting write access
func (ar AccessRights) Write() byte { return byte(ar>>8) & 0x0f }

// ReadWrite returns the key number granting combined read/write access
func (ar AccessRights) ReadWrite() byte { return byte(ar>>4) & 0x0f }

// Change returns the key number allowed to change the access rights
func (ar AccessRights) Change() byte { return byte(ar) & 0x0f }

// FileSettings describes a file as reported by GetFileSettings. Only
// the fields matching Type are meaningful.
type FileSettings struct {
	Type          FileType
	Communication byte
	AccessRights  AccessRights

	// standard and backup data files
	FileSize uint32

	// value files
	LowerLimit           int32
	UpperLimit           int32
	LimitedCreditValue   int32
	LimitedCreditEnabled bool

	// record files
	RecordSize     uint32
	MaxRecords     uint32
	CurrentRecords uint32
}

// checkCommMode rejects anything but the three file communication modes
func checkCommMode(mode int) error {
	switch mode {
	case CommPlain, CommMACed, CommEnciphered:
		return nil
	}
	return fmt.Errorf("%w: 0x%02X", ErrUnsupportedMode, mode)
}

// GetFileIDs returns the identifiers of all active files within the
// currently selected application
func (t *Tag) GetFileIDs() ([]byte, error) {
	if !t.active {
		return nil, ErrTagInactive
	}

	cmd := []byte{cmdGetFileIDs}
	p, err := t.transceive("get file ids", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	if err != nil {
		return nil, err
	}

	ids := make([]byte, len(p)-1)
	copy(ids, p)
	return ids, nil
}

// GetIsoFileIDs returns the ISO 7816-4 file identifiers of all files
// within the currently selected application
func (t *Tag) GetIsoFileIDs() ([]uint16, error) {
	if !t.active {
		return nil, ErrTagInactive
	}

	cmd := []byte{cmdGetIsoFileIDs}
	p, err := t.transceiveChained("get iso file ids", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify,
		MaxFileCount*2+cmacLength)
	if err != nil {
		return nil, err
	}

	count := (len(p) - 1) / 2
	ids := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, le16(p[2*i:]))
	}
	return ids, nil
}

// GetFileSettings returns the properties of the file fileNo
func (t *Tag) GetFileSettings(fileNo byte) (*FileSettings, error) {
	if !t.active {
		return nil, ErrTagInactive
	}

	cmd := []byte{cmdGetFileSettings, fileNo}
	p, err := t.transceive("get file settings", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	if err != nil {
		return nil, err
	}
	if len(p) < 5 {
		return nil, fmt.Errorf("get file settings: %w", ErrFrameCorrupted)
	}

	settings := &FileSettings{
		Type:          FileType(p[0]),
		Communication: p[1],
		AccessRights:  AccessRights(le16(p[2:])),
	}

	switch settings.Type {
	case FileTypeStandardData, FileTypeBackupData:
		if len(p) < 8 {
			return nil, fmt.Errorf("get file settings: %w", ErrFrameCorrupted)
		}
		settings.FileSize = le24(p[4:])

	case FileTypeValue:
		if len(p) < 18 {
			return nil, fmt.Errorf("get file settings: %w", ErrFrameCorrupted)
		}
		settings.LowerLimit = int32(le32(p[4:]))
		settings.UpperLimit = int32(le32(p[8:]))
		settings.LimitedCreditValue = int32(le32(p[12:]))
		settings.LimitedCreditEnabled = p[16] != 0

	case FileTypeLinearRecord, FileTypeCyclicRecord:
		if len(p) < 14 {
			return nil, fmt.Errorf("get file settings: %w", ErrFrameCorrupted)
		}
		settings.RecordSize = le24(p[4:])
		settings.MaxRecords = le24(p[7:])
		settings.CurrentRecords = le24(p[10:])

	default:
		return nil, fmt.Errorf("get file settings: %w: file type 0x%02X",
			ErrFrameCorrupted, p[0])
	}

	return settings, nil
}

// ChangeFileSettings changes the communication settings and access
// rights of the file fileNo. The new settings travel enciphered unless
// changing access rights is free on the file.
func (t *Tag) ChangeFileSettings(fileNo byte, communication byte, accessRights AccessRights) error {
	settings, err := t.GetFileSettings(fileNo)
	if err != nil {
		return err
	}

	cmd := make([]byte, 0, 5)
	cmd = append(cmd, cmdChangeFileSettings, fileNo, communication)
	cmd = appendLE16(cmd, uint16(accessRights))

	if settings.AccessRights.Change() == AccessFree {
		_, err = t.transceive("change file settings", cmd, 0,
			CommPlain|cmacCommand,
			CommPlain|cmacCommand|cmacVerify)
	} else {
		_, err = t.transceive("change file settings", cmd, 2,
			CommEnciphered|encCommand,
			CommPlain|cmacCommand|cmacVerify)
	}
	return err
}

// createDataFile is the shared implementation behind the standard and
// backup data file constructors
func (t *Tag) createDataFile(op string, cmdByte, fileNo byte,
	hasIsoFileID bool, isoFileID uint16,
	communication byte, accessRights AccessRights, fileSize uint32) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := make([]byte, 0, 10)
	cmd = append(cmd, cmdByte, fileNo)
	if hasIsoFileID {
		cmd = appendLE16(cmd, isoFileID)
	}
	cmd = append(cmd, communication)
	cmd = appendLE16(cmd, uint16(accessRights))
	cmd = appendLE24(cmd, fileSize)

	_, err := t.transceive(op, cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// CreateStdDataFile creates a standard data file of fileSize bytes
func (t *Tag) CreateStdDataFile(fileNo byte, communication byte,
	accessRights AccessRights, fileSize uint32) error {
	return t.createDataFile("create std data file", cmdCreateStdDataFile,
		fileNo, false, 0, communication, accessRights, fileSize)
}

// CreateStdDataFileIso creates a standard data file carrying an ISO
// 7816-4 file identifier
func (t *Tag) CreateStdDataFileIso(fileNo byte, communication byte,
	accessRights AccessRights, fileSize uint32, isoFileID uint16) error {
	return t.createDataFile("create std data file", cmdCreateStdDataFile,
		fileNo, true, isoFileID, communication, accessRights, fileSize)
}

// CreateBackupDataFile creates a backup data file of fileSize bytes.
// Writes to it only take effect on CommitTransaction.
func (t *Tag) CreateBackupDataFile(fileNo byte, communication byte,
	accessRights AccessRights, fileSize uint32) error {
	return t.createDataFile("create backup data file", cmdCreateBackupDataFile,
		fileNo, false, 0, communication, accessRights, fileSize)
}

// CreateBackupDataFileIso creates a backup data file carrying an ISO
// 7816-4 file identifier
func (t *Tag) CreateBackupDataFileIso(fileNo byte, communication byte,
	accessRights AccessRights, fileSize uint32, isoFileID uint16) error {
	return t.createDataFile("create backup data file", cmdCreateBackupDataFile,
		fileNo, true, isoFileID, communication, accessRights, fileSize)
}

// CreateValueFile creates a file holding one 32 bit signed value
// bounded by lowerLimit and upperLimit
func (t *Tag) CreateValueFile(fileNo byte, communication byte,
	accessRights AccessRights, lowerLimit, upperLimit, value int32,
	limitedCreditEnabled bool) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := make([]byte, 0, 18)
	cmd = append(cmd, cmdCreateValueFile, fileNo, communication)
	cmd = appendLE16(cmd, uint16(accessRights))
	cmd = appendLE32(cmd, uint32(lowerLimit))
	cmd = appendLE32(cmd, uint32(upperLimit))
	cmd = appendLE32(cmd, uint32(value))
	if limitedCreditEnabled {
		cmd = append(cmd, 0x01)
	} else {
		cmd = append(cmd, 0x00)
	}

	_, err := t.transceive("create value file", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// createRecordFile is the shared implementation behind the linear and
// cyclic record file constructors
func (t *Tag) createRecordFile(op string, cmdByte, fileNo byte,
	hasIsoFileID bool, isoFileID uint16,
	communication byte, accessRights AccessRights,
	recordSize, maxRecords uint32) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := make([]byte, 0, 11)
	cmd = append(cmd, cmdByte, fileNo)
	if hasIsoFileID {
		cmd = appendLE16(cmd, isoFileID)
	}
	cmd = append(cmd, communication)
	cmd = appendLE16(cmd, uint16(accessRights))
	cmd = appendLE24(cmd, recordSize)
	cmd = appendLE24(cmd, maxRecords)

	_, err := t.transceive(op, cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// CreateLinearRecordFile creates a record file that refuses further
// writes once maxRecords records are used
func (t *Tag) CreateLinearRecordFile(fileNo byte, communication byte,
	accessRights AccessRights, recordSize, maxRecords uint32) error {
	return t.createRecordFile("create linear record file", cmdCreateLinearRecordFile,
		fileNo, false, 0, communication, accessRights, recordSize, maxRecords)
}

// CreateLinearRecordFileIso creates a linear record file carrying an
// ISO 7816-4 file identifier
func (t *Tag) CreateLinearRecordFileIso(fileNo byte, communication byte,
	accessRights AccessRights, recordSize, maxRecords uint32, isoFileID uint16) error {
	return t.createRecordFile("create linear record file", cmdCreateLinearRecordFile,
		fileNo, true, isoFileID, communication, accessRights, recordSize, maxRecords)
}

// CreateCyclicRecordFile creates a record file that overwrites the
// oldest record once maxRecords records are used
func (t *Tag) CreateCyclicRecordFile(fileNo byte, communication byte,
	accessRights AccessRights, recordSize, maxRecords uint32) error {
	return t.createRecordFile("create cyclic record file", cmdCreateCyclicRecordFile,
		fileNo, false, 0, communication, accessRights, recordSize, maxRecords)
}

// CreateCyclicRecordFileIso creates a cyclic record file carrying an
// ISO 7816-4 file identifier
func (t *Tag) CreateCyclicRecordFileIso(fileNo byte, communication byte,
	accessRights AccessRights, recordSize, maxRecords uint32, isoFileID uint16) error {
	return t.createRecordFile("create cyclic record file", cmdCreateCyclicRecordFile,
		fileNo, true, isoFileID, communication, accessRights, recordSize, maxRecords)
}

// DeleteFile deactivates the file fileNo within the currently selected
// application. The occupied storage is only reclaimed by FormatPICC.
func (t *Tag) DeleteFile(fileNo byte) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := []byte{cmdDeleteFile, fileNo}
	_, err := t.transceive("delete file", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// readCommunicationMode derives the communication mode for reading the
// file fileNo. When the session key grants neither read nor read/write
// access but one of them is free, the card answers in plain regardless
// of the file's communication settings.
func (t *Tag) readCommunicationMode(fileNo byte) (int, error) {
	settings, err := t.GetFileSettings(fileNo)
	if err != nil {
		return 0, err
	}

	readAccess := settings.AccessRights.Read()
	readWriteAccess := settings.AccessRights.ReadWrite()
	if readAccess != t.authKeyNo && readWriteAccess != t.authKeyNo &&
		(readAccess == AccessFree || readWriteAccess == AccessFree) {
		return CommPlain, nil
	}
	return int(settings.Communication), nil
}

// writeCommunicationMode is readCommunicationMode for write access
func (t *Tag) writeCommunicationMode(fileNo byte) (int, error) {
	settings, err := t.GetFileSettings(fileNo)
	if err != nil {
		return 0, err
	}

	writeAccess := settings.AccessRights.Write()
	readWriteAccess := settings.AccessRights.ReadWrite()
	if writeAccess != t.authKeyNo && readWriteAccess != t.authKeyNo &&
		(writeAccess == AccessFree || readWriteAccess == AccessFree) {
		return CommPlain, nil
	}
	return int(settings.Communication), nil
}

// readFileData is the shared read path for data and record files.
// limit bounds the reassembled response.
func (t *Tag) readFileData(op string, cmdByte, fileNo byte,
	offset, length uint32, commMode, limit int) ([]byte, error) {
	if !t.active {
		return nil, ErrTagInactive
	}
	if err := checkCommMode(commMode); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cmd := make([]byte, 0, 8)
	cmd = append(cmd, cmdByte, fileNo)
	cmd = appendLE24(cmd, offset)
	cmd = appendLE24(cmd, length)

	p, err := t.transceiveChained(op, cmd, 8,
		CommPlain|cmacCommand,
		commMode|cmacCommand|cmacVerify|macVerify, limit)
	if err != nil {
		return nil, err
	}
	return p[:len(p)-1], nil
}

// writeFileData is the shared write path for data and record files.
// The whole secured command is built up front and then fed to the card
// in frame-sized chunks, each but the first prefixed with the
// additional frame code.
func (t *Tag) writeFileData(op string, cmdByte, fileNo byte,
	offset uint32, data []byte, commMode int) (int, error) {
	if !t.active {
		return 0, ErrTagInactive
	}
	if err := checkCommMode(commMode); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	cmd := make([]byte, 0, 8+len(data)+cmacLength)
	cmd = append(cmd, cmdByte, fileNo)
	cmd = appendLE24(cmd, offset)
	cmd = appendLE24(cmd, uint32(len(data)))
	cmd = append(cmd, data...)

	p, err := t.preprocessData(cmd, 8, commMode|macCommand|cmacCommand|encCommand)
	if err != nil {
		return 0, err
	}
	overhead := len(p) - len(data)

	var resp []byte
	var status byte
	sent := 0
	chunk := FramePayloadSize - 8
	for sent < len(p) {
		n := len(p) - sent
		if n > chunk {
			n = chunk
		}
		frame := p[sent : sent+n]
		if sent > 0 {
			frame = append(append(make([]byte, 0, n+1), StatusAdditionalFrame), frame...)
		}

		resp, err = t.device.exchangeTCL(frame)
		if err != nil {
			return 0, err
		}
		sent += n

		status = resp[len(resp)-1]
		t.lastPICCError = status
		if status == StatusOperationOK {
			break
		}
		if status != StatusAdditionalFrame {
			return 0, &CardError{Op: op, Code: status}
		}
		chunk = FramePayloadSize - 1
	}

	if status != StatusOperationOK {
		return 0, &CardError{Op: op, Code: status}
	}
	if _, err := t.postprocessData(resp, CommPlain|cmacCommand|cmacVerify); err != nil {
		return 0, err
	}

	return sent - overhead, nil
}

// ReadData reads length bytes from the data file fileNo starting at
// offset, deriving the communication mode from the file settings.
// length 0 reads the whole file.
func (t *Tag) ReadData(fileNo byte, offset, length uint32) ([]byte, error) {
	mode, err := t.readCommunicationMode(fileNo)
	if err != nil {
		return nil, err
	}
	return t.ReadDataEx(fileNo, offset, length, mode)
}

// ReadDataEx is ReadData with an explicit communication mode
func (t *Tag) ReadDataEx(fileNo byte, offset, length uint32, commMode int) ([]byte, error) {
	// A named length bounds the response tightly, allowing for CRC,
	// MAC and padding overhead. Length 0 reads to the end of the file
	// and only the global cap applies.
	limit := maxChainedResponse
	if length > 0 {
		limit = int(length) + 24
	}
	return t.readFileData("read data", cmdReadData, fileNo, offset, length, commMode, limit)
}

// WriteData writes data to the data file fileNo starting at offset,
// deriving the communication mode from the file settings. It returns
// the number of payload bytes accepted by the card.
func (t *Tag) WriteData(fileNo byte, offset uint32, data []byte) (int, error) {
	mode, err := t.writeCommunicationMode(fileNo)
	if err != nil {
		return 0, err
	}
	return t.WriteDataEx(fileNo, offset, data, mode)
}

// WriteDataEx is WriteData with an explicit communication mode
func (t *Tag) WriteDataEx(fileNo byte, offset uint32, data []byte, commMode int) (int, error) {
	return t.writeFileData("write data", cmdWriteData, fileNo, offset, data, commMode)
}

// GetValue reads the current value of the value file fileNo, deriving
// the communication mode from the file settings
func (t *Tag) GetValue(fileNo byte) (int32, error) {
	mode, err := t.readCommunicationMode(fileNo)
	if err != nil {
		return 0, err
	}
	return t.GetValueEx(fileNo, mode)
}

// GetValueEx is GetValue with an explicit communication mode
func (t *Tag) GetValueEx(fileNo byte, commMode int) (int32, error) {
	if !t.active {
		return 0, ErrTagInactive
	}
	if err := checkCommMode(commMode); err != nil {
		return 0, fmt.Errorf("get value: %w", err)
	}

	cmd := []byte{cmdGetValue, fileNo}
	p, err := t.transceive("get value", cmd, 0,
		CommPlain|cmacCommand,
		commMode|cmacCommand|cmacVerify)
	if err != nil {
		return 0, err
	}
	if len(p) < 5 {
		return 0, fmt.Errorf("get value: %w", ErrFrameCorrupted)
	}
	return int32(le32(p)), nil
}

// adjustValue is the shared implementation of the value file
// manipulation commands
func (t *Tag) adjustValue(op string, cmdByte, fileNo byte, amount int32, commMode int) error {
	if !t.active {
		return ErrTagInactive
	}
	if err := checkCommMode(commMode); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	cmd := make([]byte, 0, 6)
	cmd = append(cmd, cmdByte, fileNo)
	cmd = appendLE32(cmd, uint32(amount))

	_, err := t.transceive(op, cmd, 2,
		commMode|macCommand|cmacCommand|encCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// Credit increases the value of the value file fileNo, deriving the
// communication mode from the file settings. The change takes effect
// on CommitTransaction.
func (t *Tag) Credit(fileNo byte, amount int32) error {
	mode, err := t.writeCommunicationMode(fileNo)
	if err != nil {
		return err
	}
	return t.CreditEx(fileNo, amount, mode)
}

// CreditEx is Credit with an explicit communication mode
func (t *Tag) CreditEx(fileNo byte, amount int32, commMode int) error {
	return t.adjustValue("credit", cmdCredit, fileNo, amount, commMode)
}

// Debit decreases the value of the value file fileNo, deriving the
// communication mode from the file settings. The change takes effect
// on CommitTransaction.
func (t *Tag) Debit(fileNo byte, amount int32) error {
	mode, err := t.writeCommunicationMode(fileNo)
	if err != nil {
		return err
	}
	return t.DebitEx(fileNo, amount, mode)
}

// DebitEx is Debit with an explicit communication mode
func (t *Tag) DebitEx(fileNo byte, amount int32, commMode int) error {
	return t.adjustValue("debit", cmdDebit, fileNo, amount, commMode)
}

// LimitedCredit increases the value of the value file fileNo by at most
// the sum of past debits, without requiring full write access. The
// file must have been created with the feature enabled.
func (t *Tag) LimitedCredit(fileNo byte, amount int32) error {
	mode, err := t.writeCommunicationMode(fileNo)
	if err != nil {
		return err
	}
	return t.LimitedCreditEx(fileNo, amount, mode)
}

// LimitedCreditEx is LimitedCredit with an explicit communication mode
func (t *Tag) LimitedCreditEx(fileNo byte, amount int32, commMode int) error {
	return t.adjustValue("limited credit", cmdLimitedCredit, fileNo, amount, commMode)
}

// WriteRecord writes data into the current record of the record file
// fileNo, deriving the communication mode from the file settings. The
// record only becomes readable on CommitTransaction.
func (t *Tag) WriteRecord(fileNo byte, offset uint32, data []byte) (int, error) {
	mode, err := t.writeCommunicationMode(fileNo)
	if err != nil {
		return 0, err
	}
	return t.WriteRecordEx(fileNo, offset, data, mode)
}

// WriteRecordEx is WriteRecord with an explicit communication mode
func (t *Tag) WriteRecordEx(fileNo byte, offset uint32, data []byte, commMode int) (int, error) {
	return t.writeFileData("write record", cmdWriteRecord, fileNo, offset, data, commMode)
}

// ReadRecords reads length records from the record file fileNo starting
// at record offset, deriving the communication mode from the file
// settings. length 0 reads all records.
func (t *Tag) ReadRecords(fileNo byte, offset, length uint32) ([]byte, error) {
	mode, err := t.readCommunicationMode(fileNo)
	if err != nil {
		return nil, err
	}
	return t.ReadRecordsEx(fileNo, offset, length, mode)
}

// ReadRecordsEx is ReadRecords with an explicit communication mode.
// Length counts records, not bytes, so only the global cap bounds the
// response.
func (t *Tag) ReadRecordsEx(fileNo byte, offset, length uint32, commMode int) ([]byte, error) {
	return t.readFileData("read records", cmdReadRecords, fileNo, offset, length, commMode,
		maxChainedResponse)
}

// ClearRecordFile resets the record file fileNo to the empty state.
// The reset takes effect on CommitTransaction.
func (t *Tag) ClearRecordFile(fileNo byte) error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := []byte{cmdClearRecordFile, fileNo}
	_, err := t.transceive("clear record file", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// CommitTransaction validates all pending writes to backup data files,
// value files and record files of the selected application
func (t *Tag) CommitTransaction() error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := []byte{cmdCommitTransaction}
	_, err := t.transceive("commit transaction", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}

// AbortTransaction discards all pending writes to backup data files,
// value files and record files of the selected application
func (t *Tag) AbortTransaction() error {
	if !t.active {
		return ErrTagInactive
	}

	cmd := []byte{cmdAbortTransaction}
	_, err := t.transceive("abort transaction", cmd, 0,
		CommPlain|cmacCommand,
		CommPlain|cmacCommand|cmacVerify)
	return err
}
