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

package testing

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"

	sl032 "github.com/openterm/go-sl032"
)

// chunkSize is the card-side payload limit per transparent exchange,
// small enough to force frame chaining in tests
const chunkSize = 48

// cardKey is raw key material held by the virtual card
type cardKey struct {
	typ     sl032.KeyType
	data    []byte
	version byte
}

// virtualApp is one application on the virtual card
type virtualApp struct {
	keys        map[byte]*cardKey
	files       map[byte][]byte
	keySettings byte
	maxKeys     byte
}

func newVirtualApp(maxKeys byte) *virtualApp {
	return &virtualApp{
		keys:        make(map[byte]*cardKey),
		files:       make(map[byte][]byte),
		keySettings: 0x0F,
		maxKeys:     maxKeys,
	}
}

// authState tracks an authentication between pass one and pass two
type authState struct {
	cmd   byte
	keyNo byte
	key   *cardKey
	rndB  []byte
	iv    []byte
}

// cardSession is an established secure messaging session
type cardSession struct {
	block  cipher.Block
	iv     []byte
	sk1    []byte
	sk2    []byte
	legacy bool
}

// chainFrame is one pending frame of a chained response
type chainFrame struct {
	payload []byte
	status  byte
}

// Handler overrides the card's reaction to one command code
type Handler func(data []byte) (payload []byte, status byte)

// VirtualCard emulates the card side of the DESFire protocol: the
// three-pass authentication in all cipher families, session CMAC
// tracking, and a small set of application and file commands backed by
// in-memory state. Commands it does not implement answer with an
// illegal command status unless a Handler is installed.
type VirtualCard struct {
	UID [7]byte
	ATS []byte

	apps        map[uint32]*virtualApp
	selectedApp uint32

	authPending *authState
	authKeyNo   int
	session     *cardSession

	pending []chainFrame
	writing *writeState

	handlers map[byte]Handler
}

// writeState tracks a chunked inbound write between frames
type writeState struct {
	fileNo   byte
	offset   int
	expected int
	buf      []byte
}

// NewVirtualCard creates a card with the given UID and a default
// single-DES all-zero PICC master key
func NewVirtualCard(uid []byte) *VirtualCard {
	c := &VirtualCard{
		ATS:       []byte{0x06, 0x75, 0x77, 0x81, 0x02, 0x80},
		apps:      map[uint32]*virtualApp{0: newVirtualApp(1)},
		authKeyNo: -1,
		handlers:  make(map[byte]Handler),
	}
	copy(c.UID[:], uid)
	c.apps[0].keys[0] = &cardKey{typ: sl032.KeyTypeDES, data: make([]byte, 8)}
	return c
}

// SetKey installs raw key material for a key slot of an application.
// The application is created if it does not exist.
func (c *VirtualCard) SetKey(aid uint32, keyNo byte, typ sl032.KeyType, key []byte, version byte) {
	app, ok := c.apps[aid]
	if !ok {
		app = newVirtualApp(14)
		c.apps[aid] = app
	}
	data := make([]byte, len(key))
	copy(data, key)
	app.keys[keyNo] = &cardKey{typ: typ, data: data, version: version}
}

// SetFile installs file contents for a file of an application
func (c *VirtualCard) SetFile(aid uint32, fileNo byte, contents []byte) {
	app, ok := c.apps[aid]
	if !ok {
		app = newVirtualApp(14)
		c.apps[aid] = app
	}
	data := make([]byte, len(contents))
	copy(data, contents)
	app.files[fileNo] = data
}

// FileContents returns a copy of a file's contents
func (c *VirtualCard) FileContents(aid uint32, fileNo byte) []byte {
	app, ok := c.apps[aid]
	if !ok {
		return nil
	}
	data, ok := app.files[fileNo]
	if !ok {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// SetHandler overrides the card's reaction to one command code
func (c *VirtualCard) SetHandler(cmd byte, h Handler) {
	c.handlers[cmd] = h
}

// Authenticated reports the key number of the current session, or -1
func (c *VirtualCard) Authenticated() int {
	return c.authKeyNo
}

// Deselect resets card state as a reader re-select does
func (c *VirtualCard) Deselect() {
	c.selectedApp = 0
	c.clearSession()
	c.pending = nil
	c.writing = nil
}

func (c *VirtualCard) clearSession() {
	c.authPending = nil
	c.authKeyNo = -1
	c.session = nil
}

// Exchange handles one transparent exchange and returns the card
// status and response payload for it
func (c *VirtualCard) Exchange(data []byte) (payload []byte, status byte) {
	if len(data) == 0 {
		return nil, sl032.StatusLengthError
	}
	cmd := data[0]

	if h, ok := c.handlers[cmd]; ok {
		return h(data)
	}

	if cmd == sl032.StatusAdditionalFrame {
		return c.continueChain(data)
	}
	// a fresh command abandons any half-finished chain
	c.pending = nil
	c.writing = nil

	switch cmd {
	case 0x0A, 0x1A, 0xAA:
		return c.authenticate1(cmd, data)
	case 0x5A:
		return c.selectApplication(data)
	case 0xCA:
		return c.createApplication(data)
	case 0xDA:
		return c.deleteApplication(data)
	case 0x6A:
		return c.applicationIDs(data)
	case 0x45:
		return c.keySettings(data)
	case 0x64:
		return c.keyVersion(data)
	case 0x60:
		return c.version(data)
	case 0xFC:
		return c.format(data)
	case 0x6F:
		return c.fileIDs(data)
	case 0xF5:
		return c.fileSettings(data)
	case 0xCD, 0xCB:
		return c.createDataFile(data)
	case 0xBD:
		return c.readData(data)
	case 0x3D:
		return c.writeData(data)
	case 0xC7, 0xA7:
		c.updateCommandCMAC(data)
		return c.respond(data, nil)
	default:
		return nil, sl032.StatusIllegalCommandCode
	}
}

// continueChain serves the next frame of a chained response, the
// second authentication pass, or another chunk of an inbound write
func (c *VirtualCard) continueChain(data []byte) (payload []byte, status byte) {
	if c.authPending != nil {
		return c.authenticate2(data)
	}
	if c.writing != nil {
		return c.writeContinue(data[1:])
	}
	if len(c.pending) == 0 {
		return nil, sl032.StatusIllegalCommandCode
	}
	frame := c.pending[0]
	c.pending = c.pending[1:]
	return frame.payload, frame.status
}

// respond finalizes a single-frame response: appends the session CMAC
// when one is active and the exchange is MACed
func (c *VirtualCard) respond(_ []byte, payload []byte) ([]byte, byte) {
	return c.finish(payload, true)
}

// finish builds the response frames for a logical payload, appending
// the session CMAC over payload plus status when requested. Frames
// beyond the first are queued for additional-frame continuation.
func (c *VirtualCard) finish(payload []byte, mac bool) ([]byte, byte) {
	full := make([]byte, len(payload))
	copy(full, payload)

	if mac && c.session != nil && !c.session.legacy {
		macInput := make([]byte, len(payload)+1)
		copy(macInput, payload)
		macInput[len(payload)] = sl032.StatusOperationOK
		m := cardCMAC(c.session.block, c.session.sk1, c.session.sk2, c.session.iv, macInput)
		full = append(full, m[:8]...)
	}

	if len(full) <= chunkSize {
		return full, sl032.StatusOperationOK
	}

	first := full[:chunkSize]
	rest := full[chunkSize:]
	for len(rest) > chunkSize {
		c.pending = append(c.pending, chainFrame{payload: rest[:chunkSize], status: sl032.StatusAdditionalFrame})
		rest = rest[chunkSize:]
	}
	c.pending = append(c.pending, chainFrame{payload: rest, status: sl032.StatusOperationOK})
	return first, sl032.StatusAdditionalFrame
}

// updateCommandCMAC advances the card's MAC state over a received
// command, mirroring what the host does when it sends one
func (c *VirtualCard) updateCommandCMAC(cmd []byte) {
	if c.session == nil || c.session.legacy {
		return
	}
	cardCMAC(c.session.block, c.session.sk1, c.session.sk2, c.session.iv, cmd)
}

// --- authentication ---

func rndLength(typ sl032.KeyType) int {
	switch typ {
	case sl032.KeyType3K3DES, sl032.KeyTypeAES:
		return 16
	default:
		return 8
	}
}

func (c *VirtualCard) authenticate1(cmd byte, data []byte) ([]byte, byte) {
	if len(data) < 2 {
		return nil, sl032.StatusLengthError
	}
	app := c.apps[c.selectedApp]
	key, ok := app.keys[data[1]&0x0F]
	if !ok {
		return nil, sl032.StatusNoSuchKey
	}

	// scheme must match the key family
	legacy := cmd == 0x0A
	switch key.typ {
	case sl032.KeyTypeDES, sl032.KeyType3DES:
		if !legacy {
			return nil, sl032.StatusAuthenticationError
		}
	case sl032.KeyType3K3DES:
		if cmd != 0x1A {
			return nil, sl032.StatusAuthenticationError
		}
	case sl032.KeyTypeAES:
		if cmd != 0xAA {
			return nil, sl032.StatusAuthenticationError
		}
	}

	block, err := cardCipher(key.typ, key.data)
	if err != nil {
		return nil, sl032.StatusAppIntegrityError
	}

	rndB := make([]byte, rndLength(key.typ))
	if _, err := rand.Read(rndB); err != nil {
		return nil, sl032.StatusAppIntegrityError
	}

	c.clearSession()
	st := &authState{
		cmd:   cmd,
		keyNo: data[1] & 0x0F,
		key:   key,
		rndB:  rndB,
		iv:    make([]byte, block.BlockSize()),
	}
	c.authPending = st

	token := make([]byte, len(rndB))
	copy(token, rndB)
	cbcEncrypt(block, st.iv, token)
	if st.cmd == 0x0A {
		// the legacy scheme starts every operation from a zero IV
		for i := range st.iv {
			st.iv[i] = 0
		}
	}
	return token, sl032.StatusAdditionalFrame
}

func (c *VirtualCard) authenticate2(data []byte) ([]byte, byte) {
	st := c.authPending
	c.authPending = nil

	rndLen := len(st.rndB)
	if len(data) != 1+2*rndLen {
		return nil, sl032.StatusLengthError
	}

	block, err := cardCipher(st.key.typ, st.key.data)
	if err != nil {
		return nil, sl032.StatusAppIntegrityError
	}

	token := make([]byte, 2*rndLen)
	copy(token, data[1:])
	lastCipherBlock := make([]byte, block.BlockSize())
	copy(lastCipherBlock, token[len(token)-block.BlockSize():])

	if st.cmd == 0x0A {
		legacyDecode(block, token)
	} else {
		cbcDecrypt(block, st.iv, token)
	}

	rndA := token[:rndLen]
	rotatedB := make([]byte, rndLen)
	copy(rotatedB, st.rndB)
	rotateLeft(rotatedB)
	if !bytes.Equal(token[rndLen:], rotatedB) {
		return nil, sl032.StatusAuthenticationError
	}

	reply := make([]byte, rndLen)
	copy(reply, rndA)
	rotateLeft(reply)
	if st.cmd == 0x0A {
		for i := range st.iv {
			st.iv[i] = 0
		}
	} else {
		copy(st.iv, lastCipherBlock)
	}
	cbcEncrypt(block, st.iv, reply)

	if err := c.establishSession(st, rndA); err != nil {
		return nil, sl032.StatusAppIntegrityError
	}
	c.authKeyNo = int(st.keyNo)
	return reply, sl032.StatusOperationOK
}

// establishSession derives the session key from the two challenges
func (c *VirtualCard) establishSession(st *authState, rndA []byte) error {
	var buf []byte
	switch st.key.typ {
	case sl032.KeyTypeDES:
		buf = append(buf, rndA[0:4]...)
		buf = append(buf, st.rndB[0:4]...)
	case sl032.KeyType3DES:
		buf = append(buf, rndA[0:4]...)
		buf = append(buf, st.rndB[0:4]...)
		buf = append(buf, rndA[4:8]...)
		buf = append(buf, st.rndB[4:8]...)
	case sl032.KeyType3K3DES:
		buf = append(buf, rndA[0:4]...)
		buf = append(buf, st.rndB[0:4]...)
		buf = append(buf, rndA[6:10]...)
		buf = append(buf, st.rndB[6:10]...)
		buf = append(buf, rndA[12:16]...)
		buf = append(buf, st.rndB[12:16]...)
	case sl032.KeyTypeAES:
		buf = append(buf, rndA[0:4]...)
		buf = append(buf, st.rndB[0:4]...)
		buf = append(buf, rndA[12:16]...)
		buf = append(buf, st.rndB[12:16]...)
	}

	block, err := cardCipher(st.key.typ, buf)
	if err != nil {
		return err
	}

	session := &cardSession{
		block:  block,
		iv:     make([]byte, block.BlockSize()),
		legacy: st.cmd == 0x0A,
	}
	if !session.legacy {
		session.sk1, session.sk2 = cmacSubkeys(block)
	}
	c.session = session
	return nil
}

// --- application commands ---

func (c *VirtualCard) selectApplication(data []byte) ([]byte, byte) {
	if len(data) < 4 {
		return nil, sl032.StatusLengthError
	}
	aid := le24(data[1:4])
	if _, ok := c.apps[aid]; !ok {
		return nil, sl032.StatusAppNotFound
	}
	c.selectedApp = aid
	c.clearSession()
	return nil, sl032.StatusOperationOK
}

func (c *VirtualCard) createApplication(data []byte) ([]byte, byte) {
	if len(data) < 6 {
		return nil, sl032.StatusLengthError
	}
	c.updateCommandCMAC(data)
	aid := le24(data[1:4])
	if _, ok := c.apps[aid]; ok {
		return nil, sl032.StatusDuplicateError
	}
	app := newVirtualApp(data[5] & 0x0F)
	app.keySettings = data[4]
	c.apps[aid] = app
	// new applications start with all-zero keys of the requested family
	keyType := sl032.KeyTypeDES
	keyLen := 8
	switch data[5] & 0xC0 {
	case 0x40:
		keyType = sl032.KeyType3K3DES
		keyLen = 24
	case 0x80:
		keyType = sl032.KeyTypeAES
		keyLen = 16
	}
	for n := byte(0); n < app.maxKeys; n++ {
		app.keys[n] = &cardKey{typ: keyType, data: make([]byte, keyLen)}
	}
	return c.respond(data, nil)
}

func (c *VirtualCard) deleteApplication(data []byte) ([]byte, byte) {
	if len(data) < 4 {
		return nil, sl032.StatusLengthError
	}
	c.updateCommandCMAC(data)
	aid := le24(data[1:4])
	if _, ok := c.apps[aid]; !ok {
		return nil, sl032.StatusAppNotFound
	}
	delete(c.apps, aid)
	if c.selectedApp == aid {
		c.selectedApp = 0
		c.clearSession()
		return nil, sl032.StatusOperationOK
	}
	return c.respond(data, nil)
}

func (c *VirtualCard) applicationIDs(data []byte) ([]byte, byte) {
	c.updateCommandCMAC(data)
	var payload []byte
	for aid := range c.apps {
		if aid == 0 {
			continue
		}
		payload = appendLE24(payload, aid)
	}
	return c.finish(payload, true)
}

func (c *VirtualCard) keySettings(data []byte) ([]byte, byte) {
	c.updateCommandCMAC(data)
	app := c.apps[c.selectedApp]
	return c.respond(data, []byte{app.keySettings, app.maxKeys})
}

func (c *VirtualCard) keyVersion(data []byte) ([]byte, byte) {
	if len(data) < 2 {
		return nil, sl032.StatusLengthError
	}
	c.updateCommandCMAC(data)
	app := c.apps[c.selectedApp]
	key, ok := app.keys[data[1]&0x0F]
	if !ok {
		return nil, sl032.StatusNoSuchKey
	}
	return c.respond(data, []byte{key.version})
}

func (c *VirtualCard) version(data []byte) ([]byte, byte) {
	c.updateCommandCMAC(data)

	var payload []byte
	payload = append(payload, 0x04, 0x01, 0x01, 0x01, 0x00, 0x18, 0x05)
	payload = append(payload, 0x04, 0x01, 0x01, 0x01, 0x04, 0x18, 0x05)
	payload = append(payload, c.UID[:]...)
	payload = append(payload, 0xBA, 0x3D, 0x80, 0x2A, 0x36)
	payload = append(payload, 0x14, 0x26)

	full, _ := c.finish(payload, true)

	// the real card always chains the version response in three
	// fixed-size frames regardless of payload limits
	c.pending = nil
	frames := []chainFrame{
		{payload: full[:7], status: sl032.StatusAdditionalFrame},
		{payload: full[7:14], status: sl032.StatusAdditionalFrame},
		{payload: full[14:], status: sl032.StatusOperationOK},
	}
	c.pending = frames[1:]
	return frames[0].payload, frames[0].status
}

func (c *VirtualCard) format(data []byte) ([]byte, byte) {
	if c.authKeyNo < 0 || c.selectedApp != 0 {
		return nil, sl032.StatusAuthenticationError
	}
	c.updateCommandCMAC(data)
	master := c.apps[0]
	c.apps = map[uint32]*virtualApp{0: master}
	master.files = make(map[byte][]byte)
	return c.respond(data, nil)
}

// --- file commands ---

func (c *VirtualCard) fileIDs(data []byte) ([]byte, byte) {
	c.updateCommandCMAC(data)
	app := c.apps[c.selectedApp]
	var payload []byte
	for no := range app.files {
		payload = append(payload, no)
	}
	return c.finish(payload, true)
}

// fileSettings reports every file as a plain-communication standard
// data file with free access
func (c *VirtualCard) fileSettings(data []byte) ([]byte, byte) {
	if len(data) < 2 {
		return nil, sl032.StatusLengthError
	}
	c.updateCommandCMAC(data)
	app := c.apps[c.selectedApp]
	contents, ok := app.files[data[1]&0x0F]
	if !ok {
		return nil, sl032.StatusFileNotFound
	}
	payload := []byte{0x00, 0x00, 0xEE, 0xEE}
	payload = appendLE24(payload, uint32(len(contents)))
	return c.respond(data, payload)
}

func (c *VirtualCard) createDataFile(data []byte) ([]byte, byte) {
	if len(data) < 8 {
		return nil, sl032.StatusLengthError
	}
	c.updateCommandCMAC(data)
	app := c.apps[c.selectedApp]
	fileNo := data[1] & 0x0F
	if _, ok := app.files[fileNo]; ok {
		return nil, sl032.StatusDuplicateError
	}
	size := le24(data[len(data)-3:])
	app.files[fileNo] = make([]byte, size)
	return c.respond(data, nil)
}

func (c *VirtualCard) readData(data []byte) ([]byte, byte) {
	if len(data) < 8 {
		return nil, sl032.StatusLengthError
	}
	c.updateCommandCMAC(data)
	app := c.apps[c.selectedApp]
	contents, ok := app.files[data[1]&0x0F]
	if !ok {
		return nil, sl032.StatusFileNotFound
	}

	offset := int(le24(data[2:5]))
	length := int(le24(data[5:8]))
	if length == 0 {
		length = len(contents) - offset
	}
	if offset < 0 || offset+length > len(contents) {
		return nil, sl032.StatusBoundaryError
	}
	return c.finish(contents[offset:offset+length], true)
}

func (c *VirtualCard) writeData(data []byte) ([]byte, byte) {
	if len(data) < 8 {
		return nil, sl032.StatusLengthError
	}
	app := c.apps[c.selectedApp]
	fileNo := data[1] & 0x0F
	if _, ok := app.files[fileNo]; !ok {
		return nil, sl032.StatusFileNotFound
	}

	c.writing = &writeState{
		fileNo:   fileNo,
		offset:   int(le24(data[2:5])),
		expected: 8 + int(le24(data[5:8])),
		buf:      make([]byte, 0, len(data)),
	}
	return c.writeContinue(data)
}

// writeContinue accumulates chunks of an inbound write until the full
// command announced by the header has arrived
func (c *VirtualCard) writeContinue(chunk []byte) ([]byte, byte) {
	w := c.writing
	w.buf = append(w.buf, chunk...)
	if len(w.buf) < w.expected {
		return nil, sl032.StatusAdditionalFrame
	}

	c.writing = nil
	// MAC state covers the whole logical command, header included
	c.updateCommandCMAC(w.buf[:w.expected])

	app := c.apps[c.selectedApp]
	contents := app.files[w.fileNo]
	payload := w.buf[8:w.expected]
	if w.offset < 0 || w.offset+len(payload) > len(contents) {
		return nil, sl032.StatusBoundaryError
	}
	copy(contents[w.offset:], payload)
	return c.respond(nil, nil)
}

// --- little-endian helpers ---

func le24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func appendLE24(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16))
}
