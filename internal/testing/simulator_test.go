package testing

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sl032 "github.com/openterm/go-sl032"
)

var testUID = []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

func connectTag(t *testing.T, card *VirtualCard) (*sl032.Tag, *VirtualSL032) {
	t.Helper()

	sim := NewVirtualSL032(card)
	dev, err := sl032.New(sim)
	require.NoError(t, err)

	tag := sl032.NewTag(dev)
	require.NoError(t, tag.Connect())
	return tag, sim
}

func TestConnect(t *testing.T) {
	t.Parallel()

	tag, sim := connectTag(t, NewVirtualCard(testUID))

	assert.True(t, tag.Active())
	assert.Equal(t, testUID, tag.UIDBytes())
	assert.Equal(t, byte(sl032.CardTypeDESFire), tag.CardType())
	assert.Equal(t, []byte{0x01, 0x20}, sim.CommandLog())
}

func TestConnect_NoCard(t *testing.T) {
	t.Parallel()

	sim := NewVirtualSL032(nil)
	dev, err := sl032.New(sim)
	require.NoError(t, err)

	tag := sl032.NewTag(dev)
	err = tag.Connect()
	require.ErrorIs(t, err, sl032.ErrNoCard)
	assert.False(t, tag.Active())
}

func TestConnect_CardRemoved(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	tag, sim := connectTag(t, card)
	require.NoError(t, tag.Disconnect())

	sim.RemoveCard()
	err := tag.Connect()
	require.ErrorIs(t, err, sl032.ErrNoCard)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	desKey := bytes.Repeat([]byte{0x00}, 8)
	tdesKey := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
	}
	tkKey := bytes.Repeat([]byte{0x42}, 24)
	aesKey := []byte{
		0x0F, 0x1E, 0x2D, 0x3C, 0x4B, 0x5A, 0x69, 0x78,
		0x87, 0x96, 0xA5, 0xB4, 0xC3, 0xD2, 0xE1, 0xF0,
	}

	tests := []struct {
		newKey  func() (*sl032.Key, error)
		name    string
		raw     []byte
		typ     sl032.KeyType
		keyNo   uint8
	}{
		{
			name:   "DES",
			typ:    sl032.KeyTypeDES,
			raw:    desKey,
			keyNo:  0,
			newKey: func() (*sl032.Key, error) { return sl032.NewDESKey(desKey) },
		},
		{
			name:   "3DES",
			typ:    sl032.KeyType3DES,
			raw:    tdesKey,
			keyNo:  1,
			newKey: func() (*sl032.Key, error) { return sl032.New3DESKey(tdesKey) },
		},
		{
			name:   "3K3DES",
			typ:    sl032.KeyType3K3DES,
			raw:    tkKey,
			keyNo:  2,
			newKey: func() (*sl032.Key, error) { return sl032.New3K3DESKey(tkKey) },
		},
		{
			name:   "AES",
			typ:    sl032.KeyTypeAES,
			raw:    aesKey,
			keyNo:  3,
			newKey: func() (*sl032.Key, error) { return sl032.NewAESKey(aesKey, 0x10) },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			card := NewVirtualCard(testUID)
			card.SetKey(0, tt.keyNo, tt.typ, tt.raw, 0x10)
			tag, _ := connectTag(t, card)

			key, err := tt.newKey()
			require.NoError(t, err)
			require.NoError(t, tag.Authenticate(tt.keyNo, key))

			keyNo, ok := tag.AuthenticatedKeyNo()
			assert.True(t, ok)
			assert.Equal(t, tt.keyNo, keyNo)
			assert.Equal(t, int(tt.keyNo), card.Authenticated())
		})
	}
}

func TestAuthenticate_WrongKey(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	aesKey := bytes.Repeat([]byte{0xA5}, 16)
	card.SetKey(0, 0, sl032.KeyTypeAES, aesKey, 0)
	tag, _ := connectTag(t, card)

	wrong, err := sl032.NewAESKey(bytes.Repeat([]byte{0x5A}, 16), 0)
	require.NoError(t, err)

	err = tag.Authenticate(0, wrong)
	require.Error(t, err)
	_, ok := tag.AuthenticatedKeyNo()
	assert.False(t, ok)
}

func TestAuthenticate_NoSuchKey(t *testing.T) {
	t.Parallel()

	tag, _ := connectTag(t, NewVirtualCard(testUID))

	key, err := sl032.NewDESKey(make([]byte, 8))
	require.NoError(t, err)

	err = tag.Authenticate(7, key)
	var cardErr *sl032.CardError
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, byte(sl032.StatusNoSuchKey), cardErr.Code)
}

// TestSessionCMAC authenticates with AES and then runs MACed plain
// exchanges, proving the host and card MAC chains stay in sync across
// single-frame and chained responses.
func TestSessionCMAC(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	aesKey := bytes.Repeat([]byte{0x01}, 16)
	card.SetKey(0, 0, sl032.KeyTypeAES, aesKey, 0x42)
	tag, _ := connectTag(t, card)

	key, err := sl032.NewAESKey(aesKey, 0x42)
	require.NoError(t, err)
	require.NoError(t, tag.Authenticate(0, key))

	version, err := tag.GetKeyVersion(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), version)

	settings, maxKeys, err := tag.GetKeySettings()
	require.NoError(t, err)
	assert.Equal(t, byte(0x0F), settings)
	assert.Equal(t, byte(1), maxKeys)

	info, err := tag.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, testUID, info.UID[:])
	assert.Equal(t, byte(0x04), info.Hardware.VendorID)
}

func TestApplicationLifecycle(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	tag, _ := connectTag(t, card)

	const aid = 0x00112233 & 0x00FFFFFF
	require.NoError(t, tag.CreateApplicationAES(aid, 0x0F, 2))

	ids, err := tag.GetApplicationIDs()
	require.NoError(t, err)
	assert.Contains(t, ids, uint32(aid))

	require.NoError(t, tag.SelectApplication(aid))
	assert.Equal(t, uint32(aid), tag.SelectedApplication())

	// fresh AES applications come with all-zero keys
	key, err := sl032.NewAESKey(make([]byte, 16), 0)
	require.NoError(t, err)
	require.NoError(t, tag.Authenticate(1, key))

	require.NoError(t, tag.SelectApplication(0))
	require.NoError(t, tag.DeleteApplication(aid))

	ids, err = tag.GetApplicationIDs()
	require.NoError(t, err)
	assert.NotContains(t, ids, uint32(aid))
}

func TestFileReadWrite(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	const aid = 0x000AA1
	aesKey := bytes.Repeat([]byte{0x33}, 16)
	card.SetKey(aid, 0, sl032.KeyTypeAES, aesKey, 0)
	card.SetFile(aid, 1, make([]byte, 128))

	tag, _ := connectTag(t, card)
	require.NoError(t, tag.SelectApplication(aid))

	key, err := sl032.NewAESKey(aesKey, 0)
	require.NoError(t, err)
	require.NoError(t, tag.Authenticate(0, key))

	payload := bytes.Repeat([]byte{0xC3, 0x3C}, 50)
	n, err := tag.WriteData(1, 4, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	read, err := tag.ReadData(1, 4, uint32(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, read)

	// the backing store agrees
	assert.Equal(t, payload, card.FileContents(aid, 1)[4:4+len(payload)])
}

func TestFileReadWrite_Unauthenticated(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	card.SetFile(0, 5, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	tag, _ := connectTag(t, card)

	read, err := tag.ReadData(5, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, read)

	ids, err := tag.GetFileIDs()
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, ids)
}

func TestFormatPICC(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	card.SetFile(0x0000BB, 1, []byte{1, 2, 3})
	tag, _ := connectTag(t, card)

	// format refuses without authentication
	err := tag.FormatPICC()
	require.ErrorIs(t, err, sl032.ErrNotAuthenticated)

	key, err := sl032.NewDESKey(make([]byte, 8))
	require.NoError(t, err)
	require.NoError(t, tag.Authenticate(0, key))
	require.NoError(t, tag.FormatPICC())

	ids, err := tag.GetApplicationIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScriptedHandler(t *testing.T) {
	t.Parallel()

	card := NewVirtualCard(testUID)
	card.SetHandler(0x6E, func(_ []byte) ([]byte, byte) {
		return []byte{0x00, 0x10, 0x00}, sl032.StatusOperationOK
	})
	tag, _ := connectTag(t, card)

	free, err := tag.GetFreeMemory()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1000), free)
}

func TestJitteryTransport_Corruption(t *testing.T) {
	t.Parallel()

	sim := NewVirtualSL032(NewVirtualCard(testUID))
	jitter := NewJitteryTransport(sim, JitterConfig{
		CorruptByte:   0xFF,
		CorruptOffset: 4,
	})
	dev, err := sl032.New(jitter)
	require.NoError(t, err)

	tag := sl032.NewTag(dev)
	err = tag.Connect()
	require.ErrorIs(t, err, sl032.ErrChecksumMismatch)
}

func TestJitteryTransport_Stall(t *testing.T) {
	t.Parallel()

	sim := NewVirtualSL032(NewVirtualCard(testUID))
	jitter := NewJitteryTransport(sim, JitterConfig{StallAfterBytes: 3})
	dev, err := sl032.New(jitter, sl032.WithByteTimeout(10*time.Millisecond))
	require.NoError(t, err)

	tag := sl032.NewTag(dev)
	err = tag.Connect()
	require.ErrorIs(t, err, sl032.ErrTransportTimeout)
	assert.False(t, tag.Active())
}

func TestJitteryTransport_Latency(t *testing.T) {
	t.Parallel()

	sim := NewVirtualSL032(NewVirtualCard(testUID))
	jitter := NewJitteryTransport(sim, JitterConfig{ReadLatency: time.Millisecond})
	dev, err := sl032.New(jitter)
	require.NoError(t, err)

	// a slow but steady link still frames correctly
	tag := sl032.NewTag(dev)
	require.NoError(t, tag.Connect())
	assert.True(t, tag.Active())
}
