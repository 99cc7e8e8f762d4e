//nolint:paralleltest // Test file - not using parallel tests
package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceInfo_String(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		device   DeviceInfo
	}{
		{
			name: "low confidence",
			device: DeviceInfo{
				Path:       "/dev/ttyUSB0",
				Confidence: Low,
			},
			expected: "serial device at /dev/ttyUSB0 (confidence: low)",
		},
		{
			name: "medium confidence",
			device: DeviceInfo{
				Path:       "/dev/ttyUSB1",
				Confidence: Medium,
			},
			expected: "serial device at /dev/ttyUSB1 (confidence: medium)",
		},
		{
			name: "high confidence",
			device: DeviceInfo{
				Path:       "COM3",
				Confidence: High,
			},
			expected: "serial device at COM3 (confidence: high)",
		},
		{
			name: "unknown confidence",
			device: DeviceInfo{
				Path:       "/dev/ttyUSB2",
				Confidence: Confidence(99),
			},
			expected: "serial device at /dev/ttyUSB2 (confidence: unknown)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.device.String())
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, Safe, opts.Mode)
	assert.Equal(t, 500*time.Millisecond, opts.ProbeTimeout)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 30*time.Second, opts.CacheTTL)
}

func TestIsBlocked(t *testing.T) {
	blocklist := []string{"1234:5678", "abcd:ef01"}

	tests := []struct {
		name    string
		vidpid  string
		blocked bool
	}{
		{"exact match", "1234:5678", true},
		{"case insensitive", "ABCD:EF01", true},
		{"whitespace tolerant", " 1234:5678 ", true},
		{"not listed", "0403:6001", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blocked, IsBlocked(tt.vidpid, blocklist))
		})
	}
}

func TestIsPathIgnored(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		ignore  []string
		ignored bool
	}{
		{"exact match", "/dev/ttyUSB0", []string{"/dev/ttyUSB0"}, true},
		{"trailing slash normalized", "/dev/ttyUSB0", []string{"/dev/ttyUSB0/"}, true},
		{"different path", "/dev/ttyUSB1", []string{"/dev/ttyUSB0"}, false},
		{"empty ignore list", "/dev/ttyUSB0", nil, false},
		{"empty path", "", []string{"/dev/ttyUSB0"}, false},
		{"empty entries skipped", "/dev/ttyUSB0", []string{"", "/dev/ttyUSB0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ignored, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}

func TestIsLikelyReader(t *testing.T) {
	tests := []struct {
		name   string
		port   serialPort
		likely bool
	}{
		{"FTDI adapter", serialPort{VIDPID: "0403:6001"}, true},
		{"CH340 adapter", serialPort{VIDPID: "1A86:7523"}, true},
		{"product keyword", serialPort{Product: "SL032 RFID Reader"}, true},
		{"manufacturer keyword", serialPort{Manufacturer: "StrongLink"}, true},
		{"frequency keyword", serialPort{Product: "13.56MHz module"}, true},
		{"unrelated device", serialPort{VIDPID: "DEAD:BEEF", Product: "GPS"}, false},
		{"bare port", serialPort{Path: "/dev/ttyS0"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.likely, isLikelyReader(&tt.port))
		})
	}
}

func TestPortHandling(t *testing.T) {
	likely := serialPort{VIDPID: "0403:6001"}
	unlikely := serialPort{Path: "/dev/ttyS0"}

	tests := []struct {
		name       string
		port       serialPort
		mode       Mode
		confidence Confidence
		probe      bool
	}{
		{"passive likely", likely, Passive, Medium, false},
		{"passive unlikely", unlikely, Passive, Low, false},
		{"safe likely", likely, Safe, Medium, true},
		{"safe unlikely", unlikely, Safe, Low, true},
		{"full likely", likely, Full, Low, true},
		{"full unlikely", unlikely, Full, Low, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confidence, probe := portHandling(&tt.port, tt.mode)
			assert.Equal(t, tt.confidence, confidence)
			assert.Equal(t, tt.probe, probe)
		})
	}
}

func TestDeviceInfo_Metadata(t *testing.T) {
	port := serialPort{
		Path:         "/dev/ttyUSB0",
		Name:         "ttyUSB0",
		VIDPID:       "0403:6001",
		Manufacturer: "FTDI",
		Product:      "FT232R USB UART",
		SerialNumber: "A1B2C3",
	}

	device := deviceInfo(&port, Medium)

	assert.Equal(t, "/dev/ttyUSB0", device.Path)
	assert.Equal(t, "ttyUSB0", device.Name)
	assert.Equal(t, Medium, device.Confidence)
	assert.Equal(t, "0403:6001", device.Metadata["vidpid"])
	assert.Equal(t, "FTDI", device.Metadata["manufacturer"])
	assert.Equal(t, "FT232R USB UART", device.Metadata["product"])
	assert.Equal(t, "A1B2C3", device.Metadata["serial"])
}

func TestDeviceInfo_MetadataOmitsEmpty(t *testing.T) {
	port := serialPort{Path: "/dev/ttyS0", Name: "ttyS0"}

	device := deviceInfo(&port, Low)

	assert.Empty(t, device.Metadata)
}

func TestFilterDevices(t *testing.T) {
	devices := []DeviceInfo{
		{Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "1234:5678"}},
		{Path: "/dev/ttyUSB1", Metadata: map[string]string{"vidpid": "0403:6001"}},
		{Path: "/dev/ttyUSB2", Metadata: map[string]string{}},
	}

	t.Run("no filters returns all", func(t *testing.T) {
		opts := &Options{}
		assert.Len(t, filterDevices(devices, opts), 3)
	})

	t.Run("blocklist removes matching vidpid", func(t *testing.T) {
		opts := &Options{Blocklist: []string{"1234:5678"}}
		filtered := filterDevices(devices, opts)
		assert.Len(t, filtered, 2)
		for _, d := range filtered {
			assert.NotEqual(t, "/dev/ttyUSB0", d.Path)
		}
	})

	t.Run("ignore paths removes matching path", func(t *testing.T) {
		opts := &Options{IgnorePaths: []string{"/dev/ttyUSB1"}}
		filtered := filterDevices(devices, opts)
		assert.Len(t, filtered, 2)
		for _, d := range filtered {
			assert.NotEqual(t, "/dev/ttyUSB1", d.Path)
		}
	})
}

func TestCache(t *testing.T) {
	t.Cleanup(clearCache)

	t.Run("miss when empty", func(t *testing.T) {
		clearCache()
		_, found := getCached(time.Minute)
		assert.False(t, found)
	})

	t.Run("hit within ttl", func(t *testing.T) {
		clearCache()
		setCached([]DeviceInfo{{Path: "/dev/ttyUSB0", Confidence: High}})

		devices, found := getCached(time.Minute)
		assert.True(t, found)
		assert.Len(t, devices, 1)
		assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	})

	t.Run("miss after ttl", func(t *testing.T) {
		clearCache()
		setCached([]DeviceInfo{{Path: "/dev/ttyUSB0"}})

		_, found := getCached(-time.Second)
		assert.False(t, found)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		clearCache()
		setCached([]DeviceInfo{{Path: "/dev/ttyUSB0"}})

		devices, found := getCached(time.Minute)
		assert.True(t, found)
		devices[0].Path = "/dev/mutated"

		again, found := getCached(time.Minute)
		assert.True(t, found)
		assert.Equal(t, "/dev/ttyUSB0", again[0].Path)
	})

	t.Run("clear invalidates", func(t *testing.T) {
		setCached([]DeviceInfo{{Path: "/dev/ttyUSB0"}})
		ClearDetectionCache()
		_, found := getCached(time.Minute)
		assert.False(t, found)
	})
}
