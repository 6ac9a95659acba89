package config

import (
	"errors"
	"hash/crc32"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/mcuconn/pkg/l0/features"
	"github.com/robotalks/mcuconn/pkg/l0/serial"
)

func TestLoadYAML(t *testing.T) {
	p, err := Load("testdata/profile.yaml")
	require.NoError(t, err)
	data, err := ioutil.ReadFile("testdata/profile.yaml")
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(data), p.Signature)
	require.Len(t, p.Boards, 2)

	bench := p.Board("bench")
	require.NotNil(t, bench)
	assert.Equal(t, "/dev/ttyACM0", bench.Device)
	assert.Equal(t, "arduino", bench.Component)
	assert.True(t, bench.IsEnabled())
	assert.Equal(t, 57600, bench.BaudRate())
	assert.Equal(t, serial.DefaultReadTimeout, bench.ReadTimeout())
	// servoOutputs is unknown and skipped.
	assert.NotContains(t, bench.IOMap, "servoOutputs")

	kinds := bench.Kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, features.DigitalInputs, kinds[0].ID)
	assert.Equal(t, features.AnalogInputs, kinds[1].ID)

	pins := bench.FeaturePins(kinds[0])
	require.Len(t, pins, 2)
	assert.Equal(t, 2, pins[0].PinID)
	assert.Equal(t, "estop", pins[0].Name)
	assert.Equal(t, 50, pins[0].Debounce)
	assert.True(t, pins[0].PullUp)
	assert.True(t, pins[0].Enabled)
	assert.Equal(t, features.StateUnset, pins[0].InitialState)
	assert.Equal(t, 3, pins[1].PinID)
	assert.Equal(t, 100, pins[1].Debounce)
	assert.False(t, pins[1].PullUp)

	analog := bench.FeaturePins(kinds[1])
	require.Len(t, analog, 1)
	assert.Equal(t, 100, analog[0].Smoothing)
	assert.Equal(t, 512, analog[0].Max)
	assert.Equal(t, 0, analog[0].Min)

	spare := p.Board("spare")
	require.NotNil(t, spare)
	assert.False(t, spare.IsEnabled())
	assert.Equal(t, "spare"+DisabledSuffix, spare.Component)
	assert.Equal(t, serial.DefaultBaudRate, spare.BaudRate())
	out := spare.FeaturePins(features.MustLookup("digitalOutputs"))
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].InitialState)
	assert.Equal(t, 0, out[0].DisconnectedState)
	assert.Equal(t, features.StateUnset, out[0].ConnectedState)

	enabled := p.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "bench", enabled[0].Alias)
	assert.Nil(t, p.Board("missing"))
}

func TestLoadTOML(t *testing.T) {
	p, err := Load("testdata/profile.toml")
	require.NoError(t, err)
	require.Len(t, p.Boards, 1)
	b := p.Boards[0]
	assert.Equal(t, "bench", b.Alias)
	assert.Equal(t, 500*time.Millisecond, b.ReadTimeout())
	kinds := b.Kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, features.DigitalOutputs, kinds[0].ID)
	assert.Equal(t, features.AnalogOutputs, kinds[1].ID)
	pins := b.FeaturePins(kinds[0])
	require.Len(t, pins, 1)
	assert.Equal(t, "led", pins[0].Name)
	assert.Equal(t, 1, pins[0].ConnectedState)
}

func TestParseYAMLInvalid(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no mcu", "other: 1\n"},
		{"no alias", "mcu:\n  dev: /dev/x\n  component_name: c\n"},
		{"no dev", "mcu:\n  alias: a\n  component_name: c\n"},
		{"no component", "mcu:\n  alias: a\n  dev: /dev/x\n"},
		{"udp", "mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n  connection:\n    type: udp\n"},
		{"no connection type", "mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n  connection:\n    baudrate: 9600\n"},
		{"no pin id", "mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n  io_map:\n    digitalInputs:\n      - pin_name: x\n"},
		{"negative pin id", "mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n  io_map:\n    digitalInputs:\n      - pin_id: -1\n"},
		{"duplicated pin", "mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n  io_map:\n    digitalInputs:\n      - pin_id: 1\n      - pin_id: 1\n"},
		{"min above max", "mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n  io_map:\n    analogInputs:\n      - pin_id: 1\n        pin_min_val: 10\n        pin_max_val: 5\n"},
		{"duplicated alias", "mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n---\nmcu:\n  alias: a\n  dev: /dev/y\n  component_name: d\n"},
		{"empty", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(c.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProfile), "%v", err)
		})
	}
}

func TestParseYAMLSyntaxError(t *testing.T) {
	_, err := ParseYAML([]byte("mcu: [\n"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidProfile))
}

func TestParseYAMLEmptyIOMapEntry(t *testing.T) {
	boards, err := ParseYAML([]byte("mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n  io_map:\n    digitalInputs:\n"))
	require.NoError(t, err)
	require.Len(t, boards, 1)
	kinds := boards[0].Kinds()
	require.Len(t, kinds, 1)
	assert.Empty(t, boards[0].FeaturePins(kinds[0]))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocate(t *testing.T) {
	dir, err := ioutil.TempDir("", "mcuconn")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "board.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("mcu:\n  alias: a\n  dev: /dev/x\n  component_name: c\n"), 0644))

	os.Setenv(EnvProfile, path)
	defer os.Unsetenv(EnvProfile)
	located, err := Locate()
	require.NoError(t, err)
	assert.Equal(t, path, located)
	assert.Equal(t, path, Candidates()[0])
}
