package sh

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/mcuconn/pkg/config"
	"github.com/robotalks/mcuconn/pkg/connector"
	"github.com/robotalks/mcuconn/pkg/hal"
)

type absentOpener struct{}

func (absentOpener) Open(device string) (io.ReadWriteCloser, error) {
	return nil, errors.New("no such file or directory")
}

func (absentOpener) Present(device string) bool { return false }

type shellTestCtx struct {
	t     *testing.T
	shell *Shell
	out   bytes.Buffer
	sink  *hal.Registry
}

func newShellTestCtx(t *testing.T) *shellTestCtx {
	in, out := 2, 13
	profile := &config.Profile{Boards: []*config.Board{{
		Alias:     "bench",
		Device:    "/dev/ttyTEST0",
		Component: "arduino",
		IOMap: map[string][]config.Pin{
			"digitalInputs":  {{ID: &in}},
			"digitalOutputs": {{ID: &out, Name: "led"}},
		},
	}}}
	tc := &shellTestCtx{t: t, sink: hal.NewRegistry()}
	c, err := connector.New(profile, connector.Options{
		Sink:      tc.sink,
		Transport: func(*config.Board) connector.Opener { return absentOpener{} },
	})
	require.NoError(t, err)
	tc.shell = New(c, tc.sink)
	tc.shell.Devices = func() ([]string, error) { return []string{"/dev/ttyTEST0"}, nil }
	tc.shell.Shell.SetOut(&tc.out)
	return tc
}

func (c *shellTestCtx) run(args ...string) (string, error) {
	c.out.Reset()
	err := c.shell.Shell.Process(args...)
	return c.out.String(), err
}

func TestLinksCmd(t *testing.T) {
	tc := newShellTestCtx(t)
	out, err := tc.run("links")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ALIAS"))
	assert.Contains(t, lines[1], "bench")
	assert.Contains(t, lines[1], "DISCONNECTED")
	assert.Contains(t, lines[1], "STOPPED")

	tc.shell.OutputJSON = true
	out, err = tc.run("links")
	require.NoError(t, err)
	assert.Contains(t, out, `"alias":"bench"`)
}

func TestPinsAndSetCmd(t *testing.T) {
	tc := newShellTestCtx(t)
	out, err := tc.run("set", "arduino.led", "1")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
	h, ok := tc.sink.Lookup("arduino.led")
	require.True(t, ok)
	v, err := tc.sink.Get(h)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)

	out, err = tc.run("pins", "bench")
	require.NoError(t, err)
	assert.Contains(t, out, "arduino.led")
	assert.Contains(t, out, "arduino.digitalInputs.2")

	_, err = tc.run("set", "arduino.nope", "1")
	assert.Error(t, err)
	_, err = tc.run("set", "arduino.led", "x")
	assert.Error(t, err)
	_, err = tc.run("set", "arduino.led")
	assert.Error(t, err)
}

func TestDevicesCmd(t *testing.T) {
	tc := newShellTestCtx(t)
	out, err := tc.run("devices")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyTEST0\n", out)
}

func TestResetCmd(t *testing.T) {
	tc := newShellTestCtx(t)
	_, err := tc.run("reset", "missing")
	assert.True(t, errors.Is(err, connector.ErrUnknownLink))
	_, err = tc.run("reset")
	assert.Error(t, err)
}
