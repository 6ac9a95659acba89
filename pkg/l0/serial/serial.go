// Package serial opens board links over serial ports.
package serial

import (
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	bugst "go.bug.st/serial"
)

// Defaults of a serial link.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
)

// Transport opens serial ports with the same line settings.
type Transport struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// NewTransport creates a Transport with default settings.
func NewTransport() *Transport {
	return &Transport{BaudRate: DefaultBaudRate, ReadTimeout: DefaultReadTimeout}
}

// Mode returns the line settings, 8N1.
func (t *Transport) Mode() *bugst.Mode {
	baud := t.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
}

// Open opens device. Reads on the returned port time out after
// ReadTimeout and return 0 bytes without error.
func (t *Transport) Open(device string) (io.ReadWriteCloser, error) {
	port, err := bugst.Open(device, t.Mode())
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", device)
	}
	timeout := t.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", device)
	}
	return port, nil
}

// Present returns true if device is in the list of serial ports.
func (t *Transport) Present(device string) bool {
	ports, err := List()
	if err != nil {
		return false
	}
	return Contains(ports, device)
}

// List returns the serial ports of the system, sorted.
func List() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	sort.Strings(ports)
	return ports, nil
}

// Contains returns true if device refers to one of ports,
// either by name or through a symlink (e.g. /dev/serial/by-id/...).
func Contains(ports []string, device string) bool {
	target := device
	if resolved, err := filepath.EvalSymlinks(device); err == nil {
		target = resolved
	}
	for _, port := range ports {
		if port == device || port == target {
			return true
		}
	}
	return false
}

// IsDisconnect returns true if err means the device went away.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	var code bugst.PortErrorCode
	var found bool
	var portErr *bugst.PortError
	var portErrValue bugst.PortError
	switch {
	case errors.As(err, &portErr):
		code, found = portErr.Code(), true
	case errors.As(err, &portErrValue):
		code, found = portErrValue.Code(), true
	}
	if found {
		switch code {
		case bugst.PortNotFound, bugst.PortClosed, bugst.InvalidSerialPort:
			return true
		}
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"device not configured",
		"input/output error",
		"no such device",
		"no such file or directory",
		"broken pipe",
		"bad file descriptor",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
