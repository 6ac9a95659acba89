package config

import (
	"bytes"
	"hash/crc32"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/mcuconn/pkg/l0/features"
	"github.com/robotalks/mcuconn/pkg/l0/serial"
)

// ConnectionSerial is the only supported connection type.
const ConnectionSerial = "serial"

// DisabledSuffix is appended to the component name of disabled boards.
const DisabledSuffix = "_DISABLED"

// EnvProfile overrides the profile location.
const EnvProfile = "MCUCONN_PROFILE"

var (
	// ErrInvalidProfile indicates the profile content is rejected.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrNoProfile indicates no profile file can be found.
	ErrNoProfile = errors.New("no profile found")
)

// Connection defines how the board is connected.
type Connection struct {
	Type     string `yaml:"type" toml:"type" json:"type"`
	BaudRate int    `yaml:"baudrate" toml:"baudrate" json:"baudrate,omitempty"`
	// Timeout is the read timeout in milliseconds.
	Timeout int `yaml:"timeout" toml:"timeout" json:"timeout,omitempty"`
}

// Board is the profile of one microcontroller.
type Board struct {
	Alias        string           `yaml:"alias" toml:"alias" json:"alias"`
	Device       string           `yaml:"dev" toml:"dev" json:"dev"`
	Component    string           `yaml:"component_name" toml:"component_name" json:"component_name"`
	Enabled      *bool            `yaml:"enabled" toml:"enabled" json:"enabled,omitempty"`
	HALEmulation bool             `yaml:"hal_emulation" toml:"hal_emulation" json:"hal_emulation,omitempty"`
	Connection   *Connection      `yaml:"connection" toml:"connection" json:"connection,omitempty"`
	IOMap        map[string][]Pin `yaml:"io_map" toml:"io_map" json:"io_map,omitempty"`
}

// IsEnabled returns false only if the board is explicitly disabled.
func (b *Board) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// BaudRate returns the configured baud rate or the default.
func (b *Board) BaudRate() int {
	if b.Connection != nil && b.Connection.BaudRate > 0 {
		return b.Connection.BaudRate
	}
	return serial.DefaultBaudRate
}

// ReadTimeout returns the configured read timeout or the default.
func (b *Board) ReadTimeout() time.Duration {
	if b.Connection != nil && b.Connection.Timeout > 0 {
		return time.Duration(b.Connection.Timeout) * time.Millisecond
	}
	return serial.DefaultReadTimeout
}

// Kinds returns the feature kinds of io_map in feature ID order.
func (b *Board) Kinds() []features.Kind {
	var result []features.Kind
	for _, kind := range features.Kinds() {
		if _, ok := b.IOMap[kind.ConfigName]; ok {
			result = append(result, kind)
		}
	}
	return result
}

// Validate checks required fields and drops unknown io_map keys.
func (b *Board) Validate() error {
	if b.Alias == "" {
		return errors.Wrap(ErrInvalidProfile, "alias undefined")
	}
	if b.Device == "" {
		return errors.Wrapf(ErrInvalidProfile, "%s: dev undefined", b.Alias)
	}
	if b.Component == "" {
		return errors.Wrapf(ErrInvalidProfile, "%s: component_name undefined", b.Alias)
	}
	if b.Connection != nil {
		if b.Connection.Type == "" {
			return errors.Wrapf(ErrInvalidProfile, "%s: connection type undefined", b.Alias)
		}
		if !strings.EqualFold(b.Connection.Type, ConnectionSerial) {
			return errors.Wrapf(ErrInvalidProfile, "%s: connection type %q unsupported", b.Alias, b.Connection.Type)
		}
	}
	for name, pins := range b.IOMap {
		if _, ok := features.Lookup(name); !ok {
			glog.Warningf("%s: io_map %q unsupported, skipped", b.Alias, name)
			delete(b.IOMap, name)
			continue
		}
		seen := make(map[int]bool)
		for n := range pins {
			if err := pins[n].Validate(); err != nil {
				return errors.Wrapf(err, "%s: %s[%d]", b.Alias, name, n)
			}
			if seen[*pins[n].ID] {
				return errors.Wrapf(ErrInvalidProfile, "%s: %s: pin %d duplicated", b.Alias, name, *pins[n].ID)
			}
			seen[*pins[n].ID] = true
		}
	}
	if !b.IsEnabled() && !strings.HasSuffix(b.Component, DisabledSuffix) {
		b.Component += DisabledSuffix
	}
	return nil
}

// Profile is a loaded profile file.
type Profile struct {
	Path string
	// Signature is the CRC32 of the file content.
	Signature uint32
	Boards    []*Board
}

// Board finds a board by alias.
func (p *Profile) Board(alias string) *Board {
	for _, b := range p.Boards {
		if b.Alias == alias {
			return b
		}
	}
	return nil
}

// Enabled returns the boards not disabled.
func (p *Profile) Enabled() []*Board {
	var boards []*Board
	for _, b := range p.Boards {
		if b.IsEnabled() {
			boards = append(boards, b)
		}
	}
	return boards
}

// Signature computes the profile signature of the content.
func Signature(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Load reads the profile file, format is selected by extension.
func Load(path string) (*Profile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read profile %s", path)
	}
	var boards []*Board
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		boards, err = ParseTOML(data)
	default:
		boards, err = ParseYAML(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "profile %s", path)
	}
	return &Profile{Path: path, Signature: Signature(data), Boards: boards}, nil
}

type yamlDocument struct {
	MCU *Board `yaml:"mcu"`
}

// ParseYAML parses multi-document YAML, one board per document.
func ParseYAML(data []byte) ([]*Board, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var boards []*Board
	for n := 0; ; n++ {
		var doc yamlDocument
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "document %d", n)
		}
		if doc.MCU == nil {
			return nil, errors.Wrapf(ErrInvalidProfile, "document %d: mcu undefined", n)
		}
		boards = append(boards, doc.MCU)
	}
	return validate(boards)
}

type tomlDocument struct {
	MCU []*Board `toml:"mcu"`
}

// ParseTOML parses a TOML profile with an [[mcu]] array.
func ParseTOML(data []byte) ([]*Board, error) {
	var doc tomlDocument
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, errors.Wrap(err, "toml")
	}
	return validate(doc.MCU)
}

func validate(boards []*Board) ([]*Board, error) {
	if len(boards) == 0 {
		return nil, errors.Wrap(ErrInvalidProfile, "no mcu defined")
	}
	aliases := make(map[string]bool)
	for _, b := range boards {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if aliases[b.Alias] {
			return nil, errors.Wrapf(ErrInvalidProfile, "alias %q duplicated", b.Alias)
		}
		aliases[b.Alias] = true
	}
	return boards, nil
}

// Candidates lists profile locations in lookup order.
func Candidates() []string {
	var paths []string
	if p := os.Getenv(EnvProfile); p != "" {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".arduino", "config.yaml"))
	}
	return append(paths, "config.yaml")
}

// Locate returns the first existing profile location.
func Locate() (string, error) {
	for _, p := range Candidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrNoProfile
}
