// Package env provides the process configuration of the connector daemon.
package env

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/mcuconn/pkg/config"
	fx "github.com/robotalks/mcuconn/pkg/framework"
	"github.com/robotalks/mcuconn/pkg/mqtt"
)

// EnvMQTTURL overrides the default MQTT broker URL.
const EnvMQTTURL = "MCUCONN_MQTT_URL"

// AppID scopes the machine ID.
const AppID = "mcuconn"

// Config defines the options of the daemon.
type Config struct {
	// ProfilePath is the board profile, located if empty.
	ProfilePath string
	// MQTTBrokerURL enables the MQTT bridge if not empty.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string
	// HTTPAddr enables the status API if not empty.
	HTTPAddr string
	Console  bool
	Checksum bool
	// ListDevices prints serial devices and exits.
	ListDevices bool
	Interval    time.Duration
}

var defaultConfig = Config{
	Interval: fx.DefaultInterval,
}

func init() {
	if val := os.Getenv(config.EnvProfile); val != "" {
		defaultConfig.ProfilePath = val
	}
	if val := os.Getenv(EnvMQTTURL); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ProfilePath, "profile", defaultConfig.ProfilePath, "Board profile (YAML or TOML), located if empty.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, e.g. mqtt://localhost:1883/mcu/")
	flag.StringVar(&defaultConfig.HTTPAddr, "http", defaultConfig.HTTPAddr, "Listen address of the status API, e.g. :8080")
	flag.BoolVar(&defaultConfig.Console, "console", defaultConfig.Console, "Run interactive console.")
	flag.BoolVar(&defaultConfig.Checksum, "checksum", defaultConfig.Checksum, "Append CRC-8 to frames, for older firmware.")
	flag.BoolVar(&defaultConfig.ListDevices, "list", defaultConfig.ListDevices, "List serial devices and exit.")
	flag.DurationVar(&defaultConfig.Interval, "interval", defaultConfig.Interval, "Supervision interval.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadProfile loads the configured profile or locates one.
func (c *Config) LoadProfile() (*config.Profile, error) {
	path := c.ProfilePath
	if path == "" {
		located, err := config.Locate()
		if err != nil {
			return nil, fmt.Errorf("%w, tried %v", err, config.Candidates())
		}
		path = located
	}
	glog.Infof("loading profile %s", path)
	return config.Load(path)
}

// NewQueue creates the MQTT queue, nil if no broker is configured.
// The client ID defaults to one derived from the machine ID.
func (c *Config) NewQueue() (*mqtt.Queue, error) {
	if c.MQTTBrokerURL == "" {
		return nil, nil
	}
	opts, prefix, err := mqtt.ClientOptionsFromURL(c.MQTTBrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT broker URL: %w", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID(AppID + ":" + MachineID())
	}
	return mqtt.NewQueue(opts, prefix), nil
}

// MachineID retrieves the ID identifying the machine, scoped to AppID.
// It falls back to the host name.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:12]
	}
	glog.Warningf("machine id unavailable: %v", err)
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
