package msgs

import "fmt"

// ProtocolVersion is the only protocol version accepted in a Handshake.
const ProtocolVersion = 1

// DefaultUID is used when a Handshake doesn't carry "ui".
const DefaultUID = "UNDEFINED"

// Type identifies a message on the wire.
type Type int

// Message types.
const (
	TypeInviteSync Type = 0
	TypeHeartbeat  Type = 1
	TypeResponse   Type = 2
	TypeHandshake  Type = 3
	TypePinChange  Type = 4
	TypePinStatus  Type = 5
	TypeDebug      Type = 6
	TypeConfig     Type = 7
	TypeConfigAck  Type = 8
	TypeConfigNak  Type = 9
)

var typeNames = map[Type]string{
	TypeInviteSync: "InviteSync",
	TypeHeartbeat:  "Heartbeat",
	TypeResponse:   "Response",
	TypeHandshake:  "Handshake",
	TypePinChange:  "PinChange",
	TypePinStatus:  "PinStatus",
	TypeDebug:      "Debug",
	TypeConfig:     "Config",
	TypeConfigAck:  "ConfigAck",
	TypeConfigNak:  "ConfigNak",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Message is implemented by all message variants.
type Message interface {
	Type() Type
}

// FeatureMessage is a message addressed to a feature.
type FeatureMessage interface {
	Message
	Feature() int
}

// InviteSync asks the board to start a handshake.
type InviteSync struct {
	ProtocolVersion int
}

// Handshake is sent by the board to establish a connection,
// and echoed back by the host.
type Handshake struct {
	ProtocolVersion  int
	FeatureMap       uint64
	TimeoutMs        int64
	ProfileSignature uint32
	UID              string
	DigitalPins      int
	AnalogInputs     int
	AnalogOutputs    int
}

// Heartbeat keeps the connection alive. Both sides send it.
type Heartbeat struct {
	Uptime int64
}

// PinInfo is one pin value in a PinChange.
type PinInfo struct {
	LogicalID int
	PinID     int
	Value     int
}

// PinChange reports pin values of a feature.
type PinChange struct {
	FeatureID        int
	Seq              int
	ResponseRequired bool
	Pins             []PinInfo
}

// DigitalSettings are pin settings for digital features.
type DigitalSettings struct {
	Debounce int
	PullUp   bool
}

// AnalogSettings are pin settings for analog features.
type AnalogSettings struct {
	Smoothing int
	Max       int
	Min       int
}

// PinConfig is the pin description carried by Config.
// Exactly one of Digital and Analog is set.
type PinConfig struct {
	FeatureID         int
	PinID             int
	LogicalID         int
	InitialState      int
	ConnectedState    int
	DisconnectedState int
	Digital           *DigitalSettings
	Analog            *AnalogSettings
}

// Config pushes one pin configuration to the board.
type Config struct {
	FeatureID int
	Seq       int
	Total     int
	Pin       PinConfig
}

// ConfigAck acknowledges a Config.
type ConfigAck struct {
	FeatureID         int
	Seq               int
	FeatureArrayIndex int
}

// ConfigNak rejects a Config.
type ConfigNak struct {
	FeatureID   int
	Seq         int
	ErrorCode   int
	ErrorString string
}

// Debug carries a log string from the board.
type Debug struct {
	Text string
}

// Type implements Message.
func (m *InviteSync) Type() Type { return TypeInviteSync }

// Type implements Message.
func (m *Handshake) Type() Type { return TypeHandshake }

// Type implements Message.
func (m *Heartbeat) Type() Type { return TypeHeartbeat }

// Type implements Message.
func (m *PinChange) Type() Type { return TypePinChange }

// Type implements Message.
func (m *Config) Type() Type { return TypeConfig }

// Type implements Message.
func (m *ConfigAck) Type() Type { return TypeConfigAck }

// Type implements Message.
func (m *ConfigNak) Type() Type { return TypeConfigNak }

// Type implements Message.
func (m *Debug) Type() Type { return TypeDebug }

// Feature implements FeatureMessage.
func (m *PinChange) Feature() int { return m.FeatureID }

// Feature implements FeatureMessage.
func (m *Config) Feature() int { return m.FeatureID }

// Feature implements FeatureMessage.
func (m *ConfigAck) Feature() int { return m.FeatureID }

// Feature implements FeatureMessage.
func (m *ConfigNak) Feature() int { return m.FeatureID }

// Error implements error so a ConfigNak can be returned as the cause of
// a sync failure.
func (m *ConfigNak) Error() string {
	return fmt.Sprintf("config rejected: feature %d seq %d: %s (%d)", m.FeatureID, m.Seq, m.ErrorString, m.ErrorCode)
}
