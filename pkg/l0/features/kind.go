package features

import (
	"fmt"
	"sort"

	"github.com/robotalks/mcuconn/pkg/hal"
)

// ID identifies a feature on the wire.
type ID int

// Feature IDs, the same values the firmware uses.
const (
	Debug          ID = 0
	DebugVerbose   ID = 1
	FeatureMap     ID = 2
	LowMem         ID = 3
	DigitalInputs  ID = 4
	DigitalOutputs ID = 5
	AnalogInputs   ID = 6
	AnalogOutputs  ID = 7
	PWMOutputs     ID = 8
)

// Kind describes a feature type.
type Kind struct {
	ID         ID
	Name       string
	ConfigName string
	// ValueType of the pins in the host pin sink.
	ValueType hal.ValueType
	// Direction of the pins in the host pin sink.
	// Board inputs are written by the component (hal.Out).
	Direction hal.Direction
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return k.Name
}

// IsInput returns true if pin values come from the board.
func (k Kind) IsInput() bool {
	return k.Direction == hal.Out
}

// IsAnalog returns true for analog pins.
func (k Kind) IsAnalog() bool {
	return k.ValueType == hal.Float
}

// Bit returns the bit of the kind in the handshake feature map.
func (k Kind) Bit() uint64 {
	return 1 << uint(k.ID)
}

var kinds = map[string]Kind{}

// Register adds a feature kind. It panics on duplicated config names.
func Register(k Kind) {
	if _, exist := kinds[k.ConfigName]; exist {
		panic(fmt.Sprintf("feature %q already registered", k.ConfigName))
	}
	kinds[k.ConfigName] = k
}

// Lookup finds a kind by the config name used in profiles.
func Lookup(configName string) (Kind, bool) {
	k, ok := kinds[configName]
	return k, ok
}

// MustLookup is Lookup but panics if the kind is not registered.
func MustLookup(configName string) Kind {
	k, ok := kinds[configName]
	if !ok {
		panic(fmt.Sprintf("feature %q not registered", configName))
	}
	return k
}

// Kinds lists registered kinds ordered by ID.
func Kinds() []Kind {
	list := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		list = append(list, k)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func init() {
	Register(Kind{ID: DigitalInputs, Name: "DIGITAL_INPUTS", ConfigName: "digitalInputs", ValueType: hal.Bit, Direction: hal.Out})
	Register(Kind{ID: DigitalOutputs, Name: "DIGITAL_OUTPUTS", ConfigName: "digitalOutputs", ValueType: hal.Bit, Direction: hal.In})
	Register(Kind{ID: AnalogInputs, Name: "ANALOG_INPUTS", ConfigName: "analogInputs", ValueType: hal.Float, Direction: hal.Out})
	Register(Kind{ID: AnalogOutputs, Name: "ANALOG_OUTPUTS", ConfigName: "analogOutputs", ValueType: hal.Float, Direction: hal.In})
}
