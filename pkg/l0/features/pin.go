package features

import (
	"fmt"

	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/msgs"
)

// StateUnset means no default state is configured.
const StateUnset = -1

// Pin is a board pin served by a feature.
type Pin struct {
	Name              string
	PinID             int
	Enabled           bool
	InitialState      int
	ConnectedState    int
	DisconnectedState int
	// Digital settings.
	Debounce int
	PullUp   bool
	// Analog settings.
	Smoothing int
	Min       int
	Max       int

	LogicalID int
	Synced    bool
	Value     int

	handle   hal.Handle
	mirrored bool
}

// NewPin creates a pin with default settings.
func NewPin(pinID int) Pin {
	return Pin{
		PinID:             pinID,
		Enabled:           true,
		InitialState:      StateUnset,
		ConnectedState:    StateUnset,
		DisconnectedState: StateUnset,
		Debounce:          msgs.DefaultDebounce,
		Smoothing:         msgs.DefaultSmoothing,
		Min:               msgs.DefaultAnalogMin,
		Max:               msgs.DefaultAnalogMax,
	}
}

// SinkName is the name of the pin in the host pin sink.
func (p *Pin) SinkName(component string, kind Kind) string {
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("%s.%d", kind.ConfigName, p.PinID)
	}
	if component == "" {
		return name
	}
	return component + "." + name
}

func (p *Pin) config(kind Kind) msgs.PinConfig {
	c := msgs.PinConfig{
		FeatureID:         int(kind.ID),
		PinID:             p.PinID,
		LogicalID:         p.LogicalID,
		InitialState:      p.InitialState,
		ConnectedState:    p.ConnectedState,
		DisconnectedState: p.DisconnectedState,
	}
	if kind.IsAnalog() {
		c.Analog = &msgs.AnalogSettings{Smoothing: p.Smoothing, Max: p.Max, Min: p.Min}
	} else {
		c.Digital = &msgs.DigitalSettings{Debounce: p.Debounce, PullUp: p.PullUp}
	}
	return c
}
