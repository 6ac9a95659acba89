package config

import (
	"github.com/pkg/errors"

	"github.com/robotalks/mcuconn/pkg/l0/features"
)

// Pin is the profile of a board pin. Unset fields take defaults.
type Pin struct {
	ID                *int   `yaml:"pin_id" toml:"pin_id" json:"pin_id"`
	Name              string `yaml:"pin_name" toml:"pin_name" json:"pin_name,omitempty"`
	Type              string `yaml:"pin_type" toml:"pin_type" json:"pin_type,omitempty"`
	Enabled           *bool  `yaml:"pin_enabled" toml:"pin_enabled" json:"pin_enabled,omitempty"`
	InitialState      *int   `yaml:"pin_initial_state" toml:"pin_initial_state" json:"pin_initial_state,omitempty"`
	ConnectedState    *int   `yaml:"pin_connected_state" toml:"pin_connected_state" json:"pin_connected_state,omitempty"`
	DisconnectedState *int   `yaml:"pin_disconnected_state" toml:"pin_disconnected_state" json:"pin_disconnected_state,omitempty"`
	Debounce          *int   `yaml:"pin_debounce" toml:"pin_debounce" json:"pin_debounce,omitempty"`
	PullUp            *bool  `yaml:"input_pullup" toml:"input_pullup" json:"input_pullup,omitempty"`
	Smoothing         *int   `yaml:"pin_smoothing" toml:"pin_smoothing" json:"pin_smoothing,omitempty"`
	Min               *int   `yaml:"pin_min_val" toml:"pin_min_val" json:"pin_min_val,omitempty"`
	Max               *int   `yaml:"pin_max_val" toml:"pin_max_val" json:"pin_max_val,omitempty"`
}

// Validate checks the pin.
func (p *Pin) Validate() error {
	if p.ID == nil {
		return errors.Wrap(ErrInvalidProfile, "pin_id undefined")
	}
	if *p.ID < 0 {
		return errors.Wrapf(ErrInvalidProfile, "pin_id %d negative", *p.ID)
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return errors.Wrapf(ErrInvalidProfile, "pin %d: pin_min_val above pin_max_val", *p.ID)
	}
	return nil
}

// FeaturePin converts to the pin served by a feature.
func (p *Pin) FeaturePin() features.Pin {
	var id int
	if p.ID != nil {
		id = *p.ID
	}
	pin := features.NewPin(id)
	pin.Name = p.Name
	setBool(&pin.Enabled, p.Enabled)
	setInt(&pin.InitialState, p.InitialState)
	setInt(&pin.ConnectedState, p.ConnectedState)
	setInt(&pin.DisconnectedState, p.DisconnectedState)
	setInt(&pin.Debounce, p.Debounce)
	setBool(&pin.PullUp, p.PullUp)
	setInt(&pin.Smoothing, p.Smoothing)
	setInt(&pin.Min, p.Min)
	setInt(&pin.Max, p.Max)
	return pin
}

// FeaturePins converts the pins of a feature kind.
func (b *Board) FeaturePins(kind features.Kind) []features.Pin {
	pins := b.IOMap[kind.ConfigName]
	result := make([]features.Pin, 0, len(pins))
	for n := range pins {
		result = append(result, pins[n].FeaturePin())
	}
	return result
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
