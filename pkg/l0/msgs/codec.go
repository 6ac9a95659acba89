package msgs

import (
	"bytes"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Default pin settings, used when a Config doesn't carry them.
const (
	DefaultDebounce  = 100
	DefaultSmoothing = 200
	DefaultAnalogMax = 1023
	DefaultAnalogMin = 0
)

// Encode serializes a message into a MessagePack payload.
func Encode(m Message) ([]byte, error) {
	var values map[string]interface{}
	switch msg := m.(type) {
	case *InviteSync:
		values = map[string]interface{}{"pv": msg.ProtocolVersion}
	case *Handshake:
		values = map[string]interface{}{
			"pv": msg.ProtocolVersion,
			"fm": msg.FeatureMap,
			"to": msg.TimeoutMs,
			"ps": msg.ProfileSignature,
			"ui": msg.UID,
			"dp": msg.DigitalPins,
			"ai": msg.AnalogInputs,
			"ao": msg.AnalogOutputs,
		}
	case *Heartbeat:
		values = map[string]interface{}{"ut": msg.Uptime}
	case *PinChange:
		pins := make([]interface{}, 0, len(msg.Pins))
		for _, p := range msg.Pins {
			pins = append(pins, map[string]interface{}{"l": p.LogicalID, "p": p.PinID, "v": p.Value})
		}
		rr := 0
		if msg.ResponseRequired {
			rr = 1
		}
		values = map[string]interface{}{"fi": msg.FeatureID, "si": msg.Seq, "rr": rr, "ms": pins}
	case *Config:
		values = map[string]interface{}{
			"fi": msg.FeatureID,
			"se": msg.Seq,
			"to": msg.Total,
			"cs": msg.Pin.values(),
		}
	case *ConfigAck:
		values = map[string]interface{}{"fi": msg.FeatureID, "se": msg.Seq, "fa": msg.FeatureArrayIndex}
	case *ConfigNak:
		values = map[string]interface{}{"fi": msg.FeatureID, "se": msg.Seq, "ec": msg.ErrorCode, "es": msg.ErrorString}
	case *Debug:
		values = map[string]interface{}{"ds": msg.Text}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	values["mt"] = int(m.Type())

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c PinConfig) values() map[string]interface{} {
	values := map[string]interface{}{
		"fi": c.FeatureID,
		"id": c.PinID,
		"li": c.LogicalID,
		"is": c.InitialState,
		"cs": c.ConnectedState,
		"ds": c.DisconnectedState,
	}
	if d := c.Digital; d != nil {
		values["pd"] = d.Debounce
		values["ip"] = d.PullUp
	}
	if a := c.Analog; a != nil {
		values["ps"] = a.Smoothing
		values["pm"] = a.Max
		values["pn"] = a.Min
	}
	return values
}

// Decode parses a MessagePack payload into a message.
func Decode(payload []byte) (Message, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	var raw interface{}
	if err := msgpack.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("%w: not a map", ErrMalformed)
	}
	f := fields{t: Type(-1), m: m}
	mt, err := f.int64Value("mt")
	if err != nil {
		return nil, err
	}
	f.t = Type(mt)
	var msg Message
	switch f.t {
	case TypeInviteSync:
		msg, err = decodeInviteSync(f)
	case TypeHandshake:
		msg, err = decodeHandshake(f)
	case TypeHeartbeat:
		msg, err = decodeHeartbeat(f)
	case TypePinChange:
		msg, err = decodePinChange(f)
	case TypeConfig:
		msg, err = decodeConfig(f)
	case TypeConfigAck:
		msg, err = decodeConfigAck(f)
	case TypeConfigNak:
		msg, err = decodeConfigNak(f)
	case TypeDebug:
		msg, err = decodeDebug(f)
	default:
		err = fmt.Errorf("%w: %v", ErrUnknownType, f.t)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeInviteSync(f fields) (*InviteSync, error) {
	pv, err := f.intValue("pv")
	if err != nil {
		return nil, err
	}
	return &InviteSync{ProtocolVersion: pv}, nil
}

func decodeHandshake(f fields) (m *Handshake, err error) {
	hs := &Handshake{}
	if hs.ProtocolVersion, err = f.intValue("pv"); err != nil {
		return
	}
	if hs.ProtocolVersion != ProtocolVersion {
		return nil, invalid(f.t, "pv", hs.ProtocolVersion)
	}
	fm, err := f.int64Value("fm")
	if err != nil {
		return
	}
	if fm < 0 {
		return nil, invalid(f.t, "fm", fm)
	}
	hs.FeatureMap = uint64(fm)
	if hs.TimeoutMs, err = f.int64Value("to"); err != nil {
		return
	}
	if hs.TimeoutMs <= 0 {
		return nil, invalid(f.t, "to", hs.TimeoutMs)
	}
	ps, err := f.int64Value("ps")
	if err != nil {
		return
	}
	switch {
	case ps >= 0 && ps <= math.MaxUint32:
		hs.ProfileSignature = uint32(ps)
	case ps < 0 && ps >= math.MinInt32:
		hs.ProfileSignature = uint32(int32(ps))
	default:
		return nil, invalid(f.t, "ps", ps)
	}
	if hs.UID, err = f.optString("ui", DefaultUID); err != nil {
		return
	}
	if hs.DigitalPins, err = f.optInt("dp", 0); err != nil {
		return
	}
	if hs.AnalogInputs, err = f.optInt("ai", 0); err != nil {
		return
	}
	if hs.AnalogOutputs, err = f.optInt("ao", 0); err != nil {
		return
	}
	return hs, nil
}

func decodeHeartbeat(f fields) (*Heartbeat, error) {
	ut, err := f.int64Value("ut")
	if err != nil {
		return nil, err
	}
	return &Heartbeat{Uptime: ut}, nil
}

func decodePinChange(f fields) (m *PinChange, err error) {
	pc := &PinChange{}
	if pc.FeatureID, err = f.intValue("fi"); err != nil {
		return
	}
	if pc.Seq, err = f.intValue("si"); err != nil {
		return
	}
	if pc.ResponseRequired, err = f.boolValue("rr"); err != nil {
		return
	}
	items, err := f.list("ms")
	if err != nil {
		return
	}
	if len(items) > 0 {
		pc.Pins = make([]PinInfo, 0, len(items))
	}
	for _, item := range items {
		values, ok := asMap(item)
		if !ok {
			return nil, invalid(f.t, "ms", item)
		}
		pf := fields{t: f.t, m: values}
		var info PinInfo
		if info.LogicalID, err = pf.intValue("l"); err != nil {
			return nil, err
		}
		if info.PinID, err = pf.intValue("p"); err != nil {
			return nil, err
		}
		if info.Value, err = pf.intValue("v"); err != nil {
			return nil, err
		}
		pc.Pins = append(pc.Pins, info)
	}
	return pc, nil
}

func decodeConfig(f fields) (m *Config, err error) {
	c := &Config{}
	if c.FeatureID, err = f.intValue("fi"); err != nil {
		return
	}
	if c.Seq, err = f.intValue("se"); err != nil {
		return
	}
	if c.Total, err = f.intValue("to"); err != nil {
		return
	}
	cs, err := f.sub("cs")
	if err != nil {
		return
	}
	if c.Pin, err = decodePinConfig(cs); err != nil {
		return
	}
	return c, nil
}

func decodePinConfig(f fields) (c PinConfig, err error) {
	if c.FeatureID, err = f.intValue("fi"); err != nil {
		return
	}
	if c.PinID, err = f.intValue("id"); err != nil {
		return
	}
	if c.LogicalID, err = f.intValue("li"); err != nil {
		return
	}
	if c.InitialState, err = f.optInt("is", -1); err != nil {
		return
	}
	if c.ConnectedState, err = f.optInt("cs", -1); err != nil {
		return
	}
	if c.DisconnectedState, err = f.optInt("ds", -1); err != nil {
		return
	}
	if f.has("pd") || f.has("ip") {
		d := &DigitalSettings{}
		if d.Debounce, err = f.optInt("pd", DefaultDebounce); err != nil {
			return
		}
		if d.PullUp, err = f.optBool("ip", false); err != nil {
			return
		}
		c.Digital = d
	}
	if f.has("ps") || f.has("pm") || f.has("pn") {
		a := &AnalogSettings{}
		if a.Smoothing, err = f.optInt("ps", DefaultSmoothing); err != nil {
			return
		}
		if a.Max, err = f.optInt("pm", DefaultAnalogMax); err != nil {
			return
		}
		if a.Min, err = f.optInt("pn", DefaultAnalogMin); err != nil {
			return
		}
		c.Analog = a
	}
	return
}

func decodeConfigAck(f fields) (m *ConfigAck, err error) {
	ack := &ConfigAck{}
	if ack.FeatureID, err = f.intValue("fi"); err != nil {
		return
	}
	if ack.Seq, err = f.intValue("se"); err != nil {
		return
	}
	if ack.FeatureArrayIndex, err = f.intValue("fa"); err != nil {
		return
	}
	return ack, nil
}

func decodeConfigNak(f fields) (m *ConfigNak, err error) {
	nak := &ConfigNak{}
	if nak.FeatureID, err = f.intValue("fi"); err != nil {
		return
	}
	if nak.Seq, err = f.intValue("se"); err != nil {
		return
	}
	if nak.ErrorCode, err = f.intValue("ec"); err != nil {
		return
	}
	if nak.ErrorString, err = f.stringValue("es"); err != nil {
		return
	}
	return nak, nil
}

func decodeDebug(f fields) (*Debug, error) {
	ds, err := f.stringValue("ds")
	if err != nil {
		return nil, err
	}
	return &Debug{Text: ds}, nil
}
