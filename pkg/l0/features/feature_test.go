package features

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/msgs"
)

type testSender struct {
	sent []msgs.Message
}

func (s *testSender) SendMessage(m msgs.Message) error {
	s.sent = append(s.sent, m)
	return nil
}

func (s *testSender) take() []msgs.Message {
	sent := s.sent
	s.sent = nil
	return sent
}

type featureTestCtx struct {
	t       *testing.T
	feature *Feature
	sink    *hal.Registry
	sender  *testSender
	now     time.Time
}

func newFeatureTestCtx(t *testing.T, configName string, pins ...Pin) *featureTestCtx {
	kind, ok := Lookup(configName)
	require.True(t, ok)
	tctx := &featureTestCtx{
		t:       t,
		feature: New(kind, pins),
		sink:    hal.NewRegistry(),
		sender:  &testSender{},
		now:     time.Date(2024, 2, 29, 12, 28, 24, 0, time.UTC),
	}
	tctx.feature.Component = "b1"
	tctx.feature.Sink = tctx.sink
	tctx.feature.Sender = tctx.sender
	require.NoError(t, tctx.feature.Setup())
	return tctx
}

func pins(ids ...int) []Pin {
	list := make([]Pin, 0, len(ids))
	for _, id := range ids {
		list = append(list, NewPin(id))
	}
	return list
}

func (c *featureTestCtx) advance(d time.Duration) *featureTestCtx {
	c.now = c.now.Add(d)
	return c
}

func (c *featureTestCtx) loop() []msgs.Message {
	c.feature.Loop(c.now)
	return c.sender.take()
}

func (c *featureTestCtx) expectConfig(seq int) *msgs.Config {
	sent := c.loop()
	require.Len(c.t, sent, 1)
	cfg, ok := sent[0].(*msgs.Config)
	require.True(c.t, ok)
	require.Equal(c.t, seq, cfg.Seq)
	return cfg
}

func (c *featureTestCtx) expectNothing() {
	require.Empty(c.t, c.loop())
}

func (c *featureTestCtx) ack(seq int) {
	c.feature.OnMessage(&msgs.ConfigAck{FeatureID: int(c.feature.ID()), Seq: seq, FeatureArrayIndex: 2})
}

func (c *featureTestCtx) pinValue(name string) float64 {
	h, ok := c.sink.Lookup(name)
	require.True(c.t, ok, name)
	v, err := c.sink.Get(h)
	require.NoError(c.t, err)
	return v
}

func TestConfigSync(t *testing.T) {
	tctx := newFeatureTestCtx(t, "digitalInputs", pins(3, 4, 5, 6)...)
	tctx.feature.OnConnected(tctx.now)
	require.False(t, tctx.feature.ConfigComplete())

	for seq := 0; seq < 4; seq++ {
		cfg := tctx.expectConfig(seq)
		assert.Equal(t, int(DigitalInputs), cfg.FeatureID)
		assert.Equal(t, 4, cfg.Total)
		assert.Equal(t, seq, cfg.Pin.LogicalID)
		assert.Equal(t, 3+seq, cfg.Pin.PinID)
		require.NotNil(t, cfg.Pin.Digital)
		assert.Nil(t, cfg.Pin.Analog)
		assert.Equal(t, msgs.DefaultDebounce, cfg.Pin.Digital.Debounce)
		tctx.expectNothing()
		tctx.ack(seq)
	}
	assert.True(t, tctx.feature.ConfigComplete())
	assert.NoError(t, tctx.feature.SyncError())
	tctx.expectNothing()

	status := tctx.feature.Status()
	assert.Equal(t, 2, status.ArrayIndex)
	assert.Empty(t, status.Pending)
	require.Len(t, status.Pins, 4)
	for _, pin := range status.Pins {
		assert.True(t, pin.Synced)
	}
}

func TestConfigRetryExhaustion(t *testing.T) {
	tctx := newFeatureTestCtx(t, "digitalInputs", pins(3, 4)...)
	tctx.feature.OnConnected(tctx.now)

	tctx.expectConfig(0)
	tctx.advance(5 * time.Second).expectNothing()
	tctx.advance(5 * time.Second).expectConfig(0)
	tctx.advance(10 * time.Second).expectConfig(0)
	tctx.advance(10 * time.Second).expectNothing()

	err := tctx.feature.SyncError()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigSync))
	assert.False(t, tctx.feature.ConfigComplete())
	assert.Empty(t, tctx.feature.Status().Pending)

	tctx.advance(time.Minute).expectNothing()

	tctx.feature.OnConnected(tctx.now)
	assert.NoError(t, tctx.feature.SyncError())
	tctx.expectConfig(0)
}

func TestConfigNak(t *testing.T) {
	tctx := newFeatureTestCtx(t, "analogInputs", pins(14, 15)...)
	tctx.feature.OnConnected(tctx.now)
	cfg := tctx.expectConfig(0)
	require.NotNil(t, cfg.Pin.Analog)
	assert.Equal(t, msgs.AnalogSettings{Smoothing: 200, Max: 1023, Min: 0}, *cfg.Pin.Analog)

	tctx.feature.OnMessage(&msgs.ConfigNak{FeatureID: 6, Seq: 0, ErrorCode: 1, ErrorString: "bad pin"})
	err := tctx.feature.SyncError()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigSync))
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	require.NotNil(t, syncErr.Nak)
	assert.Equal(t, "bad pin", syncErr.Nak.ErrorString)
	assert.False(t, tctx.feature.ConfigComplete())
	tctx.advance(time.Minute).expectNothing()
}

func TestUnexpectedAck(t *testing.T) {
	tctx := newFeatureTestCtx(t, "digitalInputs", pins(3)...)
	tctx.feature.OnConnected(tctx.now)
	tctx.expectConfig(0)
	tctx.ack(5)
	assert.False(t, tctx.feature.ConfigComplete())
	tctx.ack(0)
	assert.True(t, tctx.feature.ConfigComplete())
}

func TestPinChange(t *testing.T) {
	tctx := newFeatureTestCtx(t, "digitalInputs", pins(3, 4)...)
	assert.Equal(t, float64(0), tctx.pinValue("b1.digitalInputs.3"))
	tctx.feature.OnMessage(&msgs.PinChange{
		FeatureID: 4,
		Pins:      []msgs.PinInfo{{LogicalID: 0, PinID: 3, Value: 1}, {LogicalID: 9, PinID: 99, Value: 1}},
	})
	assert.Equal(t, float64(1), tctx.pinValue("b1.digitalInputs.3"))
	assert.Equal(t, float64(0), tctx.pinValue("b1.digitalInputs.4"))
	assert.Equal(t, 1, tctx.feature.Status().Pins[0].Value)
}

func TestDisabledPins(t *testing.T) {
	list := pins(3, 4, 5)
	list[1].Enabled = false
	tctx := newFeatureTestCtx(t, "digitalInputs", list...)
	_, ok := tctx.sink.Lookup("b1.digitalInputs.4")
	assert.False(t, ok)

	tctx.feature.OnConnected(tctx.now)
	cfg := tctx.expectConfig(0)
	assert.Equal(t, 2, cfg.Total)
	tctx.ack(0)
	cfg = tctx.expectConfig(1)
	assert.Equal(t, 5, cfg.Pin.PinID)

	tctx.feature.OnMessage(&msgs.PinChange{FeatureID: 4, Pins: []msgs.PinInfo{{PinID: 4, Value: 1}}})
	for _, pin := range tctx.feature.Status().Pins {
		assert.Zero(t, pin.Value)
	}
}

func TestStateDefaults(t *testing.T) {
	list := pins(3, 4)
	list[0].Name = "estop"
	list[0].InitialState = 1
	list[0].DisconnectedState = 0
	tctx := newFeatureTestCtx(t, "digitalInputs", list...)
	assert.Equal(t, float64(1), tctx.pinValue("b1.estop"))

	tctx.feature.OnConnected(tctx.now)
	tctx.expectConfig(0)
	tctx.ack(0)
	tctx.feature.OnDisconnected()
	assert.Equal(t, float64(0), tctx.pinValue("b1.estop"))
	assert.False(t, tctx.feature.ConfigComplete())
	for _, pin := range tctx.feature.Status().Pins {
		assert.False(t, pin.Synced)
	}
	tctx.expectNothing()
}

func TestOutputMirroring(t *testing.T) {
	tctx := newFeatureTestCtx(t, "digitalOutputs", pins(8, 9)...)
	tctx.feature.OnConnected(tctx.now)
	tctx.expectConfig(0)
	tctx.ack(0)
	tctx.expectConfig(1)
	tctx.ack(1)
	require.True(t, tctx.feature.ConfigComplete())

	sent := tctx.loop()
	require.Len(t, sent, 1)
	pc := sent[0].(*msgs.PinChange)
	assert.Equal(t, int(DigitalOutputs), pc.FeatureID)
	assert.Equal(t, []msgs.PinInfo{{LogicalID: 0, PinID: 8, Value: 0}, {LogicalID: 1, PinID: 9, Value: 0}}, pc.Pins)
	tctx.expectNothing()

	h, ok := tctx.sink.Lookup("b1.digitalOutputs.8")
	require.True(t, ok)
	require.NoError(t, tctx.sink.Set(h, 1))
	sent = tctx.loop()
	require.Len(t, sent, 1)
	assert.Equal(t, []msgs.PinInfo{{LogicalID: 0, PinID: 8, Value: 1}}, sent[0].(*msgs.PinChange).Pins)
	tctx.expectNothing()

	// values reported by the board land in the sink without being echoed
	tctx.feature.OnMessage(&msgs.PinChange{FeatureID: 5, Pins: []msgs.PinInfo{{LogicalID: 1, PinID: 9, Value: 1}}})
	h, ok = tctx.sink.Lookup("b1.digitalOutputs.9")
	require.True(t, ok)
	v, err := tctx.sink.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1, tctx.feature.Status().Pins[1].Value)
	assert.Empty(t, tctx.loop())
}

func TestNoEnabledPins(t *testing.T) {
	list := pins(3)
	list[0].Enabled = false
	tctx := newFeatureTestCtx(t, "digitalInputs", list...)
	tctx.feature.OnConnected(tctx.now)
	assert.True(t, tctx.feature.ConfigComplete())
	tctx.expectNothing()
}

func TestKinds(t *testing.T) {
	k, ok := Lookup("analogOutputs")
	require.True(t, ok)
	assert.Equal(t, AnalogOutputs, k.ID)
	assert.True(t, k.IsAnalog())
	assert.False(t, k.IsInput())
	assert.Equal(t, uint64(1<<7), k.Bit())
	_, ok = Lookup("pwmOutputs")
	assert.False(t, ok)

	list := Kinds()
	require.Len(t, list, 4)
	assert.Equal(t, DigitalInputs, list[0].ID)
	assert.Equal(t, AnalogOutputs, list[3].ID)

	assert.Panics(t, func() { Register(list[0]) })
}
