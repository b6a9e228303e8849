package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/embermug/internal/ble"
	"github.com/chaz8081/embermug/internal/ble/protocol"
)

// connectedState returns a state in the Connected phase holding a link to a
// fake mug.
func connectedState(t *testing.T, unit protocol.Unit) (*State, *fakeConnection) {
	t.Helper()
	adapter := newFakeAdapter()
	link, err := ble.Dial(context.Background(), adapter, mugAddress)
	require.NoError(t, err)

	state := NewState(unit, DefaultPresets)
	state.markScanComplete()
	state.setConnected(link)
	return state, adapter.latest()
}

func TestDispatcherNotConnectedDefaults(t *testing.T) {
	d := NewDispatcher(NewState(protocol.Celsius, DefaultPresets), nil)

	temp, err := d.CurrentTemperature()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, temp)

	target, err := d.TargetTemperature()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, target)

	bat, err := d.CurrentBattery()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, protocol.Battery{}, bat)

	color, err := d.CurrentLEDColor()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, protocol.Color{0, 0, 0, 0}, color)

	assert.ErrorIs(t, d.SetTargetTemperature(5500), ErrNotConnected)
	assert.ErrorIs(t, d.SetLEDColor([]byte{1, 2, 3, 4}), ErrNotConnected)
	assert.False(t, d.Connected())
}

func TestDispatcherLogsNotConnected(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	d := NewDispatcher(NewState(protocol.Celsius, DefaultPresets), nil)
	_, err := d.CurrentBattery()
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, d.SetTargetTemperature(5500), ErrNotConnected)

	out := buf.String()
	assert.Contains(t, out, "[SESSION] not connected")
	assert.Contains(t, out, "op=read characteristic=current_bat")
	assert.Contains(t, out, "op=write characteristic=target_temp")
}

func TestDispatcherReads(t *testing.T) {
	state, _ := connectedState(t, protocol.Celsius)
	d := NewDispatcher(state, nil)

	temp, err := d.CurrentTemperature()
	require.NoError(t, err)
	assert.Equal(t, 55.0, temp)

	target, err := d.TargetTemperature()
	require.NoError(t, err)
	assert.Equal(t, 59.0, target)

	bat, err := d.CurrentBattery()
	require.NoError(t, err)
	assert.Equal(t, protocol.Battery{Percent: 87, Charging: true}, bat)

	color, err := d.CurrentLEDColor()
	require.NoError(t, err)
	assert.Equal(t, protocol.Color{0xff, 0x80, 0x00, 0xff}, color)
	assert.True(t, d.Connected())
}

func TestDispatcherReadsFahrenheit(t *testing.T) {
	state, conn := connectedState(t, protocol.Fahrenheit)
	conn.values[protocol.CurrentTemp.UUID()] = []byte{0x98, 0x15} // 55.28 °C
	d := NewDispatcher(state, nil)

	temp, err := d.CurrentTemperature()
	require.NoError(t, err)
	assert.Equal(t, 131.5, temp)
}

func TestDispatcherSetTargetTemperature(t *testing.T) {
	state, conn := connectedState(t, protocol.Fahrenheit)
	d := NewDispatcher(state, nil)

	// Writes are centidegrees Celsius whatever the display unit.
	require.NoError(t, d.SetTargetTemperature(5900))
	assert.Equal(t, []byte{0x0c, 0x17}, conn.value(protocol.TargetTemp.UUID()))
}

func TestDispatcherSetTargetTemperatureEncodingError(t *testing.T) {
	state, conn := connectedState(t, protocol.Celsius)
	d := NewDispatcher(state, nil)

	err := d.SetTargetTemperature(70000)
	var encErr *protocol.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, conn.writes)
}

func TestDispatcherSetLEDColor(t *testing.T) {
	state, conn := connectedState(t, protocol.Celsius)
	d := NewDispatcher(state, nil)

	require.NoError(t, d.SetLEDColor([]byte{0, 255, 0, 128}))
	assert.Equal(t, []byte{0, 255, 0, 128}, conn.value(protocol.LEDColor.UUID()))

	err := d.SetLEDColor([]byte{1, 2, 3})
	var encErr *protocol.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, 1, conn.writes, "invalid color must not be written")
}

func TestDispatcherLinkErrorNudgesKeeper(t *testing.T) {
	state, conn := connectedState(t, protocol.Celsius)
	keeper := NewKeeper(state, time.Hour)
	d := NewDispatcher(state, keeper)
	conn.setReadErr(errRadio)

	temp, err := d.CurrentTemperature()
	assert.Zero(t, temp)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, errRadio)
	var linkErr *ble.LinkError
	assert.ErrorAs(t, err, &linkErr)

	select {
	case <-keeper.nudge:
	default:
		t.Fatal("keeper was not nudged after a link error")
	}
}

func TestDispatcherShortPayloadIsLinkFailure(t *testing.T) {
	state, conn := connectedState(t, protocol.Celsius)
	conn.values[protocol.CurrentBat.UUID()] = []byte{50}
	d := NewDispatcher(state, NewKeeper(state, time.Hour))

	bat, err := d.CurrentBattery()
	assert.Equal(t, protocol.Battery{}, bat)
	assert.ErrorIs(t, err, ErrNotConnected)
	var decErr *protocol.DecodeError
	assert.ErrorAs(t, err, &decErr)
}

func TestDispatcherSeesDisconnectImmediately(t *testing.T) {
	state, _ := connectedState(t, protocol.Celsius)
	d := NewDispatcher(state, nil)
	keeper := NewKeeper(state, time.Hour)

	keeper.release(state.Link())

	_, err := d.CurrentTemperature()
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, Disconnecting, state.Phase())
}

func TestDispatcherApplyPreset(t *testing.T) {
	state, conn := connectedState(t, protocol.Celsius)
	d := NewDispatcher(state, nil)

	target, err := d.ApplyPreset(PresetCoffee)
	require.NoError(t, err)
	assert.Equal(t, 55.0, target)
	assert.Equal(t, []byte{0x7c, 0x15}, conn.value(protocol.TargetTemp.UUID()))

	_, err = d.ApplyPreset("espresso")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestDispatcherSetPreset(t *testing.T) {
	state := NewState(protocol.Celsius, DefaultPresets)
	d := NewDispatcher(state, nil)

	require.NoError(t, d.SetPreset(PresetTea, 6150))
	assert.Equal(t, Presets{Coffee: 5500, Tea: 6150}, state.Presets())

	var encErr *protocol.EncodingError
	assert.ErrorAs(t, d.SetPreset(PresetTea, -1), &encErr)
	assert.ErrorIs(t, d.SetPreset("mate", 6000), ErrUnknownPreset)
	assert.Equal(t, 6150, state.Presets().Tea)
}
