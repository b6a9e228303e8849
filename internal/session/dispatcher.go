package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/embermug/internal/ble"
	"github.com/chaz8081/embermug/internal/ble/protocol"
)

// ErrNotConnected is returned, possibly wrapped, by every dispatcher
// operation that could not reach the mug.
var ErrNotConnected = errors.New("session: not connected")

// Dispatcher issues reads and writes over the current link. It never caches
// the link: every call fetches it from State and fails with ErrNotConnected
// unless the phase is Connected.
type Dispatcher struct {
	state  *State
	keeper *Keeper
}

// NewDispatcher creates a dispatcher. keeper may be nil.
func NewDispatcher(state *State, keeper *Keeper) *Dispatcher {
	return &Dispatcher{state: state, keeper: keeper}
}

// Connected reports whether a link is currently usable.
func (d *Dispatcher) Connected() bool {
	link := d.state.Link()
	return link != nil && link.IsAlive()
}

// Unit returns the display unit of the session.
func (d *Dispatcher) Unit() protocol.Unit {
	return d.state.Unit()
}

func (d *Dispatcher) link(op string, c protocol.Characteristic) (*ble.Link, error) {
	link := d.state.Link()
	if link == nil {
		slog.Debug("[SESSION] not connected", "op", op, "characteristic", string(c))
		return nil, ErrNotConnected
	}
	return link, nil
}

// linkFailure asks the keeper to check the link and marks err as a
// connectivity failure.
func (d *Dispatcher) linkFailure(err error) error {
	if d.keeper != nil {
		d.keeper.Nudge()
	}
	return fmt.Errorf("%w: %w", ErrNotConnected, err)
}

func (d *Dispatcher) read(c protocol.Characteristic) ([]byte, error) {
	link, err := d.link("read", c)
	if err != nil {
		return nil, err
	}
	data, err := link.Read(c.UUID())
	if err != nil {
		return nil, d.linkFailure(err)
	}
	return data, nil
}

func (d *Dispatcher) write(c protocol.Characteristic, link *ble.Link, data []byte) error {
	if err := link.Write(c.UUID(), data); err != nil {
		return d.linkFailure(err)
	}
	return nil
}

func (d *Dispatcher) readTemperature(c protocol.Characteristic) (float64, error) {
	data, err := d.read(c)
	if err != nil {
		return 0, err
	}
	v, err := protocol.DecodeTemperature(data, d.state.Unit())
	if err != nil {
		return 0, d.linkFailure(err)
	}
	return v, nil
}

// CurrentTemperature returns the liquid temperature in the session unit.
// Returns 0 when not connected.
func (d *Dispatcher) CurrentTemperature() (float64, error) {
	return d.readTemperature(protocol.CurrentTemp)
}

// TargetTemperature returns the heater set point in the session unit.
// Returns 0 when not connected.
func (d *Dispatcher) TargetTemperature() (float64, error) {
	return d.readTemperature(protocol.TargetTemp)
}

// SetTargetTemperature writes a set point given in centidegrees Celsius.
// The write is attempted at most once.
func (d *Dispatcher) SetTargetTemperature(centidegrees int) error {
	link, err := d.link("write", protocol.TargetTemp)
	if err != nil {
		return err
	}
	data, err := protocol.EncodeCentidegrees(centidegrees)
	if err != nil {
		return err
	}
	if err := d.write(protocol.TargetTemp, link, data); err != nil {
		return err
	}
	slog.Info("[SESSION] target temperature set", "centidegrees", centidegrees)
	return nil
}

// CurrentBattery returns the charge state. Returns the zero Battery when not
// connected.
func (d *Dispatcher) CurrentBattery() (protocol.Battery, error) {
	data, err := d.read(protocol.CurrentBat)
	if err != nil {
		return protocol.Battery{}, err
	}
	b, err := protocol.DecodeBattery(data)
	if err != nil {
		return protocol.Battery{}, d.linkFailure(err)
	}
	return b, nil
}

// CurrentLEDColor returns the LED color. Returns the zero Color when not
// connected.
func (d *Dispatcher) CurrentLEDColor() (protocol.Color, error) {
	data, err := d.read(protocol.LEDColor)
	if err != nil {
		return protocol.Color{}, err
	}
	c, err := protocol.ParseColor(data)
	if err != nil {
		return protocol.Color{}, d.linkFailure(err)
	}
	return c, nil
}

// SetLEDColor writes raw RGBA bytes. Anything but four bytes is rejected
// with an *protocol.EncodingError before touching the link.
func (d *Dispatcher) SetLEDColor(rgba []byte) error {
	link, err := d.link("write", protocol.LEDColor)
	if err != nil {
		return err
	}
	c, err := protocol.ParseColor(rgba)
	if err != nil {
		return err
	}
	if err := d.write(protocol.LEDColor, link, c.Bytes()); err != nil {
		return err
	}
	slog.Info("[SESSION] led color set", "color", c.String())
	return nil
}

// ApplyPreset writes the stored preset called name and reads back the new
// target temperature.
func (d *Dispatcher) ApplyPreset(name string) (float64, error) {
	centi, err := d.state.Presets().Get(name)
	if err != nil {
		return 0, err
	}
	if err := d.SetTargetTemperature(centi); err != nil {
		return 0, err
	}
	return d.TargetTemperature()
}

// SetPreset replaces a stored preset after checking it can be encoded.
func (d *Dispatcher) SetPreset(name string, centidegrees int) error {
	if _, err := protocol.EncodeCentidegrees(centidegrees); err != nil {
		return err
	}
	return d.state.SetPreset(name, centidegrees)
}
