// Package shell provides the interactive command line for controlling the
// mug and the command executor shared with the Redis command channel.
package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chaz8081/embermug/internal/ble/protocol"
	"github.com/chaz8081/embermug/internal/session"
)

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("shell: quit")

// Mug is the set of dispatcher operations the shell exposes.
type Mug interface {
	Connected() bool
	Unit() protocol.Unit
	CurrentTemperature() (float64, error)
	TargetTemperature() (float64, error)
	SetTargetTemperature(centidegrees int) error
	CurrentBattery() (protocol.Battery, error)
	CurrentLEDColor() (protocol.Color, error)
	SetLEDColor(rgba []byte) error
	ApplyPreset(name string) (float64, error)
	SetPreset(name string, centidegrees int) error
}

var _ Mug = (*session.Dispatcher)(nil)

// PresetStore persists a changed preset.
type PresetStore func(name string, centidegrees int) error

// Commands executes shell command lines against a Mug.
type Commands struct {
	mug     Mug
	presets func() session.Presets
	save    PresetStore
}

// NewCommands creates an executor. presets returns the current stored
// presets; save may be nil when presets should not be persisted.
func NewCommands(mug Mug, presets func() session.Presets, save PresetStore) *Commands {
	return &Commands{mug: mug, presets: presets, save: save}
}

// Execute runs one command line and returns the text to show the user.
func (c *Commands) Execute(_ context.Context, line string) (string, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		return helpText, nil
	case "status", "s":
		return c.status(), nil
	case "temp", "t":
		return c.temperature(c.mug.CurrentTemperature)
	case "target":
		if len(args) == 0 {
			return c.temperature(c.mug.TargetTemperature)
		}
		return c.setTarget(args)
	case session.PresetCoffee, session.PresetTea:
		v, err := c.mug.ApplyPreset(cmd)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Set %s temperature, target now %s", cmd, c.format(v)), nil
	case "battery", "b":
		b, err := c.mug.CurrentBattery()
		if err != nil {
			return "", err
		}
		return formatBattery(b), nil
	case "color", "c":
		if len(args) == 0 {
			col, err := c.mug.CurrentLEDColor()
			if err != nil {
				return "", err
			}
			return col.String(), nil
		}
		return c.setColor(args)
	case "preset", "p":
		if len(args) == 0 {
			return c.listPresets(), nil
		}
		return c.setPreset(args)
	case "quit", "exit", "q":
		return "", ErrQuit
	default:
		return "", fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

const helpText = `Commands:
  status                    - Connection state and latest readings
  temp                      - Current liquid temperature
  target [degrees]          - Show or set the target temperature
  coffee | tea              - Apply a stored preset
  battery                   - Battery level and charging state
  color [R G B A]           - Show or set the LED color (0-255 each)
  preset [coffee|tea <deg>] - List or change stored presets
  quit                      - Exit`

func (c *Commands) format(v float64) string {
	return protocol.FormatTemperature(v, c.mug.Unit())
}

func (c *Commands) temperature(read func() (float64, error)) (string, error) {
	v, err := read()
	if err != nil {
		return "", err
	}
	return c.format(v), nil
}

func (c *Commands) status() string {
	if !c.mug.Connected() {
		return "not connected"
	}
	var b strings.Builder
	b.WriteString("connected")
	if v, err := c.mug.CurrentTemperature(); err == nil {
		fmt.Fprintf(&b, "\nCurrent: %s", c.format(v))
	}
	if v, err := c.mug.TargetTemperature(); err == nil {
		fmt.Fprintf(&b, "\nTarget: %s", c.format(v))
	}
	if bat, err := c.mug.CurrentBattery(); err == nil {
		fmt.Fprintf(&b, "\nBattery: %s", formatBattery(bat))
	}
	return b.String()
}

// parseDegrees converts a degree argument in the session unit to Celsius
// centidegrees.
func (c *Commands) parseDegrees(arg string) (int, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid temperature %q", arg)
	}
	return protocol.Centidegrees(v, c.mug.Unit())
}

func (c *Commands) setTarget(args []string) (string, error) {
	centi, err := c.parseDegrees(args[0])
	if err != nil {
		return "", err
	}
	if err := c.mug.SetTargetTemperature(centi); err != nil {
		return "", err
	}
	return c.temperature(c.mug.TargetTemperature)
}

func (c *Commands) setColor(args []string) (string, error) {
	if len(args) != 4 {
		return "", errors.New("usage: color R G B A")
	}
	var col protocol.Color
	for i, a := range args {
		n, err := strconv.ParseUint(a, 10, 8)
		if err != nil {
			return "", fmt.Errorf("invalid color component %q: must be 0-255", a)
		}
		col[i] = byte(n)
	}
	if err := c.mug.SetLEDColor(col.Bytes()); err != nil {
		return "", err
	}
	return "Changed color to " + col.String(), nil
}

func (c *Commands) listPresets() string {
	p := c.presets()
	return fmt.Sprintf("coffee: %s\ntea: %s",
		c.format(c.presetDisplay(p.Coffee)),
		c.format(c.presetDisplay(p.Tea)))
}

// presetDisplay converts stored centidegrees to the session unit.
func (c *Commands) presetDisplay(centi int) float64 {
	v := float64(centi) / 100
	if c.mug.Unit() == protocol.Fahrenheit {
		v = protocol.CelsiusToFahrenheit(v)
	}
	return v
}

func (c *Commands) setPreset(args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("usage: preset coffee|tea <degrees>")
	}
	name := strings.ToLower(args[0])
	centi, err := c.parseDegrees(args[1])
	if err != nil {
		return "", err
	}
	if err := c.mug.SetPreset(name, centi); err != nil {
		return "", err
	}
	if c.save != nil {
		if err := c.save(name, centi); err != nil {
			return "", fmt.Errorf("saving preset: %w", err)
		}
	}
	return fmt.Sprintf("Set %s preset to %s", name, c.format(c.presetDisplay(centi))), nil
}

func formatBattery(b protocol.Battery) string {
	s := fmt.Sprintf("%.0f%%", b.Percent)
	if b.Charging {
		s += " (charging)"
	}
	return s
}
