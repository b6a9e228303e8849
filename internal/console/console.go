// Package console renders session status and mug readings on a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/chaz8081/embermug/internal/ble/protocol"
	"github.com/chaz8081/embermug/internal/monitor"
	"github.com/chaz8081/embermug/internal/session"
)

const clearLine = "\033[2K\r"

var (
	infoColor  = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	faintColor = color.New(color.Faint)
)

// Console is a monitor.Presenter and session.StatusFunc writing to out.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	unit      protocol.Unit
	status    string
	connected *bool
}

// New creates a console writing to out.
func New(out io.Writer, unit protocol.Unit) *Console {
	return &Console{out: out, unit: unit}
}

// Status prints a manager status message on its own line.
func (c *Console) Status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = msg
	fmt.Fprint(c.out, clearLine)
	statusColor(msg).Fprintln(c.out, msg)
}

func statusColor(msg string) *color.Color {
	switch {
	case strings.HasPrefix(msg, session.StatusConnectedTo):
		return okColor
	case msg == session.StatusConnectFailed:
		return errorColor
	case strings.HasPrefix(msg, session.StatusConnectingTo):
		return warnColor
	default:
		return infoColor
	}
}

// ConnectionChanged prints only on transitions.
func (c *Console) ConnectionChanged(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected != nil && *c.connected == connected {
		return
	}
	c.connected = &connected
	if connected {
		okColor.Fprintln(c.out, "mug connected")
	} else {
		warnColor.Fprintln(c.out, "mug not connected")
	}
}

func (c *Console) TemperatureUpdated(float64)   {}
func (c *Console) BatteryUpdated(float64, bool) {}
func (c *Console) ColorUpdated(protocol.Color)  {}

// SnapshotUpdated prints the summary line of a refresh.
func (c *Console) SnapshotUpdated(s monitor.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, clearLine)
	fmt.Fprintln(c.out, Summary(s))
}

// Summary renders a snapshot as a single status line.
func Summary(s monitor.Snapshot) string {
	bat := fmt.Sprintf("%.0f%%", s.Battery.Percent)
	if s.Battery.Charging {
		bat += " (charging)"
	}
	return fmt.Sprintf("Current: %s / Target: %s / Battery: %s",
		protocol.FormatTemperature(s.Current, s.Unit),
		protocol.FormatTemperature(s.Target, s.Unit),
		bat)
}

// Spinner redraws the progress frame next to the last status while the
// session is searching or connecting.
func (c *Console) Spinner(ctx context.Context, interval time.Duration, progress func() string, phase func() session.Phase) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	drawn := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		p := phase()
		c.mu.Lock()
		switch p {
		case session.Scanning, session.Connecting:
			fmt.Fprintf(c.out, "%s%s %s", clearLine, progress(), faintColor.Sprint(c.status))
			drawn = true
		default:
			if drawn {
				fmt.Fprint(c.out, clearLine)
				drawn = false
			}
		}
		c.mu.Unlock()
	}
}

var (
	_ monitor.Presenter         = (*Console)(nil)
	_ monitor.SnapshotPresenter = (*Console)(nil)
)
