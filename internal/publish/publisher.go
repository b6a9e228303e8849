package publish

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/chaz8081/embermug/internal/ble/protocol"
	"github.com/chaz8081/embermug/internal/monitor"
)

// writeTimeout bounds each Redis round trip made from a presenter callback.
const writeTimeout = 2 * time.Second

// Hash fields written by the publisher.
const (
	FieldConnected   = "connected"
	FieldTemperature = "temperature"
	FieldTarget      = "target"
	FieldBattery     = "battery"
	FieldCharging    = "charging"
	FieldColor       = "color"
	FieldUnit        = "unit"
)

// Handler executes one command line and returns its reply.
type Handler func(ctx context.Context, line string) (string, error)

// Publisher is a monitor.Presenter that mirrors readings into the hash at
// key. Commands arrive on key+":command" and replies go to key+":reply".
type Publisher struct {
	store Store
	key   string
}

// NewPublisher creates a publisher writing to the hash at key.
func NewPublisher(store Store, key string) *Publisher {
	return &Publisher{store: store, key: key}
}

func (p *Publisher) write(field, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.store.WriteAndPublish(ctx, p.key, field, value); err != nil {
		slog.Warn("[REDIS] write failed", "key", p.key, "field", field, "error", err)
	}
}

func (p *Publisher) ConnectionChanged(connected bool) {
	p.write(FieldConnected, strconv.FormatBool(connected))
}

func (p *Publisher) TemperatureUpdated(current float64) {
	p.write(FieldTemperature, formatTenth(current))
}

func (p *Publisher) BatteryUpdated(percent float64, charging bool) {
	p.write(FieldBattery, strconv.FormatFloat(percent, 'f', 0, 64))
	p.write(FieldCharging, strconv.FormatBool(charging))
}

func (p *Publisher) ColorUpdated(c protocol.Color) {
	p.write(FieldColor, c.String())
}

// SnapshotUpdated writes the fields that have no event of their own.
func (p *Publisher) SnapshotUpdated(s monitor.Snapshot) {
	if s.Complete {
		p.write(FieldTarget, formatTenth(s.Target))
	}
	p.write(FieldUnit, s.Unit.String())
}

// CommandChannel is the channel commands are read from.
func (p *Publisher) CommandChannel() string { return p.key + ":command" }

// ReplyChannel is the channel command replies are published on.
func (p *Publisher) ReplyChannel() string { return p.key + ":reply" }

// ServeCommands runs handler for every message on the command channel until
// ctx is done.
func (p *Publisher) ServeCommands(ctx context.Context, handler Handler) error {
	msgs, closeSub := p.store.Subscribe(ctx, p.CommandChannel())
	defer closeSub()
	slog.Info("[REDIS] listening for commands", "channel", p.CommandChannel())

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-msgs:
			if !ok {
				return nil
			}
			reply, err := handler(ctx, line)
			if err != nil {
				reply = "error: " + err.Error()
			}
			if err := p.store.Publish(ctx, p.ReplyChannel(), reply); err != nil {
				slog.Warn("[REDIS] reply failed", "command", line, "error", err)
			}
		}
	}
}

func formatTenth(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

var (
	_ monitor.Presenter         = (*Publisher)(nil)
	_ monitor.SnapshotPresenter = (*Publisher)(nil)
)
