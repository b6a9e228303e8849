// Package monitor periodically reads the mug through the session dispatcher
// and fans the readings out to presenters.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chaz8081/embermug/internal/ble"
	"github.com/chaz8081/embermug/internal/ble/protocol"
	"github.com/chaz8081/embermug/internal/session"
)

// DefaultInterval is the refresh period.
const DefaultInterval = 5 * time.Second

// Presenter receives the observable events of the session.
type Presenter interface {
	ConnectionChanged(connected bool)
	TemperatureUpdated(current float64)
	BatteryUpdated(percent float64, charging bool)
	ColorUpdated(c protocol.Color)
}

// Snapshot is one complete reading of the mug.
type Snapshot struct {
	Unit     protocol.Unit
	Current  float64
	Target   float64
	Battery  protocol.Battery
	Color    protocol.Color
	TakenAt  time.Time
	Complete bool // false if any read failed
}

// SnapshotPresenter is implemented by presenters that also want the summary
// of a refresh.
type SnapshotPresenter interface {
	SnapshotUpdated(s Snapshot)
}

// Reader is the part of the dispatcher the refresher needs.
type Reader interface {
	Connected() bool
	Unit() protocol.Unit
	CurrentTemperature() (float64, error)
	TargetTemperature() (float64, error)
	CurrentBattery() (protocol.Battery, error)
	CurrentLEDColor() (protocol.Color, error)
}

var _ Reader = (*session.Dispatcher)(nil)

// Waiter blocks until the first discovery cycle has produced a live link.
type Waiter interface {
	WaitConnected(ctx context.Context) (*ble.Link, error)
}

var _ Waiter = (*session.State)(nil)

// Refresher polls a Reader and notifies presenters.
type Refresher struct {
	reader     Reader
	interval   time.Duration
	presenters []Presenter
	waiter     Waiter
	changed    chan struct{}
	now        func() time.Time
}

// NewRefresher creates a refresher. A non-positive interval uses
// DefaultInterval.
func NewRefresher(reader Reader, interval time.Duration, presenters ...Presenter) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Refresher{
		reader:     reader,
		interval:   interval,
		presenters: presenters,
		changed:    make(chan struct{}, 1),
		now:        time.Now,
	}
}

// WaitFor makes Run hold its first refresh until w reports a connection.
func (r *Refresher) WaitFor(w Waiter) {
	r.waiter = w
}

// PhaseChanged requests an immediate refresh. It never blocks, so it can be
// registered with session.State.OnPhaseChange.
func (r *Refresher) PhaseChanged(session.Phase) {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Run refreshes every interval, and on every phase change, until ctx is
// done. With a Waiter set the first refresh follows the first connection.
func (r *Refresher) Run(ctx context.Context) error {
	if r.waiter != nil {
		slog.Debug("[MONITOR] waiting for the first connection")
		if _, err := r.waiter.WaitConnected(ctx); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.Refresh()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-r.changed:
			ticker.Reset(r.interval)
		}
	}
}

// Refresh performs one refresh cycle. While disconnected only
// ConnectionChanged(false) is emitted.
func (r *Refresher) Refresh() {
	if !r.reader.Connected() {
		for _, p := range r.presenters {
			p.ConnectionChanged(false)
		}
		return
	}
	for _, p := range r.presenters {
		p.ConnectionChanged(true)
	}

	snap := Snapshot{Unit: r.reader.Unit(), TakenAt: r.now(), Complete: true}
	var err error

	if snap.Current, err = r.reader.CurrentTemperature(); r.check("current temperature", err, &snap) {
		for _, p := range r.presenters {
			p.TemperatureUpdated(snap.Current)
		}
	}
	if snap.Battery, err = r.reader.CurrentBattery(); r.check("battery", err, &snap) {
		for _, p := range r.presenters {
			p.BatteryUpdated(snap.Battery.Percent, snap.Battery.Charging)
		}
	}
	if snap.Color, err = r.reader.CurrentLEDColor(); r.check("led color", err, &snap) {
		for _, p := range r.presenters {
			p.ColorUpdated(snap.Color)
		}
	}
	snap.Target, err = r.reader.TargetTemperature()
	r.check("target temperature", err, &snap)

	for _, p := range r.presenters {
		if sp, ok := p.(SnapshotPresenter); ok {
			sp.SnapshotUpdated(snap)
		}
	}
}

// check logs err and reports whether the reading can be emitted.
func (r *Refresher) check(what string, err error, snap *Snapshot) bool {
	if err == nil {
		return true
	}
	snap.Complete = false
	if errors.Is(err, session.ErrNotConnected) {
		slog.Debug("[MONITOR] read skipped", "value", what, "error", err)
	} else {
		slog.Warn("[MONITOR] read failed", "value", what, "error", err)
	}
	return false
}
