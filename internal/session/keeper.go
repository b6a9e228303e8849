package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/chaz8081/embermug/internal/ble"
)

// DefaultPollInterval is how often the keeper checks the link.
const DefaultPollInterval = 2 * time.Second

// Reason tells the manager why the keeper let go of the link.
type Reason int

const (
	// ReasonLost means the link died.
	ReasonLost Reason = iota
	// ReasonReleased means keepConnectionAlive was cleared.
	ReasonReleased
	// ReasonShutdown means the context was cancelled.
	ReasonShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonLost:
		return "lost"
	case ReasonReleased:
		return "released"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Keeper owns the live link for the duration of the Connected phase and polls
// it for liveness.
type Keeper struct {
	state    *State
	interval time.Duration
	nudge    chan struct{}
}

// NewKeeper creates a keeper polling every interval.
func NewKeeper(state *State, interval time.Duration) *Keeper {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Keeper{
		state:    state,
		interval: interval,
		nudge:    make(chan struct{}, 1),
	}
}

// Nudge requests an immediate liveness check. Never blocks.
func (k *Keeper) Nudge() {
	select {
	case k.nudge <- struct{}{}:
	default:
	}
}

// Watch blocks until the link dies, keepConnectionAlive is cleared or ctx is
// done. The link is torn down before Watch returns.
func (k *Keeper) Watch(ctx context.Context, link *ble.Link) Reason {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.release(link)
			return ReasonShutdown
		case <-ticker.C:
		case <-k.nudge:
		}

		if !k.state.KeepConnectionAlive() {
			slog.Info("[SESSION] releasing link", "address", link.Address())
			k.release(link)
			return ReasonReleased
		}
		if !link.IsAlive() {
			slog.Warn("[SESSION] link lost", "address", link.Address())
			k.release(link)
			return ReasonLost
		}
	}
}

// release hides the link from the dispatcher before disconnecting it.
func (k *Keeper) release(link *ble.Link) {
	k.state.setPhase(Disconnecting)
	k.state.clearLink()
	if err := link.Disconnect(); err != nil {
		slog.Debug("[SESSION] disconnect", "address", link.Address(), "error", err)
	}
}
