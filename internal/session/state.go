// Package session owns the lifecycle of the connection to the mug: discovery,
// a single guarded connection attempt, liveness polling and the commands that
// read and write characteristics over the live link.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chaz8081/embermug/internal/ble"
	"github.com/chaz8081/embermug/internal/ble/protocol"
)

// Phase is the connection phase of the session. Exactly one holds at a time.
type Phase int

const (
	Idle Phase = iota
	Scanning
	Connecting
	Connected
	Disconnecting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Preset names.
const (
	PresetCoffee = "coffee"
	PresetTea    = "tea"
)

// ErrUnknownPreset is returned for preset names other than coffee and tea.
var ErrUnknownPreset = errors.New("session: unknown preset")

// Presets holds the stored target temperatures in centidegrees Celsius.
type Presets struct {
	Coffee int
	Tea    int
}

// DefaultPresets are written to a fresh configuration.
var DefaultPresets = Presets{Coffee: 5500, Tea: 5900}

// Get returns the preset called name.
func (p Presets) Get(name string) (int, error) {
	switch name {
	case PresetCoffee:
		return p.Coffee, nil
	case PresetTea:
		return p.Tea, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}

// waitRecheck bounds how long a waiter sleeps on an already closed
// scanComplete channel before looking for the next cycle.
const waitRecheck = 50 * time.Millisecond

// State is the one SessionState of the process. All fields are guarded by mu
// except connectGuard, which is only ever used with TryLock.
type State struct {
	mu sync.RWMutex

	phase               Phase
	unit                protocol.Unit
	presets             Presets
	keepScanning        bool
	keepConnectionAlive bool

	scanComplete chan struct{}
	scanDone     bool
	link         *ble.Link

	onPhase func(Phase)

	connectGuard sync.Mutex
}

// NewState returns an Idle state with both keep flags set.
func NewState(unit protocol.Unit, presets Presets) *State {
	return &State{
		phase:               Idle,
		unit:                unit,
		presets:             presets,
		keepScanning:        true,
		keepConnectionAlive: true,
		scanComplete:        make(chan struct{}),
	}
}

// OnPhaseChange registers fn to be called after every phase transition.
// fn runs on the goroutine making the transition and must not block.
func (s *State) OnPhaseChange(fn func(Phase)) {
	s.mu.Lock()
	s.onPhase = fn
	s.mu.Unlock()
}

func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *State) setPhase(p Phase) {
	s.mu.Lock()
	changed := s.phase != p
	s.phase = p
	fn := s.onPhase
	s.mu.Unlock()
	if changed && fn != nil {
		fn(p)
	}
}

// Unit is fixed for the lifetime of the session.
func (s *State) Unit() protocol.Unit {
	return s.unit
}

func (s *State) Presets() Presets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presets
}

// SetPreset replaces one stored preset.
func (s *State) SetPreset(name string, centidegrees int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case PresetCoffee:
		s.presets.Coffee = centidegrees
	case PresetTea:
		s.presets.Tea = centidegrees
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return nil
}

func (s *State) KeepScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keepScanning
}

// SetKeepScanning enables or disables discovery. When cleared the manager
// goes Idle within one scan tick.
func (s *State) SetKeepScanning(v bool) {
	s.mu.Lock()
	s.keepScanning = v
	s.mu.Unlock()
}

func (s *State) KeepConnectionAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keepConnectionAlive
}

// SetKeepConnectionAlive controls the keeper. When cleared the live link is
// dropped within one poll tick.
func (s *State) SetKeepConnectionAlive(v bool) {
	s.mu.Lock()
	s.keepConnectionAlive = v
	s.mu.Unlock()
}

// Stop clears both keep flags.
func (s *State) Stop() {
	s.mu.Lock()
	s.keepScanning = false
	s.keepConnectionAlive = false
	s.mu.Unlock()
}

// ScanComplete returns the channel of the current discovery cycle. It is
// closed once a link for that cycle exists.
func (s *State) ScanComplete() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanComplete
}

// ScanCompleted reports whether the current cycle already produced a link.
func (s *State) ScanCompleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanDone
}

// markScanComplete closes the current cycle's channel. Later calls in the
// same cycle are no-ops.
func (s *State) markScanComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanDone {
		return
	}
	s.scanDone = true
	close(s.scanComplete)
}

// resetScanCycle starts a new discovery cycle.
func (s *State) resetScanCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scanDone {
		return
	}
	s.scanDone = false
	s.scanComplete = make(chan struct{})
}

// Link returns the live link, or nil unless the phase is Connected.
func (s *State) Link() *ble.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase != Connected {
		return nil
	}
	return s.link
}

func (s *State) setConnected(link *ble.Link) {
	s.mu.Lock()
	s.link = link
	s.mu.Unlock()
	s.setPhase(Connected)
}

func (s *State) clearLink() {
	s.mu.Lock()
	s.link = nil
	s.mu.Unlock()
}

// WaitConnected blocks until a live link exists or ctx is done. The link may
// die between a wakeup and the caller acting, so it is re-checked after every
// wait.
func (s *State) WaitConnected(ctx context.Context) (*ble.Link, error) {
	for {
		if link := s.Link(); link != nil && link.IsAlive() {
			return link, nil
		}
		done := s.ScanComplete()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
		if link := s.Link(); link != nil && link.IsAlive() {
			return link, nil
		}
		// The cycle completed but its link is already gone. Wait for the
		// manager to open the next one.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitRecheck):
		}
	}
}
