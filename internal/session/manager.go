package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/embermug/internal/ble"
)

// advertisementBuffer bounds the channel between the scan and the manager
// loop. Reports beyond it are dropped by the adapter.
const advertisementBuffer = 32

// Status strings passed to StatusFunc.
const (
	StatusSearching     = "Searching..."
	StatusConnectingTo  = "Connecting to "
	StatusConnectedTo   = "Connected to "
	StatusConnectFailed = "Failed to connect"
)

var (
	scanFrames = []string{"|", "/", "-", "\\"}
	busyFrames = []string{"◐", "◓", "◑", "◒"}
)

// StatusFunc receives a human-readable message at every manager transition.
type StatusFunc func(msg string)

// Options configures a Manager.
type Options struct {
	DeviceName     string
	ScanTick       time.Duration
	ScanRestart    time.Duration
	ConnectTimeout time.Duration
	Pair           bool
	Status         StatusFunc
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DeviceName:     ble.DefaultDeviceName,
		ScanTick:       500 * time.Millisecond,
		ScanRestart:    time.Second,
		ConnectTimeout: 10 * time.Second,
		Pair:           true,
	}
}

// Manager discovers the mug, connects to it exactly once per cycle and hands
// the link to the keeper. A single loop owns every transition.
type Manager struct {
	adapter ble.Adapter
	state   *State
	keeper  *Keeper
	opts    Options

	frame      atomic.Uint64
	connecting atomic.Bool
}

// NewManager creates a manager. Zero option fields take their defaults.
func NewManager(adapter ble.Adapter, state *State, keeper *Keeper, opts Options) *Manager {
	def := DefaultOptions()
	if opts.DeviceName == "" {
		opts.DeviceName = def.DeviceName
	}
	if opts.ScanTick <= 0 {
		opts.ScanTick = def.ScanTick
	}
	if opts.ScanRestart <= 0 {
		opts.ScanRestart = def.ScanRestart
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.Status == nil {
		opts.Status = func(string) {}
	}
	return &Manager{
		adapter: adapter,
		state:   state,
		keeper:  keeper,
		opts:    opts,
	}
}

// Progress returns the current spinner frame. It advances every scan tick
// and switches to a distinct frame set while a connection is in flight.
func (m *Manager) Progress() string {
	frames := scanFrames
	if m.connecting.Load() {
		frames = busyFrames
	}
	return frames[m.frame.Load()%uint64(len(frames))]
}

// Run drives the session until ctx is cancelled. It returns nil on
// cancellation and an error only if the adapter cannot be enabled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("session: enable adapter: %w", err)
	}
	defer m.state.setPhase(Idle)

	idle := time.NewTicker(m.opts.ScanTick)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !m.state.KeepScanning() || !m.state.KeepConnectionAlive() {
			m.state.setPhase(Idle)
			select {
			case <-ctx.Done():
				return nil
			case <-idle.C:
			}
			continue
		}

		link := m.discover(ctx)
		if link == nil {
			continue
		}

		m.state.setConnected(link)
		m.opts.Status(StatusConnectedTo + link.Address())
		slog.Info("[SESSION] connected", "address", link.Address())

		reason := m.keeper.Watch(ctx, link)
		slog.Info("[SESSION] link closed", "address", link.Address(), "reason", reason)
		m.state.resetScanCycle()
	}
}

type connectResult struct {
	link *ble.Link
	err  error
}

// discover scans until a link is established, discovery is switched off or
// ctx is done. It returns nil in the latter two cases.
func (m *Manager) discover(ctx context.Context) (link *ble.Link) {
	m.state.resetScanCycle()
	m.state.setPhase(Scanning)
	m.opts.Status(StatusSearching)
	slog.Debug("[SESSION] scanning", "device", m.opts.DeviceName)

	var wg sync.WaitGroup
	results := make(chan connectResult, 1)
	defer func() {
		// An attempt that finished after the loop gave up must not leak.
		wg.Wait()
		select {
		case res := <-results:
			if res.link != nil && res.link != link {
				_ = res.link.Disconnect()
			}
		default:
		}
	}()

	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()

	found := make(chan ble.Advertisement, advertisementBuffer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.scan(scanCtx, found)
	}()

	ticker := time.NewTicker(m.opts.ScanTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.frame.Add(1)
			if !m.state.KeepScanning() {
				slog.Debug("[SESSION] discovery switched off")
				return nil
			}
		case adv := <-found:
			m.consider(scanCtx, stopScan, adv, results, &wg)
		case res := <-results:
			if res.err != nil {
				slog.Warn("[SESSION] connect failed", "error", res.err)
				m.opts.Status(StatusConnectFailed)
				m.state.setPhase(Scanning)
				continue
			}
			return res.link
		}
	}
}

// consider starts a connection attempt for a matching advertisement unless
// one is already in flight or this cycle already has a link.
func (m *Manager) consider(ctx context.Context, stopScan context.CancelFunc, adv ble.Advertisement, results chan<- connectResult, wg *sync.WaitGroup) {
	if adv.Name == "" || adv.Name != m.opts.DeviceName {
		return
	}
	if m.state.ScanCompleted() {
		slog.Debug("[SESSION] link exists, dropping candidate", "address", adv.Address)
		return
	}
	if !m.state.connectGuard.TryLock() {
		slog.Debug("[SESSION] connect in flight, dropping candidate", "address", adv.Address)
		return
	}

	m.connecting.Store(true)
	m.state.setPhase(Connecting)
	m.opts.Status(StatusConnectingTo + adv.Address)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer m.state.connectGuard.Unlock()
		defer m.connecting.Store(false)

		link, err := m.connect(ctx, stopScan, adv.Address)
		results <- connectResult{link: link, err: err}
	}()
}

// connect dials the mug. On success the scan is stopped and the cycle marked
// complete before the guard is released.
func (m *Manager) connect(ctx context.Context, stopScan context.CancelFunc, address string) (*ble.Link, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	link, err := ble.Dial(dialCtx, m.adapter, address)
	if err != nil {
		return nil, err
	}
	if m.opts.Pair {
		link.PairIfSupported(dialCtx)
	}
	stopScan()
	m.state.markScanComplete()
	return link, nil
}

// scan runs the adapter scan until ctx is done, restarting it after an error.
func (m *Manager) scan(ctx context.Context, found chan<- ble.Advertisement) {
	for {
		err := m.adapter.Scan(ctx, found)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("[SESSION] scan failed, restarting", "error", err, "after", m.opts.ScanRestart)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.ScanRestart):
		}
	}
}
