package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/embermug/internal/ble"
	"github.com/chaz8081/embermug/internal/ble/protocol"
)

const mugAddress = "C9:0B:AD:5E:11:02"

var errRadio = errors.New("radio failure")

// fakeConnection is a mug whose characteristics hold fixed values.
type fakeConnection struct {
	mu           sync.Mutex
	address      string
	values       map[string][]byte
	readErr      error
	writeErr     error
	writes       int
	alive        bool
	disconnected int
}

func newFakeConnection(address string) *fakeConnection {
	return &fakeConnection{
		address: address,
		alive:   true,
		values: map[string][]byte{
			protocol.CurrentTemp.UUID(): {0x7c, 0x15}, // 55.00 °C
			protocol.TargetTemp.UUID():  {0x0c, 0x17}, // 59.00 °C
			protocol.CurrentBat.UUID():  {87, 1},
			protocol.LEDColor.UUID():    {0xff, 0x80, 0x00, 0xff},
		},
	}
}

func (c *fakeConnection) Address() string { return c.address }

func (c *fakeConnection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeConnection) ReadCharacteristic(uuid string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	v, ok := c.values[uuid]
	if !ok {
		return nil, fmt.Errorf("fake: unknown characteristic %s", uuid)
	}
	return v, nil
}

func (c *fakeConnection) WriteCharacteristic(uuid string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes++
	c.values[uuid] = append([]byte(nil), data...)
	return nil
}

func (c *fakeConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
	c.disconnected++
	return nil
}

func (c *fakeConnection) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
}

func (c *fakeConnection) setReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

func (c *fakeConnection) value(uuid string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[uuid]
}

// fakeAdapter advertises ads every interval while scanning.
type fakeAdapter struct {
	ads          []ble.Advertisement
	interval     time.Duration
	connectDelay time.Duration
	failConnects int32 // number of initial connects that fail
	scanErr      error // returned once by the first scan

	connects   atomic.Int32
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
	scans      atomic.Int32
	scanErrOut atomic.Bool

	mu    sync.Mutex
	conns []*fakeConnection
}

func newFakeAdapter(ads ...ble.Advertisement) *fakeAdapter {
	return &fakeAdapter{ads: ads, interval: time.Millisecond}
}

func mugAd() ble.Advertisement {
	return ble.Advertisement{Name: ble.DefaultDeviceName, Address: mugAddress, RSSI: -50}
}

func (a *fakeAdapter) Enable() error { return nil }

func (a *fakeAdapter) Scan(ctx context.Context, found chan<- ble.Advertisement) error {
	a.scans.Add(1)
	if a.scanErr != nil && a.scanErrOut.CompareAndSwap(false, true) {
		return a.scanErr
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, adv := range a.ads {
				select {
				case found <- adv:
				default:
				}
			}
		}
	}
}

func (a *fakeAdapter) Connect(ctx context.Context, address string, _ []string) (ble.Connection, error) {
	n := a.connects.Add(1)
	cur := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		peak := a.maxFlight.Load()
		if cur <= peak || a.maxFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.connectDelay):
	}
	if n <= a.failConnects {
		return nil, errRadio
	}

	conn := newFakeConnection(address)
	a.mu.Lock()
	a.conns = append(a.conns, conn)
	a.mu.Unlock()
	return conn, nil
}

func (a *fakeAdapter) latest() *fakeConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.conns) == 0 {
		return nil
	}
	return a.conns[len(a.conns)-1]
}

// statusRecorder collects StatusFunc messages.
type statusRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *statusRecorder) record(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *statusRecorder) contains(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m == msg {
			return true
		}
	}
	return false
}
