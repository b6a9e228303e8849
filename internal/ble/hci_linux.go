//go:build linux

package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fako1024/gatt"

	"github.com/chaz8081/embermug/internal/ble/protocol"
)

// poweredOnTimeout bounds how long Enable waits for the HCI device.
const poweredOnTimeout = 5 * time.Second

// HCIAdapter drives the controller directly over an HCI socket using
// fako1024/gatt, bypassing BlueZ. Requires CAP_NET_ADMIN and a controller
// that is not claimed by bluetoothd.
type HCIAdapter struct {
	device  gatt.Device
	powered chan struct{}
	once    sync.Once

	mu          sync.Mutex
	found       chan<- Advertisement
	peripherals map[string]gatt.Peripheral
	pending     map[string]chan error
	connections map[string]*hciConnection
}

// NewHCIAdapter creates an adapter on the first HCI device. The device is
// opened in Enable.
func NewHCIAdapter() *HCIAdapter {
	return &HCIAdapter{
		powered:     make(chan struct{}),
		peripherals: make(map[string]gatt.Peripheral),
		pending:     make(map[string]chan error),
		connections: make(map[string]*hciConnection),
	}
}

func (a *HCIAdapter) Enable() error {
	if a.device != nil {
		return nil
	}
	device, err := gatt.NewDevice()
	if err != nil {
		return fmt.Errorf("ble: open hci device: %w", err)
	}
	device.Handle(
		gatt.AddPeripheralDiscovered(a.onDiscovered),
		gatt.AddPeripheralConnected(a.onConnected),
		gatt.AddPeripheralDisconnected(a.onDisconnected),
	)
	if err := device.Init(a.onStateChanged); err != nil {
		return fmt.Errorf("ble: init hci device: %w", err)
	}
	a.device = device

	select {
	case <-a.powered:
		return nil
	case <-time.After(poweredOnTimeout):
		return errors.New("ble: hci device did not power on")
	}
}

func (a *HCIAdapter) onStateChanged(_ gatt.Device, s gatt.State) {
	slog.Debug("[BLE] hci state changed", "state", s)
	if s == gatt.StatePoweredOn {
		a.once.Do(func() { close(a.powered) })
	}
}

func (a *HCIAdapter) Scan(ctx context.Context, found chan<- Advertisement) error {
	a.mu.Lock()
	a.found = found
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.found = nil
		a.mu.Unlock()
	}()

	// Duplicates are kept so a mug that was seen before a disconnect is
	// reported again.
	if err := a.device.Scan([]gatt.UUID{}, true); err != nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	<-ctx.Done()
	if err := a.device.StopScanning(); err != nil {
		slog.Debug("[BLE] stop scanning", "error", err)
	}
	return nil
}

func (a *HCIAdapter) onDiscovered(p gatt.Peripheral, adv *gatt.Advertisement, rssi int) {
	name := p.Name()
	if name == "" && adv != nil {
		name = adv.LocalName
	}
	a.mu.Lock()
	a.peripherals[p.ID()] = p
	found := a.found
	a.mu.Unlock()
	if found != nil {
		report(found, Advertisement{Name: name, Address: p.ID(), RSSI: rssi})
	}
}

func (a *HCIAdapter) Connect(ctx context.Context, address string, characteristics []string) (Connection, error) {
	a.mu.Lock()
	p, ok := a.peripherals[address]
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("ble: peripheral %s has not been seen", address)
	}
	result := make(chan error, 1)
	a.pending[address] = result
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.pending, address)
		a.mu.Unlock()
	}()

	if err := a.device.Connect(p); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		a.device.CancelConnection(p)
		return nil, ctx.Err()
	case err := <-result:
		if err != nil {
			return nil, err
		}
	}

	conn := &hciConnection{
		adapter:    a,
		peripheral: p,
		chars:      make(map[string]*gatt.Characteristic),
	}
	if err := conn.discover(characteristics); err != nil {
		a.device.CancelConnection(p)
		return nil, err
	}
	conn.alive.Store(true)

	a.mu.Lock()
	a.connections[address] = conn
	a.mu.Unlock()
	return conn, nil
}

func (a *HCIAdapter) onConnected(p gatt.Peripheral, err error) {
	a.mu.Lock()
	result, ok := a.pending[p.ID()]
	a.mu.Unlock()
	if !ok {
		return
	}
	select {
	case result <- err:
	default:
	}
}

func (a *HCIAdapter) onDisconnected(p gatt.Peripheral, err error) {
	a.mu.Lock()
	conn, ok := a.connections[p.ID()]
	delete(a.connections, p.ID())
	a.mu.Unlock()
	if ok {
		slog.Debug("[BLE] peripheral disconnected", "address", p.ID(), "error", err)
		conn.alive.Store(false)
	}
}

// Pair is not available without BlueZ.
func (a *HCIAdapter) Pair(_ context.Context, _ string) error {
	return ErrPairingUnsupported
}

// Compile-time checks.
var (
	_ Adapter = (*HCIAdapter)(nil)
	_ Pairer  = (*HCIAdapter)(nil)
)

type hciConnection struct {
	adapter    *HCIAdapter
	peripheral gatt.Peripheral
	chars      map[string]*gatt.Characteristic // keyed by canonical UUID
	alive      atomic.Bool
}

func (c *hciConnection) discover(wanted []string) error {
	svcs, err := c.peripheral.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("ble: discover services: %w", err)
	}
	for _, svc := range svcs {
		chars, err := c.peripheral.DiscoverCharacteristics(nil, svc)
		if err != nil {
			return fmt.Errorf("ble: discover characteristics: %w", err)
		}
		for _, char := range chars {
			c.chars[protocol.NormalizeUUID(char.UUID().String())] = char
		}
	}
	for _, uuid := range wanted {
		if _, ok := c.chars[protocol.NormalizeUUID(uuid)]; !ok {
			return fmt.Errorf("%w: characteristic %s not found", ErrUnsupportedDevice, uuid)
		}
	}
	return nil
}

func (c *hciConnection) characteristic(uuid string) (*gatt.Characteristic, error) {
	char, ok := c.chars[protocol.NormalizeUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("%w: characteristic %s not found", ErrUnsupportedDevice, uuid)
	}
	return char, nil
}

func (c *hciConnection) Address() string { return c.peripheral.ID() }

func (c *hciConnection) Connected() bool { return c.alive.Load() }

func (c *hciConnection) ReadCharacteristic(uuid string) ([]byte, error) {
	char, err := c.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	return c.peripheral.ReadCharacteristic(char)
}

func (c *hciConnection) WriteCharacteristic(uuid string, data []byte) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	return c.peripheral.WriteCharacteristic(char, data, false)
}

func (c *hciConnection) Disconnect() error {
	c.alive.Store(false)
	c.adapter.device.CancelConnection(c.peripheral)
	return nil
}

func newHCIAdapter() (Adapter, error) {
	return NewHCIAdapter(), nil
}
