package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/embermug/internal/ble/protocol"
)

// TinyGoAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth on
// macOS, WinRT on Windows). On macOS device addresses are CoreBluetooth UUIDs,
// not MAC addresses; they are treated as opaque strings throughout.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects addresses and connections.
	mu          sync.Mutex
	addresses   map[string]bluetooth.Address // from scan results, keyed by String()
	connections map[string]*tinyGoConnection
}

// NewTinyGoAdapter creates an adapter on the default system BLE adapter.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		addresses:   make(map[string]bluetooth.Address),
		connections: make(map[string]*tinyGoConnection),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// The adapter-level handler fires with connected=false when a
	// peripheral drops; mark the matching connection dead.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		delete(a.connections, id)
		a.mu.Unlock()
		if ok {
			slog.Debug("[BLE] peripheral disconnected", "address", id)
			conn.alive.Store(false)
		}
	})

	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, found chan<- Advertisement) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		// Covers a cancel that raced ahead of the scan starting.
		if ctx.Err() != nil {
			adapter.StopScan()
			return
		}
		addr := result.Address.String()
		a.mu.Lock()
		a.addresses[addr] = result.Address
		a.mu.Unlock()
		report(found, Advertisement{
			Name:    result.LocalName(),
			Address: addr,
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string, characteristics []string) (Connection, error) {
	a.mu.Lock()
	addr, ok := a.addresses[address]
	a.mu.Unlock()
	if !ok {
		addr.Set(address)
	}

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// Wrap it to also respect ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	var device bluetooth.Device
	select {
	case <-ctx.Done():
		// The underlying Connect cannot be cancelled; drop the device if it
		// shows up later.
		go func() {
			if result := <-ch; result.err == nil {
				result.device.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case result := <-ch:
		if result.err != nil {
			return nil, result.err
		}
		device = result.device
	}

	conn := &tinyGoConnection{
		device:  device,
		address: address,
		chars:   make(map[string]bluetooth.DeviceCharacteristic),
	}
	if err := conn.discover(characteristics); err != nil {
		device.Disconnect()
		return nil, err
	}
	conn.alive.Store(true)

	// Track this connection so the adapter-level disconnect handler can
	// find it.
	a.mu.Lock()
	a.connections[address] = conn
	a.mu.Unlock()

	return conn, nil
}

// Pair bonds with the peer through the platform stack, where supported.
func (a *TinyGoAdapter) Pair(ctx context.Context, address string) error {
	return pairDevice(ctx, address)
}

// Compile-time checks.
var (
	_ Adapter = (*TinyGoAdapter)(nil)
	_ Pairer  = (*TinyGoAdapter)(nil)
)

type tinyGoConnection struct {
	device  bluetooth.Device
	address string
	chars   map[string]bluetooth.DeviceCharacteristic // keyed by canonical UUID
	alive   atomic.Bool
}

// discover resolves every wanted characteristic across all services.
func (c *tinyGoConnection) discover(wanted []string) error {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("ble: discover services: %w", err)
	}
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
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

func (c *tinyGoConnection) characteristic(uuid string) (bluetooth.DeviceCharacteristic, error) {
	char, ok := c.chars[protocol.NormalizeUUID(uuid)]
	if !ok {
		return char, fmt.Errorf("%w: characteristic %s not found", ErrUnsupportedDevice, uuid)
	}
	return char, nil
}

func (c *tinyGoConnection) Address() string { return c.address }

func (c *tinyGoConnection) Connected() bool { return c.alive.Load() }

func (c *tinyGoConnection) ReadCharacteristic(uuid string) ([]byte, error) {
	char, err := c.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 64)
	n, err := char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *tinyGoConnection) WriteCharacteristic(uuid string, data []byte) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	_, err = char.WriteWithoutResponse(data)
	return err
}

func (c *tinyGoConnection) Disconnect() error {
	c.alive.Store(false)
	return c.device.Disconnect()
}
