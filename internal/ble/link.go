package ble

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/chaz8081/embermug/internal/ble/protocol"
)

// Link is the single physical connection to a mug. It knows nothing about
// discovery or retries; it only converts stack errors into ConnectError and
// LinkError values.
type Link struct {
	conn   Connection
	pairer Pairer

	mu     sync.Mutex
	closed bool
	failed bool
}

// Dial connects to the mug at address and discovers its characteristics.
// Every failure is returned as a *ConnectError.
func Dial(ctx context.Context, adapter Adapter, address string) (*Link, error) {
	conn, err := adapter.Connect(ctx, address, protocol.Characteristics())
	if err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}
	l := &Link{conn: conn}
	if p, ok := adapter.(Pairer); ok {
		l.pairer = p
	}
	return l, nil
}

// Address returns the platform identity of the connected mug.
func (l *Link) Address() string {
	return l.conn.Address()
}

// IsAlive reports whether the connection is up and the link has neither
// been closed nor failed.
func (l *Link) IsAlive() bool {
	l.mu.Lock()
	dead := l.closed || l.failed
	l.mu.Unlock()
	return !dead && l.conn.Connected()
}

// fail marks the link dead after a transport error. The stack may still
// report the connection as up.
func (l *Link) fail(op, uuid string, err error) *LinkError {
	l.mu.Lock()
	first := !l.failed
	l.failed = true
	l.mu.Unlock()
	if first {
		slog.Warn("[BLE] link failed", "address", l.Address(), "op", op, "uuid", uuid, "error", err)
	}
	return &LinkError{Op: op, UUID: uuid, Err: err}
}

// Read reads the raw value of the characteristic with the given UUID.
func (l *Link) Read(uuid string) ([]byte, error) {
	if !l.IsAlive() {
		return nil, &LinkError{Op: "read", UUID: uuid, Err: ErrLinkClosed}
	}
	data, err := l.conn.ReadCharacteristic(uuid)
	if err != nil {
		return nil, l.fail("read", uuid, err)
	}
	return data, nil
}

// Write writes data to the characteristic with the given UUID.
func (l *Link) Write(uuid string, data []byte) error {
	if !l.IsAlive() {
		return &LinkError{Op: "write", UUID: uuid, Err: ErrLinkClosed}
	}
	if err := l.conn.WriteCharacteristic(uuid, data); err != nil {
		return l.fail("write", uuid, err)
	}
	return nil
}

// Disconnect closes the link. Only the first call reaches the peer.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.conn.Disconnect()
}

// PairIfSupported attempts to pair once. Platforms without pairing support
// are skipped; a failed attempt is logged and the link stays usable.
func (l *Link) PairIfSupported(ctx context.Context) {
	if l.pairer == nil {
		return
	}
	err := l.pairer.Pair(ctx, l.Address())
	switch {
	case err == nil:
		slog.Debug("[BLE] paired", "address", l.Address())
	case errors.Is(err, ErrPairingUnsupported):
		slog.Debug("[BLE] pairing skipped", "address", l.Address())
	default:
		slog.Warn("[BLE] pairing failed, continuing unpaired", "address", l.Address(), "error", err)
	}
}
