// Package ble provides the Bluetooth Low Energy link to an Ember mug. It
// abstracts the platform BLE stack behind Adapter and Connection so the
// session layer can be tested without hardware, and converts every stack
// error into a ConnectError or LinkError.
package ble

import (
	"context"
	"errors"
)

// DefaultDeviceName is the advertised name of the Ember Ceramic Mug.
const DefaultDeviceName = "Ember Ceramic Mug"

var (
	// ErrPairingUnsupported is returned by Pairer implementations on
	// platforms whose BLE stack does not allow explicit pairing.
	ErrPairingUnsupported = errors.New("ble: pairing not supported on this platform")

	// ErrUnsupportedDevice means the peripheral does not expose the mug
	// characteristics.
	ErrUnsupportedDevice = errors.New("ble: device not supported")

	// ErrLinkClosed is returned by operations on a disconnected link.
	ErrLinkClosed = errors.New("ble: link closed")
)

// Advertisement is a single advertising report seen during a scan.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral whose
// characteristics have been discovered.
type Connection interface {
	// Address returns the platform identity of the peer.
	Address() string
	// Connected reports whether the connection is still up.
	Connected() bool
	// ReadCharacteristic reads the value of the characteristic with the given UUID.
	ReadCharacteristic(uuid string) ([]byte, error)
	// WriteCharacteristic writes data to the characteristic with the given UUID.
	WriteCharacteristic(uuid string, data []byte) error
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports advertisements on found until ctx is cancelled. Sends
	// never block: reports are dropped when found is full.
	Scan(ctx context.Context, found chan<- Advertisement) error
	// Connect establishes a connection to address and discovers the given
	// characteristics. A missing characteristic yields ErrUnsupportedDevice.
	Connect(ctx context.Context, address string, characteristics []string) (Connection, error)
}

// Pairer is implemented by adapters that can pair with a connected peer.
type Pairer interface {
	// Pair bonds with the device at address. Returns ErrPairingUnsupported
	// when the platform forbids it.
	Pair(ctx context.Context, address string) error
}

// report delivers adv on found without blocking.
func report(found chan<- Advertisement, adv Advertisement) bool {
	select {
	case found <- adv:
		return true
	default:
		return false
	}
}
