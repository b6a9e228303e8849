//go:build !linux

package ble

import "context"

// CoreBluetooth (and WinRT through tinygo) negotiate bonding themselves and
// expose no explicit pairing call.
func pairDevice(_ context.Context, _ string) error {
	return ErrPairingUnsupported
}
