//go:build linux

package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBusName     = "org.bluez"
	bluezAdapterPath = "/org/bluez/hci0"
	bluezDevicePair  = "org.bluez.Device1.Pair"
)

// pairDevice asks BlueZ to pair with address. An already paired device is
// not an error.
func pairDevice(ctx context.Context, address string) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("ble: system bus: %w", err)
	}
	// SystemBus returns a shared connection; do not close it.

	obj := conn.Object(bluezBusName, devicePath(bluezAdapterPath, address))
	err = obj.CallWithContext(ctx, bluezDevicePair, 0).Err
	if err == nil {
		return nil
	}

	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == "org.bluez.Error.AlreadyExists" {
		return nil
	}
	return fmt.Errorf("ble: pair %s: %w", address, err)
}

// devicePath converts a MAC to its BlueZ object path
// (AA:BB:CC:DD:EE:FF -> /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF).
func devicePath(adapterPath, address string) dbus.ObjectPath {
	s := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath(adapterPath + "/dev_" + s)
}
