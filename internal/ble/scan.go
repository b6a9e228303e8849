package ble

import (
	"context"
	"fmt"
	"time"
)

// ScanForDevices enables the adapter, scans for timeout and returns every
// named peripheral seen, one entry per address.
func ScanForDevices(ctx context.Context, adapter Adapter, timeout time.Duration) ([]Advertisement, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan Advertisement, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- adapter.Scan(ctx, found)
	}()

	var devices []Advertisement
	seen := make(map[string]int)
	add := func(adv Advertisement) {
		if adv.Name == "" {
			return
		}
		if i, ok := seen[adv.Address]; ok {
			devices[i] = adv
			return
		}
		seen[adv.Address] = len(devices)
		devices = append(devices, adv)
	}

	for {
		select {
		case adv := <-found:
			add(adv)
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("ble: scan: %w", err)
			}
			for {
				select {
				case adv := <-found:
					add(adv)
				default:
					return devices, nil
				}
			}
		}
	}
}
