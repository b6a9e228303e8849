// Command mug-scan is a manual test for Bluetooth discovery.
// It scans for a few seconds and lists every named peripheral, marking the
// ones advertising as an Ember mug.
//
// Usage:
//
//	go run ./cmd/mug-scan [--backend tinygo|hci] [--timeout 5s]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/chaz8081/embermug/internal/ble"
)

func main() {
	backend := flag.String("backend", ble.BackendTinyGo, "BLE backend: tinygo or hci")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to scan")
	name := flag.String("name", ble.DefaultDeviceName, "advertised mug name")
	flag.Parse()

	adapter, err := ble.NewAdapter(*backend)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scanning for %s...\n", *timeout)
	devices, err := ble.ScanForDevices(context.Background(), adapter, *timeout)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })
	for _, d := range devices {
		line := fmt.Sprintf("  %-20s %4d dBm  %s", d.Address, d.RSSI, d.Name)
		if d.Name == *name {
			color.Green("%s", line)
			continue
		}
		fmt.Println(line)
	}

	fmt.Printf("\nDone! %d device(s) found.\n", len(devices))
}
