package ble

import "fmt"

// Backend names accepted by NewAdapter.
const (
	BackendTinyGo = "tinygo"
	BackendHCI    = "hci"
)

// NewAdapter returns the adapter implementation for backend.
func NewAdapter(backend string) (Adapter, error) {
	switch backend {
	case BackendTinyGo, "":
		return NewTinyGoAdapter(), nil
	case BackendHCI:
		return newHCIAdapter()
	default:
		return nil, fmt.Errorf("ble: unknown backend %q", backend)
	}
}
