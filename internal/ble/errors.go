package ble

import "fmt"

// ConnectError reports a failed connection or characteristic discovery.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ble: connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// LinkError reports a read or write failure on an ostensibly live link.
type LinkError struct {
	Op   string // "read" or "write"
	UUID string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("ble: %s %s: %v", e.Op, e.UUID, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }
