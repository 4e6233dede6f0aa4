//go:build !linux

package rt

import "errors"

var errUnsupported = errors.New("rt: real-time scheduling is only supported on linux")

func setRealtime(priority int) error {
	return errUnsupported
}

// LockMemory is not supported on this platform.
func LockMemory() error {
	return errUnsupported
}

// UnlockMemory is not supported on this platform.
func UnlockMemory() error {
	return errUnsupported
}
