//go:build !linux

package input

import "fmt"

// ErrNotSupported is returned when virtual input devices are not implemented
// for the running platform.
var ErrNotSupported = fmt.Errorf("virtual input devices not supported on this platform")

func newVirtualKeyboard() (VirtualKeyboard, error) {
	return nil, ErrNotSupported
}

func newVirtualMouse() (VirtualMouse, error) {
	return nil, ErrNotSupported
}

func newVirtualGamepad(kind GamepadKind, capabilities uint16) (VirtualGamepad, error) {
	return nil, ErrNotSupported
}
