package input

import (
	"github.com/hgaiser/moonshine/internal/protocol"
)

// GamepadKind aliases the protocol-level controller style so callers inside
// this package don't have to qualify it on every table entry.
type GamepadKind = protocol.GamepadKind

// Gamepad capability bits reported in GamepadInfo.
const (
	capAnalogTriggers uint16 = 0x01
	capRumble         uint16 = 0x02
	capTriggerRumble  uint16 = 0x04
	capTouchpad       uint16 = 0x08
)

// Gamepad button bits in GamepadUpdate.button_flags and
// GamepadInfo.supported_buttons.
const (
	buttonUp              uint32 = 0x00000001
	buttonDown            uint32 = 0x00000002
	buttonLeft            uint32 = 0x00000004
	buttonRight           uint32 = 0x00000008
	buttonStart           uint32 = 0x00000010
	buttonSelect          uint32 = 0x00000020
	buttonLeftStickClick  uint32 = 0x00000040
	buttonRightStickClick uint32 = 0x00000080
	buttonLB              uint32 = 0x00000100
	buttonRB              uint32 = 0x00000200
	buttonHome            uint32 = 0x00000400
	buttonA               uint32 = 0x00001000
	buttonB               uint32 = 0x00002000
	buttonX               uint32 = 0x00004000
	buttonY               uint32 = 0x00008000
	buttonTouchpad        uint32 = 0x00100000
)

// MouseButton is the wire encoding of a mouse button in
// MouseButtonDown/MouseButtonUp events.
type MouseButton uint8

const (
	MouseButtonLeft   MouseButton = 0x01
	MouseButtonMiddle MouseButton = 0x02
	MouseButtonRight  MouseButton = 0x03
	MouseButtonSide   MouseButton = 0x04
	MouseButtonExtra  MouseButton = 0x05
)

// GamepadState is one decoded GamepadUpdate applied to a virtual pad.
type GamepadState struct {
	Buttons      uint32
	LeftTrigger  uint8
	RightTrigger uint8
	LeftStickX   int16
	LeftStickY   int16
	RightStickX  int16
	RightStickY  int16
}

// RumbleFunc receives low/high frequency motor magnitudes whenever the
// platform reports a force-feedback effect playing on a virtual gamepad.
type RumbleFunc func(lowFrequency, highFrequency uint16)

// VirtualKeyboard injects key press/release events by evdev scancode.
type VirtualKeyboard interface {
	Key(code uint16, pressed bool) error
	Close() error
}

// VirtualMouse injects pointer movement, buttons and scroll.
type VirtualMouse interface {
	MoveRelative(dx, dy int16) error
	// MoveAbsolute positions the pointer in the client's reported
	// width x height coordinate space.
	MoveAbsolute(x, y, width, height int16) error
	Button(button MouseButton, pressed bool) error
	// Scroll emits one scroll event; horizontal selects the axis. amount
	// follows the wire convention: positive is up/right.
	Scroll(amount int16, horizontal bool) error
	Close() error
}

// VirtualGamepad applies decoded controller state and reports rumble back.
type VirtualGamepad interface {
	Update(state GamepadState) error
	// OnRumble installs the feedback callback. The device may invoke it
	// from its own goroutine; implementations must tolerate it being
	// replaced while effects are active.
	OnRumble(fn RumbleFunc)
	Close() error
}
