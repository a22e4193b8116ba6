// Package input dispatches decoded NVSTREAM input events to virtual
// keyboard/mouse/gamepad devices, speaking the raw evdev scancode / uinput
// contract the client's events map onto.
package input

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hgaiser/moonshine/internal/control"
	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("input")

// eventType identifies the kind of InputData payload, read from the
// first 4 little-endian bytes of every InputData message.
type eventType uint32

const (
	eventKeyDown            eventType = 0x00000003
	eventKeyUp              eventType = 0x00000004
	eventMouseMoveRelative  eventType = 0x00000007
	eventMouseMoveAbsolute  eventType = 0x00000005
	eventMouseButtonDown    eventType = 0x00000008
	eventMouseButtonUp      eventType = 0x00000009
	eventMouseScrollVert    eventType = 0x0000000a
	eventMouseScrollHoriz   eventType = 0x0000000b
	eventGamepadInfo        eventType = 0x00000013
	eventGamepadUpdate      eventType = 0x0000000c
)

// Dispatcher implements control.InputHandler: it owns one virtual keyboard,
// one virtual mouse, and a set of virtual gamepads created on demand as
// GamepadInfo events declare them.
type Dispatcher struct {
	mu sync.Mutex

	keyboard VirtualKeyboard
	mouse    VirtualMouse
	gamepads map[uint8]*gamepadSlot

	newKeyboard func() (VirtualKeyboard, error)
	newMouse    func() (VirtualMouse, error)
	newGamepad  func(kind GamepadKind, caps uint16) (VirtualGamepad, error)
}

type gamepadSlot struct {
	device VirtualGamepad
	kind   GamepadKind
}

// New constructs a Dispatcher using the platform's virtual device
// constructors.
func New() *Dispatcher {
	return &Dispatcher{
		gamepads:    make(map[uint8]*gamepadSlot),
		newKeyboard: newVirtualKeyboard,
		newMouse:    newVirtualMouse,
		newGamepad:  newVirtualGamepad,
	}
}

// HandleRawInput decodes one InputData payload and applies it to the
// relevant virtual device, creating keyboard/mouse devices lazily on first
// use and gamepad devices when a GamepadInfo event declares them.
func (d *Dispatcher) HandleRawInput(payload []byte, feedbackTx chan<- control.FeedbackCommand) error {
	if len(payload) < 4 {
		return fmt.Errorf("input: payload too short: %d bytes", len(payload))
	}
	evt := eventType(binary.LittleEndian.Uint32(payload[0:4]))
	body := payload[4:]

	d.mu.Lock()
	defer d.mu.Unlock()

	switch evt {
	case eventKeyDown, eventKeyUp:
		return d.handleKeyEvent(evt == eventKeyDown, body)
	case eventMouseMoveRelative:
		return d.handleMouseMoveRelative(body)
	case eventMouseMoveAbsolute:
		return d.handleMouseMoveAbsolute(body)
	case eventMouseButtonDown, eventMouseButtonUp:
		return d.handleMouseButton(evt == eventMouseButtonDown, body)
	case eventMouseScrollVert:
		return d.handleMouseScroll(body, false)
	case eventMouseScrollHoriz:
		return d.handleMouseScroll(body, true)
	case eventGamepadInfo:
		return d.handleGamepadInfo(body, feedbackTx)
	case eventGamepadUpdate:
		return d.handleGamepadUpdate(body)
	default:
		log.Debug("ignoring unrecognized input event", "type", evt)
		return nil
	}
}

func (d *Dispatcher) ensureKeyboard() (VirtualKeyboard, error) {
	if d.keyboard != nil {
		return d.keyboard, nil
	}
	kb, err := d.newKeyboard()
	if err != nil {
		return nil, fmt.Errorf("input: create virtual keyboard: %w", err)
	}
	d.keyboard = kb
	return kb, nil
}

func (d *Dispatcher) ensureMouse() (VirtualMouse, error) {
	if d.mouse != nil {
		return d.mouse, nil
	}
	m, err := d.newMouse()
	if err != nil {
		return nil, fmt.Errorf("input: create virtual mouse: %w", err)
	}
	d.mouse = m
	return m, nil
}

// Close releases every virtual device the dispatcher created.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if d.keyboard != nil {
		if err := d.keyboard.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.mouse != nil {
		if err := d.mouse.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, g := range d.gamepads {
		if err := g.device.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ control.InputHandler = (*Dispatcher)(nil)
