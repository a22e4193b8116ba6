package input

import (
	"encoding/binary"
	"fmt"

	"github.com/hgaiser/moonshine/internal/control"
)

// Event payload sizes, excluding the 4-byte event type prefix. Clients send
// exactly these; anything shorter is dropped.
const (
	keyEventSize           = 6  // flags(1) + keycode(2) + modifiers(1) + padding(2)
	mouseMoveAbsoluteSize  = 10 // x(2) + y(2) + padding(2) + width(2) + height(2)
	mouseMoveRelativeSize  = 4  // x(2) + y(2)
	mouseButtonSize        = 1  // button(1)
	mouseScrollSize        = 2  // amount(2)
	gamepadInfoSize        = 8  // index(1) + kind(1) + capabilities(2) + supported_buttons(4)
	gamepadUpdateSize      = 26 // header(2) + index(2) + active mask(2) + mid(2) + buttons(2) + triggers(2) + sticks(8) + tail(2) + buttons hi(2) + tail(2)
)

func (d *Dispatcher) handleKeyEvent(pressed bool, body []byte) error {
	if len(body) < keyEventSize {
		return fmt.Errorf("input: key event too short: %d bytes", len(body))
	}

	// The 16-bit keycode's high byte carries flags Moonlight never sets for
	// standard keys; only the low byte indexes the virtual-key table.
	keycode := byte(binary.LittleEndian.Uint16(body[1:3]) & 0x00ff)

	code, ok := keymap[keycode]
	if !ok {
		log.Debug("ignoring unmapped virtual key", "keycode", keycode)
		return nil
	}

	kb, err := d.ensureKeyboard()
	if err != nil {
		return err
	}
	return kb.Key(code, pressed)
}

func (d *Dispatcher) handleMouseMoveAbsolute(body []byte) error {
	if len(body) < mouseMoveAbsoluteSize {
		return fmt.Errorf("input: absolute mouse move too short: %d bytes", len(body))
	}

	x := int16(binary.BigEndian.Uint16(body[0:2]))
	y := int16(binary.BigEndian.Uint16(body[2:4]))
	width := int16(binary.BigEndian.Uint16(body[6:8]))
	height := int16(binary.BigEndian.Uint16(body[8:10]))

	m, err := d.ensureMouse()
	if err != nil {
		return err
	}
	return m.MoveAbsolute(x, y, width, height)
}

func (d *Dispatcher) handleMouseMoveRelative(body []byte) error {
	if len(body) < mouseMoveRelativeSize {
		return fmt.Errorf("input: relative mouse move too short: %d bytes", len(body))
	}

	dx := int16(binary.BigEndian.Uint16(body[0:2]))
	dy := int16(binary.BigEndian.Uint16(body[2:4]))

	m, err := d.ensureMouse()
	if err != nil {
		return err
	}
	return m.MoveRelative(dx, dy)
}

func (d *Dispatcher) handleMouseButton(pressed bool, body []byte) error {
	if len(body) < mouseButtonSize {
		return fmt.Errorf("input: mouse button event too short: %d bytes", len(body))
	}

	button := MouseButton(body[0])
	switch button {
	case MouseButtonLeft, MouseButtonMiddle, MouseButtonRight, MouseButtonSide, MouseButtonExtra:
	default:
		return fmt.Errorf("input: unknown mouse button %d", body[0])
	}

	m, err := d.ensureMouse()
	if err != nil {
		return err
	}
	return m.Button(button, pressed)
}

func (d *Dispatcher) handleMouseScroll(body []byte, horizontal bool) error {
	if len(body) < mouseScrollSize {
		return fmt.Errorf("input: scroll event too short: %d bytes", len(body))
	}

	amount := int16(binary.BigEndian.Uint16(body[0:2]))

	m, err := d.ensureMouse()
	if err != nil {
		return err
	}
	return m.Scroll(amount, horizontal)
}

func (d *Dispatcher) handleGamepadInfo(body []byte, feedbackTx chan<- control.FeedbackCommand) error {
	if len(body) < gamepadInfoSize {
		return fmt.Errorf("input: gamepad info too short: %d bytes", len(body))
	}

	index := body[0]
	kind := GamepadKind(body[1])
	capabilities := binary.LittleEndian.Uint16(body[2:4])
	supported := binary.LittleEndian.Uint32(body[4:8])

	if slot, exists := d.gamepads[index]; exists {
		// Re-declaring an index replaces the device; Moonlight does this
		// when a controller reconnects with different capabilities.
		_ = slot.device.Close()
		delete(d.gamepads, index)
	}

	device, err := d.newGamepad(kind, capabilities)
	if err != nil {
		return fmt.Errorf("input: create virtual gamepad %d: %w", index, err)
	}

	gamepadID := uint16(index)
	device.OnRumble(func(low, high uint16) {
		cmd := control.FeedbackCommand{Rumble: &control.RumbleCommand{
			GamepadID:     gamepadID,
			LowFrequency:  low,
			HighFrequency: high,
		}}
		select {
		case feedbackTx <- cmd:
		default:
			log.Debug("feedback channel full, dropping rumble update", "gamepad", gamepadID)
		}
	})

	d.gamepads[index] = &gamepadSlot{device: device, kind: kind}
	log.Info("virtual gamepad created", "index", index, "kind", kind, "capabilities", capabilities, "buttons", supported)
	return nil
}

func (d *Dispatcher) handleGamepadUpdate(body []byte) error {
	if len(body) < gamepadUpdateSize {
		return fmt.Errorf("input: gamepad update too short: %d bytes", len(body))
	}

	// Moonlight's multi-controller event: the button bitfield is split, low
	// half early in the packet and high half near the tail.
	index := uint8(binary.LittleEndian.Uint16(body[2:4]))
	buttonsLow := uint32(binary.LittleEndian.Uint16(body[8:10]))
	buttonsHigh := uint32(binary.LittleEndian.Uint16(body[22:24]))

	state := GamepadState{
		Buttons:      buttonsLow | buttonsHigh<<16,
		LeftTrigger:  body[10],
		RightTrigger: body[11],
		LeftStickX:   int16(binary.LittleEndian.Uint16(body[12:14])),
		LeftStickY:   int16(binary.LittleEndian.Uint16(body[14:16])),
		RightStickX:  int16(binary.LittleEndian.Uint16(body[16:18])),
		RightStickY:  int16(binary.LittleEndian.Uint16(body[18:20])),
	}

	slot, ok := d.gamepads[index]
	if !ok {
		return fmt.Errorf("input: update for undeclared gamepad %d", index)
	}
	return slot.device.Update(state)
}
