package input

import (
	"encoding/binary"
	"testing"

	"github.com/hgaiser/moonshine/internal/control"
	"github.com/hgaiser/moonshine/internal/protocol"
)

type fakeKeyboard struct {
	codes   []uint16
	pressed []bool
}

func (f *fakeKeyboard) Key(code uint16, pressed bool) error {
	f.codes = append(f.codes, code)
	f.pressed = append(f.pressed, pressed)
	return nil
}
func (f *fakeKeyboard) Close() error { return nil }

type fakeMouse struct {
	absX, absY, absW, absH int16
	relX, relY             int16
	buttons                []MouseButton
	scrolls                []int16
	horizontals            []bool
}

func (f *fakeMouse) MoveRelative(dx, dy int16) error {
	f.relX, f.relY = dx, dy
	return nil
}
func (f *fakeMouse) MoveAbsolute(x, y, width, height int16) error {
	f.absX, f.absY, f.absW, f.absH = x, y, width, height
	return nil
}
func (f *fakeMouse) Button(button MouseButton, pressed bool) error {
	f.buttons = append(f.buttons, button)
	return nil
}
func (f *fakeMouse) Scroll(amount int16, horizontal bool) error {
	f.scrolls = append(f.scrolls, amount)
	f.horizontals = append(f.horizontals, horizontal)
	return nil
}
func (f *fakeMouse) Close() error { return nil }

type fakeGamepad struct {
	states []GamepadState
	rumble RumbleFunc
}

func (f *fakeGamepad) Update(state GamepadState) error {
	f.states = append(f.states, state)
	return nil
}
func (f *fakeGamepad) OnRumble(fn RumbleFunc) { f.rumble = fn }
func (f *fakeGamepad) Close() error           { return nil }

func newTestDispatcher() (*Dispatcher, *fakeKeyboard, *fakeMouse, *fakeGamepad) {
	kb := &fakeKeyboard{}
	mouse := &fakeMouse{}
	pad := &fakeGamepad{}

	d := New()
	d.newKeyboard = func() (VirtualKeyboard, error) { return kb, nil }
	d.newMouse = func() (VirtualMouse, error) { return mouse, nil }
	d.newGamepad = func(kind GamepadKind, caps uint16) (VirtualGamepad, error) { return pad, nil }
	return d, kb, mouse, pad
}

func keyEventPayload(evt uint32, keycode uint16) []byte {
	payload := binary.LittleEndian.AppendUint32(nil, evt)
	payload = append(payload, 0) // flags
	payload = binary.LittleEndian.AppendUint16(payload, keycode)
	payload = append(payload, 0, 0, 0) // modifiers + padding
	return payload
}

func TestKeyEventMapsVirtualKey(t *testing.T) {
	d, kb, _, _ := newTestDispatcher()
	feedback := make(chan control.FeedbackCommand, 1)

	if err := d.HandleRawInput(keyEventPayload(0x03, 0x41), feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}
	if err := d.HandleRawInput(keyEventPayload(0x04, 0x41), feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}

	if len(kb.codes) != 2 {
		t.Fatalf("expected 2 key events, got %d", len(kb.codes))
	}
	if kb.codes[0] != keyA || kb.codes[1] != keyA {
		t.Fatalf("expected VKEY 0x41 to map to KEY_A (%d), got %v", keyA, kb.codes)
	}
	if !kb.pressed[0] || kb.pressed[1] {
		t.Fatalf("expected press then release, got %v", kb.pressed)
	}
}

func TestKeyEventMasksHighByte(t *testing.T) {
	d, kb, _, _ := newTestDispatcher()
	feedback := make(chan control.FeedbackCommand, 1)

	// The keycode's high byte must be ignored before the table lookup.
	if err := d.HandleRawInput(keyEventPayload(0x03, 0x8041), feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}
	if len(kb.codes) != 1 || kb.codes[0] != keyA {
		t.Fatalf("expected masked keycode to map to KEY_A, got %v", kb.codes)
	}
}

func TestMouseMoveAbsoluteParsesBigEndian(t *testing.T) {
	d, _, mouse, _ := newTestDispatcher()
	feedback := make(chan control.FeedbackCommand, 1)

	payload := binary.LittleEndian.AppendUint32(nil, 0x05)
	payload = binary.BigEndian.AppendUint16(payload, 960)  // x
	payload = binary.BigEndian.AppendUint16(payload, 540)  // y
	payload = binary.BigEndian.AppendUint16(payload, 0)    // padding
	payload = binary.BigEndian.AppendUint16(payload, 1920) // width
	payload = binary.BigEndian.AppendUint16(payload, 1080) // height

	if err := d.HandleRawInput(payload, feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}
	if mouse.absX != 960 || mouse.absY != 540 || mouse.absW != 1920 || mouse.absH != 1080 {
		t.Fatalf("unexpected absolute move: x=%d y=%d w=%d h=%d", mouse.absX, mouse.absY, mouse.absW, mouse.absH)
	}
}

func TestScrollIsSignedBigEndian(t *testing.T) {
	d, _, mouse, _ := newTestDispatcher()
	feedback := make(chan control.FeedbackCommand, 1)

	payload := binary.LittleEndian.AppendUint32(nil, 0x0a)
	scrollDelta := int16(-120)
	payload = binary.BigEndian.AppendUint16(payload, uint16(scrollDelta))

	if err := d.HandleRawInput(payload, feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}
	if len(mouse.scrolls) != 1 || mouse.scrolls[0] != -120 || mouse.horizontals[0] {
		t.Fatalf("unexpected scroll: %v horizontal=%v", mouse.scrolls, mouse.horizontals)
	}
}

func gamepadInfoPayload(index uint8, kind GamepadKind, caps uint16) []byte {
	payload := binary.LittleEndian.AppendUint32(nil, 0x13)
	payload = append(payload, index, byte(kind))
	payload = binary.LittleEndian.AppendUint16(payload, caps)
	payload = binary.LittleEndian.AppendUint32(payload, 0x0000f3ff)
	return payload
}

func TestGamepadInfoWiresRumbleFeedback(t *testing.T) {
	d, _, _, pad := newTestDispatcher()
	feedback := make(chan control.FeedbackCommand, 1)

	if err := d.HandleRawInput(gamepadInfoPayload(0, protocol.GamepadXbox, capRumble), feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}
	if pad.rumble == nil {
		t.Fatal("expected rumble callback to be installed")
	}

	pad.rumble(0x1234, 0x5678)

	select {
	case cmd := <-feedback:
		if cmd.Rumble == nil {
			t.Fatal("expected rumble command")
		}
		if cmd.Rumble.GamepadID != 0 || cmd.Rumble.LowFrequency != 0x1234 || cmd.Rumble.HighFrequency != 0x5678 {
			t.Fatalf("unexpected rumble command: %+v", cmd.Rumble)
		}
	default:
		t.Fatal("no feedback command was sent")
	}
}

func TestGamepadUpdateSplitsButtonBitfield(t *testing.T) {
	d, _, _, pad := newTestDispatcher()
	feedback := make(chan control.FeedbackCommand, 1)

	if err := d.HandleRawInput(gamepadInfoPayload(3, protocol.GamepadPlayStation, capRumble|capTouchpad), feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}

	payload := binary.LittleEndian.AppendUint32(nil, 0x0c)
	payload = binary.LittleEndian.AppendUint16(payload, 0)          // header
	payload = binary.LittleEndian.AppendUint16(payload, 3)          // index
	payload = binary.LittleEndian.AppendUint16(payload, 1)          // active mask
	payload = binary.LittleEndian.AppendUint16(payload, 0)          // mid
	payload = binary.LittleEndian.AppendUint16(payload, 0x1010)     // buttons low: A + Start
	payload = append(payload, 0x40, 0x80)                           // triggers
	lsX := int16(-1000)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(lsX)) // ls x
	payload = binary.LittleEndian.AppendUint16(payload, uint16(int16(2000)))  // ls y
	payload = binary.LittleEndian.AppendUint16(payload, 0)          // rs x
	payload = binary.LittleEndian.AppendUint16(payload, 0)          // rs y
	payload = binary.LittleEndian.AppendUint16(payload, 0)          // tail a
	payload = binary.LittleEndian.AppendUint16(payload, 0x0010)     // buttons high: touchpad
	payload = binary.LittleEndian.AppendUint16(payload, 0)          // tail b

	if err := d.HandleRawInput(payload, feedback); err != nil {
		t.Fatalf("HandleRawInput: %v", err)
	}

	if len(pad.states) != 1 {
		t.Fatalf("expected 1 state update, got %d", len(pad.states))
	}
	state := pad.states[0]

	want := buttonA | buttonStart | buttonTouchpad
	if state.Buttons != want {
		t.Fatalf("buttons = %#x, want %#x", state.Buttons, want)
	}
	if state.LeftTrigger != 0x40 || state.RightTrigger != 0x80 {
		t.Fatalf("triggers = %d/%d", state.LeftTrigger, state.RightTrigger)
	}
	if state.LeftStickX != -1000 || state.LeftStickY != 2000 {
		t.Fatalf("left stick = %d/%d", state.LeftStickX, state.LeftStickY)
	}
}

func TestUpdateForUndeclaredGamepadFails(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	feedback := make(chan control.FeedbackCommand, 1)

	payload := binary.LittleEndian.AppendUint32(nil, 0x0c)
	payload = append(payload, make([]byte, gamepadUpdateSize)...)

	if err := d.HandleRawInput(payload, feedback); err == nil {
		t.Fatal("expected error for update targeting an undeclared gamepad")
	}
}
