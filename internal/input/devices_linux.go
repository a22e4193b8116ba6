//go:build linux

package input

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hgaiser/moonshine/internal/protocol"
)

// evdev event types.
const (
	evSyn    = 0x00
	evKey    = 0x01
	evRel    = 0x02
	evAbs    = 0x03
	evFF     = 0x15
	evUinput = 0x0101
)

// evdev relative axes.
const (
	relX      = 0x00
	relY      = 0x01
	relHWheel = 0x06
	relWheel  = 0x08
)

// evdev absolute axes.
const (
	absX  = 0x00
	absY  = 0x01
	absZ  = 0x02
	absRX = 0x03
	absRY = 0x04
	absRZ = 0x05
)

// evdev button codes.
const (
	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnSide   = 0x113
	btnExtra  = 0x114

	btnSouth  = 0x130
	btnEast   = 0x131
	btnNorth  = 0x133
	btnWest   = 0x134
	btnTL     = 0x136
	btnTR     = 0x137
	btnSelect = 0x13a
	btnStart  = 0x13b
	btnMode   = 0x13c
	btnThumbL = 0x13d
	btnThumbR = 0x13e
	btnTouch  = 0x14a

	btnDpadUp    = 0x220
	btnDpadDown  = 0x221
	btnDpadLeft  = 0x222
	btnDpadRight = 0x223
)

const ffRumble = 0x50

// uinput ioctl requests (uinput.h). Encoded with the generic _IOC macros so
// the literals stay readable.
const uinputIoctlBase = 'U'

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

func io(nr uintptr) uintptr            { return ioc(iocNone, uinputIoctlBase, nr, 0) }
func iow(nr, size uintptr) uintptr     { return ioc(iocWrite, uinputIoctlBase, nr, size) }
func iowr(nr, size uintptr) uintptr    { return ioc(iocWrite|iocRead, uinputIoctlBase, nr, size) }
func iowInt(nr uintptr) uintptr        { return iow(nr, unsafe.Sizeof(int32(0))) }

var (
	uiDevCreate  = io(1)
	uiDevDestroy = io(2)

	uiSetEvBit  = iowInt(100)
	uiSetKeyBit = iowInt(101)
	uiSetRelBit = iowInt(102)
	uiSetAbsBit = iowInt(103)
	uiSetFFBit  = iowInt(107)

	uiBeginFFUpload = iowr(200, unsafe.Sizeof(uinputFFUpload{}))
	uiEndFFUpload   = iow(201, unsafe.Sizeof(uinputFFUpload{}))
	uiBeginFFErase  = iowr(202, unsafe.Sizeof(uinputFFErase{}))
	uiEndFFErase    = iow(203, unsafe.Sizeof(uinputFFErase{}))
)

// uinput_ff_upload / uinput_ff_erase request codes carried in an EV_UINPUT
// event's code field.
const (
	uiFFUpload = 1
	uiFFErase  = 2
)

// inputEvent mirrors struct input_event on 64-bit Linux.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = int(unsafe.Sizeof(inputEvent{}))

// ffEffect mirrors struct ff_effect on 64-bit Linux; the effect-type union
// is kept as raw bytes. For FF_RUMBLE the union starts with
// strong_magnitude and weak_magnitude, both u16.
type ffEffect struct {
	Type            uint16
	ID              int16
	Direction       uint16
	TriggerButton   uint16
	TriggerInterval uint16
	ReplayLength    uint16
	ReplayDelay     uint16
	_               [2]byte
	U               [32]byte
}

type uinputFFUpload struct {
	RequestID uint32
	Retval    int32
	Effect    ffEffect
	Old       ffEffect
}

type uinputFFErase struct {
	RequestID uint32
	Retval    int32
	EffectID  uint32
}

// uinputUserDev mirrors struct uinput_user_dev, the legacy setup record
// written to the fd before UI_DEV_CREATE.
const uinputMaxNameSize = 80
const absCnt = 0x40

type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [uinputMaxNameSize]byte
	ID           inputID
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

const busUSB = 0x03

func devIoctl(fd int, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func devIoctlInt(fd int, req uintptr, value int32) error {
	v := value
	return devIoctl(fd, req, uintptr(unsafe.Pointer(&v)))
}

// uinputDevice is the shared open/setup/write half of every virtual device.
type uinputDevice struct {
	mu sync.Mutex
	f  *os.File
}

type deviceSetup struct {
	name         string
	id           inputID
	ffEffectsMax uint32

	keys    []uint16
	relAxes []uint16
	absAxes []uint16
	absMax  map[uint16]int32
	absMin  map[uint16]int32
	ff      bool
}

func openUinputDevice(setup deviceSetup) (*uinputDevice, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}
	fd := int(f.Fd())

	fail := func(err error) (*uinputDevice, error) {
		f.Close()
		return nil, err
	}

	if len(setup.keys) > 0 {
		if err := devIoctlInt(fd, uiSetEvBit, evKey); err != nil {
			return fail(fmt.Errorf("enable EV_KEY: %w", err))
		}
		for _, code := range setup.keys {
			if err := devIoctlInt(fd, uiSetKeyBit, int32(code)); err != nil {
				return fail(fmt.Errorf("enable key %d: %w", code, err))
			}
		}
	}
	if len(setup.relAxes) > 0 {
		if err := devIoctlInt(fd, uiSetEvBit, evRel); err != nil {
			return fail(fmt.Errorf("enable EV_REL: %w", err))
		}
		for _, axis := range setup.relAxes {
			if err := devIoctlInt(fd, uiSetRelBit, int32(axis)); err != nil {
				return fail(fmt.Errorf("enable rel axis %d: %w", axis, err))
			}
		}
	}
	if len(setup.absAxes) > 0 {
		if err := devIoctlInt(fd, uiSetEvBit, evAbs); err != nil {
			return fail(fmt.Errorf("enable EV_ABS: %w", err))
		}
		for _, axis := range setup.absAxes {
			if err := devIoctlInt(fd, uiSetAbsBit, int32(axis)); err != nil {
				return fail(fmt.Errorf("enable abs axis %d: %w", axis, err))
			}
		}
	}
	if setup.ff {
		if err := devIoctlInt(fd, uiSetEvBit, evFF); err != nil {
			return fail(fmt.Errorf("enable EV_FF: %w", err))
		}
		if err := devIoctlInt(fd, uiSetFFBit, ffRumble); err != nil {
			return fail(fmt.Errorf("enable FF_RUMBLE: %w", err))
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:uinputMaxNameSize-1], setup.name)
	dev.ID = setup.id
	dev.FFEffectsMax = setup.ffEffectsMax
	for axis, v := range setup.absMax {
		dev.AbsMax[axis] = v
	}
	for axis, v := range setup.absMin {
		dev.AbsMin[axis] = v
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(&dev)), unsafe.Sizeof(dev))
	if _, err := f.Write(buf); err != nil {
		return fail(fmt.Errorf("write device setup: %w", err))
	}

	if err := devIoctl(fd, uiDevCreate, 0); err != nil {
		return fail(fmt.Errorf("UI_DEV_CREATE: %w", err))
	}

	return &uinputDevice{f: f}, nil
}

func (d *uinputDevice) emit(events ...inputEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return fmt.Errorf("device closed")
	}

	buf := make([]byte, 0, len(events)*inputEventSize)
	for _, e := range events {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Sec))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Usec))
		buf = binary.LittleEndian.AppendUint16(buf, e.Type)
		buf = binary.LittleEndian.AppendUint16(buf, e.Code)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Value))
	}
	_, err := d.f.Write(buf)
	return err
}

func (d *uinputDevice) emitWithSyn(events ...inputEvent) error {
	return d.emit(append(events, inputEvent{Type: evSyn})...)
}

func (d *uinputDevice) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	_ = devIoctl(int(d.f.Fd()), uiDevDestroy, 0)
	err := d.f.Close()
	d.f = nil
	return err
}

// linuxKeyboard is a uinput keyboard exposing every scancode in keymap.
type linuxKeyboard struct {
	dev *uinputDevice
}

func newVirtualKeyboard() (VirtualKeyboard, error) {
	keys := make([]uint16, 0, len(keymap))
	seen := make(map[uint16]struct{}, len(keymap))
	for _, code := range keymap {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		keys = append(keys, code)
	}

	dev, err := openUinputDevice(deviceSetup{
		name: "Moonshine Keyboard",
		id:   inputID{BusType: busUSB, Vendor: 0x1209, Product: 0x0001, Version: 1},
		keys: keys,
	})
	if err != nil {
		return nil, err
	}
	return &linuxKeyboard{dev: dev}, nil
}

func (k *linuxKeyboard) Key(code uint16, pressed bool) error {
	value := int32(0)
	if pressed {
		value = 1
	}
	return k.dev.emitWithSyn(inputEvent{Type: evKey, Code: code, Value: value})
}

func (k *linuxKeyboard) Close() error { return k.dev.close() }

// absRange is the fixed coordinate space absolute mouse positions are
// scaled into, independent of the client's reported resolution.
const absRange = 65535

type linuxMouse struct {
	dev *uinputDevice
}

func newVirtualMouse() (VirtualMouse, error) {
	dev, err := openUinputDevice(deviceSetup{
		name:    "Moonshine Mouse",
		id:      inputID{BusType: busUSB, Vendor: 0x1209, Product: 0x0002, Version: 1},
		keys:    []uint16{btnLeft, btnRight, btnMiddle, btnSide, btnExtra},
		relAxes: []uint16{relX, relY, relWheel, relHWheel},
		absAxes: []uint16{absX, absY},
		absMax:  map[uint16]int32{absX: absRange, absY: absRange},
	})
	if err != nil {
		return nil, err
	}
	return &linuxMouse{dev: dev}, nil
}

func (m *linuxMouse) MoveRelative(dx, dy int16) error {
	return m.dev.emitWithSyn(
		inputEvent{Type: evRel, Code: relX, Value: int32(dx)},
		inputEvent{Type: evRel, Code: relY, Value: int32(dy)},
	)
}

func (m *linuxMouse) MoveAbsolute(x, y, width, height int16) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("input: absolute move with zero-sized reference %dx%d", width, height)
	}
	return m.dev.emitWithSyn(
		inputEvent{Type: evAbs, Code: absX, Value: int32(x) * absRange / int32(width)},
		inputEvent{Type: evAbs, Code: absY, Value: int32(y) * absRange / int32(height)},
	)
}

func (m *linuxMouse) Button(button MouseButton, pressed bool) error {
	var code uint16
	switch button {
	case MouseButtonLeft:
		code = btnLeft
	case MouseButtonMiddle:
		code = btnMiddle
	case MouseButtonRight:
		code = btnRight
	case MouseButtonSide:
		code = btnSide
	case MouseButtonExtra:
		code = btnExtra
	default:
		return fmt.Errorf("input: unknown mouse button %d", button)
	}
	value := int32(0)
	if pressed {
		value = 1
	}
	return m.dev.emitWithSyn(inputEvent{Type: evKey, Code: code, Value: value})
}

func (m *linuxMouse) Scroll(amount int16, horizontal bool) error {
	axis := uint16(relWheel)
	if horizontal {
		axis = relHWheel
	}
	// Clients send high-resolution deltas in steps of 120 per notch.
	notches := int32(amount) / 120
	if notches == 0 && amount != 0 {
		if amount > 0 {
			notches = 1
		} else {
			notches = -1
		}
	}
	return m.dev.emitWithSyn(inputEvent{Type: evRel, Code: axis, Value: notches})
}

func (m *linuxMouse) Close() error { return m.dev.close() }

// gamepadIdentity returns the USB ids a declared controller style should
// present to applications.
func gamepadIdentity(kind GamepadKind) (inputID, string) {
	switch kind {
	case protocol.GamepadPlayStation:
		return inputID{BusType: busUSB, Vendor: 0x054c, Product: 0x0ce6, Version: 0x8111}, "Moonshine Gamepad (DualSense)"
	case protocol.GamepadSwitch:
		return inputID{BusType: busUSB, Vendor: 0x057e, Product: 0x2009, Version: 0x8111}, "Moonshine Gamepad (Pro Controller)"
	default:
		// Xbox 360 is the identity most games probe for; Unknown pads get
		// it too.
		return inputID{BusType: busUSB, Vendor: 0x045e, Product: 0x028e, Version: 0x0110}, "Moonshine Gamepad (Xbox 360)"
	}
}

var gamepadButtonCodes = []struct {
	bit  uint32
	code uint16
}{
	{buttonUp, btnDpadUp},
	{buttonDown, btnDpadDown},
	{buttonLeft, btnDpadLeft},
	{buttonRight, btnDpadRight},
	{buttonStart, btnStart},
	{buttonSelect, btnSelect},
	{buttonLeftStickClick, btnThumbL},
	{buttonRightStickClick, btnThumbR},
	{buttonLB, btnTL},
	{buttonRB, btnTR},
	{buttonHome, btnMode},
	{buttonA, btnSouth},
	{buttonB, btnEast},
	{buttonX, btnWest},
	{buttonY, btnNorth},
	{buttonTouchpad, btnTouch},
}

type linuxGamepad struct {
	dev      *uinputDevice
	buttons  uint32
	hasFF    bool
	stopFF   chan struct{}
	stopOnce sync.Once

	rumbleMu sync.Mutex
	onRumble RumbleFunc
	effects  map[int16][2]uint16 // effect id -> strong, weak magnitudes
}

func newVirtualGamepad(kind GamepadKind, capabilities uint16) (VirtualGamepad, error) {
	id, name := gamepadIdentity(kind)

	keys := make([]uint16, 0, len(gamepadButtonCodes))
	for _, b := range gamepadButtonCodes {
		keys = append(keys, b.code)
	}

	hasFF := capabilities&capRumble != 0

	setup := deviceSetup{
		name:    name,
		id:      id,
		keys:    keys,
		absAxes: []uint16{absX, absY, absRX, absRY, absZ, absRZ},
		absMax: map[uint16]int32{
			absX: 32767, absY: 32767, absRX: 32767, absRY: 32767,
			absZ: 255, absRZ: 255,
		},
		absMin: map[uint16]int32{
			absX: -32768, absY: -32768, absRX: -32768, absRY: -32768,
		},
		ff: hasFF,
	}
	if hasFF {
		setup.ffEffectsMax = 16
	}

	dev, err := openUinputDevice(setup)
	if err != nil {
		return nil, err
	}

	pad := &linuxGamepad{
		dev:     dev,
		hasFF:   hasFF,
		stopFF:  make(chan struct{}),
		effects: make(map[int16][2]uint16),
	}
	if hasFF {
		go pad.serviceForceFeedback()
	}
	return pad, nil
}

func (g *linuxGamepad) OnRumble(fn RumbleFunc) {
	g.rumbleMu.Lock()
	g.onRumble = fn
	g.rumbleMu.Unlock()
}

func (g *linuxGamepad) Update(state GamepadState) error {
	events := make([]inputEvent, 0, len(gamepadButtonCodes)+6)

	changed := g.buttons ^ state.Buttons
	for _, b := range gamepadButtonCodes {
		if changed&b.bit == 0 {
			continue
		}
		value := int32(0)
		if state.Buttons&b.bit != 0 {
			value = 1
		}
		events = append(events, inputEvent{Type: evKey, Code: b.code, Value: value})
	}
	g.buttons = state.Buttons

	events = append(events,
		inputEvent{Type: evAbs, Code: absX, Value: int32(state.LeftStickX)},
		inputEvent{Type: evAbs, Code: absY, Value: -int32(state.LeftStickY)},
		inputEvent{Type: evAbs, Code: absRX, Value: int32(state.RightStickX)},
		inputEvent{Type: evAbs, Code: absRY, Value: -int32(state.RightStickY)},
		inputEvent{Type: evAbs, Code: absZ, Value: int32(state.LeftTrigger)},
		inputEvent{Type: evAbs, Code: absRZ, Value: int32(state.RightTrigger)},
	)

	return g.dev.emitWithSyn(events...)
}

// serviceForceFeedback polls the device fd for force-feedback requests from
// the kernel: effect uploads and erases arrive as EV_UINPUT events that must
// be answered with the begin/end ioctl pair, and EV_FF events start or stop
// a previously uploaded effect.
func (g *linuxGamepad) serviceForceFeedback() {
	fd := int(g.dev.f.Fd())
	buf := make([]byte, inputEventSize)

	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for {
		select {
		case <-g.stopFF:
			return
		default:
		}

		if _, err := unix.Poll(pollFds, 100); err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if pollFds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(fd, buf)
		if err != nil || n < inputEventSize {
			continue
		}

		evType := binary.LittleEndian.Uint16(buf[16:18])
		evCode := binary.LittleEndian.Uint16(buf[18:20])
		evValue := int32(binary.LittleEndian.Uint32(buf[20:24]))

		switch evType {
		case evUinput:
			switch evCode {
			case uiFFUpload:
				g.handleFFUpload(fd, uint32(evValue))
			case uiFFErase:
				g.handleFFErase(fd, uint32(evValue))
			}
		case evFF:
			g.handleFFPlay(int16(evCode), evValue)
		}
	}
}

func (g *linuxGamepad) handleFFUpload(fd int, requestID uint32) {
	upload := uinputFFUpload{RequestID: requestID}
	if err := devIoctl(fd, uiBeginFFUpload, uintptr(unsafe.Pointer(&upload))); err != nil {
		log.Debug("ff upload begin failed", "error", err)
		return
	}

	if upload.Effect.Type == ffRumble {
		strong := binary.LittleEndian.Uint16(upload.Effect.U[0:2])
		weak := binary.LittleEndian.Uint16(upload.Effect.U[2:4])
		g.rumbleMu.Lock()
		g.effects[upload.Effect.ID] = [2]uint16{strong, weak}
		g.rumbleMu.Unlock()
	}

	upload.Retval = 0
	if err := devIoctl(fd, uiEndFFUpload, uintptr(unsafe.Pointer(&upload))); err != nil {
		log.Debug("ff upload end failed", "error", err)
	}
}

func (g *linuxGamepad) handleFFErase(fd int, requestID uint32) {
	erase := uinputFFErase{RequestID: requestID}
	if err := devIoctl(fd, uiBeginFFErase, uintptr(unsafe.Pointer(&erase))); err != nil {
		log.Debug("ff erase begin failed", "error", err)
		return
	}

	g.rumbleMu.Lock()
	delete(g.effects, int16(erase.EffectID))
	g.rumbleMu.Unlock()

	erase.Retval = 0
	if err := devIoctl(fd, uiEndFFErase, uintptr(unsafe.Pointer(&erase))); err != nil {
		log.Debug("ff erase end failed", "error", err)
	}
}

func (g *linuxGamepad) handleFFPlay(effectID int16, value int32) {
	g.rumbleMu.Lock()
	magnitudes, known := g.effects[effectID]
	fn := g.onRumble
	g.rumbleMu.Unlock()

	if fn == nil || !known {
		return
	}
	if value > 0 {
		fn(magnitudes[0], magnitudes[1])
	} else {
		fn(0, 0)
	}
}

func (g *linuxGamepad) Close() error {
	g.stopOnce.Do(func() { close(g.stopFF) })
	return g.dev.close()
}
