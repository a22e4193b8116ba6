package control

import (
	"encoding/binary"

	"github.com/hgaiser/moonshine/internal/protocol"
)

// rumblePayloadLength is padding(4) + id(2) + low(2) + high(2). The wire
// payload carried after the type/length header is 10 bytes, not 16: the
// 16 some documentation attributes to this message counts the full packet
// rounded up to an alignment boundary.
const rumblePayloadLength = 4 + 2 + 2 + 2

// FeedbackCommand is sent from a virtual gamepad's callback, through a
// channel owned by the input dispatcher, to the control stream, which is
// the sole consumer and the only thing allowed to write to the client.
type FeedbackCommand struct {
	Rumble *RumbleCommand
	SetLED *SetLEDCommand
}

// RumbleCommand carries a gamepad rumble motor update.
type RumbleCommand struct {
	GamepadID     uint16
	LowFrequency  uint16
	HighFrequency uint16
}

// packet serializes the RumbleData control message: a 4-byte
// type/length header followed by the 10-byte payload (4 bytes of zeroed
// padding, then id/low/high).
func (r RumbleCommand) packet() []byte {
	buf := make([]byte, 4+rumblePayloadLength)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(protocol.ControlRumbleData))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(rumblePayloadLength))
	// buf[4:8] left zeroed (padding).
	binary.LittleEndian.PutUint16(buf[8:10], r.GamepadID)
	binary.LittleEndian.PutUint16(buf[10:12], r.LowFrequency)
	binary.LittleEndian.PutUint16(buf[12:14], r.HighFrequency)
	return buf
}

// SetLEDCommand carries an RGB LED update for one gamepad. No
// client-visible wire message exists for it yet (DualSense LED state is
// host-local); it keeps the gamepad callback shape symmetric with
// RumbleCommand and gives a future Sunshine-compatible LED message an
// obvious home.
type SetLEDCommand struct {
	GamepadID uint16
	R, G, B   uint8
}
