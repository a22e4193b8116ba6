// Package control implements the encrypted control channel: framed
// messages over a reliable UDP transport, carrying ping keepalives, IDR
// requests, input events and rumble/LED feedback.
package control

import (
	"encoding/binary"
	"fmt"

	"github.com/hgaiser/moonshine/internal/protocol"
)

const encryptionTagLength = 16

// minimumEncryptedLength is sequence number (4) + tag (16) + the smallest
// possible inner message header (4).
const minimumEncryptedLength = 4 + encryptionTagLength + 4

// message is a parsed control-channel message. Only Encrypted and InputData
// carry a payload; every other kind is a bare marker.
type message struct {
	Type    protocol.ControlMessageType
	Payload []byte // Encrypted: ciphertext. InputData: raw input event bytes.

	// Encrypted envelope fields, valid only when Type == ControlEncrypted.
	SequenceNumber uint32
	Tag            [encryptionTagLength]byte
}

// parseMessage parses the `type:u16 LE | length:u16 LE | payload` framing
// shared by every control message, including the nested encrypted envelope
// and the InputData inner length check.
func parseMessage(buf []byte) (*message, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("control: message too short: %d bytes", len(buf))
	}

	msgType := protocol.ControlMessageType(binary.LittleEndian.Uint16(buf[0:2]))
	length := binary.LittleEndian.Uint16(buf[2:4])
	if int(length) != len(buf)-4 {
		return nil, fmt.Errorf("control: length mismatch: header says %d, buffer has %d", length, len(buf)-4)
	}

	switch msgType {
	case protocol.ControlEncrypted:
		if len(buf) < minimumEncryptedLength {
			return nil, fmt.Errorf("control: encrypted message too short: %d bytes", len(buf))
		}
		if int(length) < minimumEncryptedLength {
			return nil, fmt.Errorf("control: encrypted message reports length %d, below minimum", length)
		}

		seq := binary.LittleEndian.Uint32(buf[4:8])
		var tag [encryptionTagLength]byte
		copy(tag[:], buf[8:8+encryptionTagLength])

		return &message{
			Type:           protocol.ControlEncrypted,
			SequenceNumber: seq,
			Tag:            tag,
			Payload:        buf[8+encryptionTagLength:],
		}, nil

	case protocol.ControlInputData:
		if len(buf) < 8 {
			return nil, fmt.Errorf("control: input data message too short: %d bytes", len(buf))
		}
		innerLength := binary.BigEndian.Uint32(buf[4:8])
		if int(innerLength) != len(buf)-8 {
			return nil, fmt.Errorf("control: input data length mismatch: header says %d, buffer has %d", innerLength, len(buf)-8)
		}
		return &message{Type: protocol.ControlInputData, Payload: buf[8:]}, nil

	case protocol.ControlPing,
		protocol.ControlTermination,
		protocol.ControlRumbleData,
		protocol.ControlLossStats,
		protocol.ControlFrameStats,
		protocol.ControlInvalidateReferenceFrames,
		protocol.ControlRequestIDRFrame,
		protocol.ControlStartA,
		protocol.ControlStartB:
		return &message{Type: msgType}, nil

	default:
		return nil, fmt.Errorf("control: unknown message type 0x%04x", uint16(msgType))
	}
}
