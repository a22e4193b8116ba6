package control

import (
	"encoding/binary"
	"testing"

	moonshinecrypto "github.com/hgaiser/moonshine/internal/crypto"
	"github.com/hgaiser/moonshine/internal/protocol"
)

func frameMessage(msgType protocol.ControlMessageType, payload []byte) []byte {
	buf := binary.LittleEndian.AppendUint16(nil, uint16(msgType))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	return append(buf, payload...)
}

func TestParseMessageRejectsLengthMismatch(t *testing.T) {
	buf := binary.LittleEndian.AppendUint16(nil, uint16(protocol.ControlPing))
	buf = binary.LittleEndian.AppendUint16(buf, 4) // claims 4 payload bytes
	buf = append(buf, 0x00)                        // delivers 1

	if _, err := parseMessage(buf); err == nil {
		t.Fatal("expected length mismatch to be rejected")
	}
}

func TestParseMessageBareMarkers(t *testing.T) {
	for _, msgType := range []protocol.ControlMessageType{
		protocol.ControlPing,
		protocol.ControlTermination,
		protocol.ControlStartA,
		protocol.ControlStartB,
		protocol.ControlRequestIDRFrame,
		protocol.ControlInvalidateReferenceFrames,
	} {
		msg, err := parseMessage(frameMessage(msgType, nil))
		if err != nil {
			t.Fatalf("parseMessage(%#04x): %v", uint16(msgType), err)
		}
		if msg.Type != msgType {
			t.Fatalf("parsed type %#04x, want %#04x", uint16(msg.Type), uint16(msgType))
		}
	}
}

func TestParseMessageRejectsUnknownType(t *testing.T) {
	if _, err := parseMessage(frameMessage(protocol.ControlMessageType(0x7777), nil)); err == nil {
		t.Fatal("expected unknown type to be rejected")
	}
}

func TestParseInputDataValidatesInnerLength(t *testing.T) {
	inner := []byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x41, 0x00, 0x00, 0x00, 0x00}

	payload := binary.BigEndian.AppendUint32(nil, uint32(len(inner)))
	payload = append(payload, inner...)

	msg, err := parseMessage(frameMessage(protocol.ControlInputData, payload))
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if len(msg.Payload) != len(inner) {
		t.Fatalf("payload length %d, want %d", len(msg.Payload), len(inner))
	}

	// The redundant inner length must still be validated.
	bad := binary.BigEndian.AppendUint32(nil, uint32(len(inner)+1))
	bad = append(bad, inner...)
	if _, err := parseMessage(frameMessage(protocol.ControlInputData, bad)); err == nil {
		t.Fatal("expected inner length mismatch to be rejected")
	}
}

func TestEncryptedEnvelopeRoundTrip(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i)
	}

	// Inner message: a Ping.
	inner := frameMessage(protocol.ControlPing, nil)

	for _, seq := range []uint32{0, 1, 0xffffffff} {
		var iv [16]byte
		iv[0] = byte(seq)

		ciphertext, tag, err := moonshinecrypto.GCMSeal(key[:], iv[:], inner)
		if err != nil {
			t.Fatalf("GCMSeal: %v", err)
		}

		payload := binary.LittleEndian.AppendUint32(nil, seq)
		payload = append(payload, tag...)
		payload = append(payload, ciphertext...)

		msg, err := parseMessage(frameMessage(protocol.ControlEncrypted, payload))
		if err != nil {
			t.Fatalf("parseMessage(seq=%d): %v", seq, err)
		}
		if msg.SequenceNumber != seq {
			t.Fatalf("sequence number %d, want %d", msg.SequenceNumber, seq)
		}

		s := &Stream{context: &protocol.SessionContext{Keys: protocol.SessionKeys{RemoteInputKey: key}}}
		plaintext, err := s.decrypt(msg)
		if err != nil {
			t.Fatalf("decrypt(seq=%d): %v", seq, err)
		}

		decoded, err := parseMessage(plaintext)
		if err != nil {
			t.Fatalf("parse decrypted: %v", err)
		}
		if decoded.Type != protocol.ControlPing {
			t.Fatalf("decrypted type %#04x, want Ping", uint16(decoded.Type))
		}
	}
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	var key [16]byte
	inner := frameMessage(protocol.ControlPing, nil)

	var iv [16]byte
	ciphertext, tag, err := moonshinecrypto.GCMSeal(key[:], iv[:], inner)
	if err != nil {
		t.Fatalf("GCMSeal: %v", err)
	}
	tag[0] ^= 0x01

	payload := binary.LittleEndian.AppendUint32(nil, 0)
	payload = append(payload, tag...)
	payload = append(payload, ciphertext...)

	msg, err := parseMessage(frameMessage(protocol.ControlEncrypted, payload))
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}

	s := &Stream{context: &protocol.SessionContext{Keys: protocol.SessionKeys{RemoteInputKey: key}}}
	if _, err := s.decrypt(msg); err == nil {
		t.Fatal("expected tampered tag to fail authentication")
	}
}

func TestRumblePacketLayout(t *testing.T) {
	packet := RumbleCommand{GamepadID: 2, LowFrequency: 0x1122, HighFrequency: 0x3344}.packet()

	if len(packet) != 4+rumblePayloadLength {
		t.Fatalf("packet length %d, want %d", len(packet), 4+rumblePayloadLength)
	}
	if got := protocol.ControlMessageType(binary.LittleEndian.Uint16(packet[0:2])); got != protocol.ControlRumbleData {
		t.Fatalf("type %#04x, want RumbleData", uint16(got))
	}
	if got := binary.LittleEndian.Uint16(packet[2:4]); got != rumblePayloadLength {
		t.Fatalf("length field %d, want %d", got, rumblePayloadLength)
	}
	if got := binary.LittleEndian.Uint16(packet[8:10]); got != 2 {
		t.Fatalf("gamepad id %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint16(packet[10:12]); got != 0x1122 {
		t.Fatalf("low frequency %#04x", got)
	}
	if got := binary.LittleEndian.Uint16(packet[12:14]); got != 0x3344 {
		t.Fatalf("high frequency %#04x", got)
	}
}
