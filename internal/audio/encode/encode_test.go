package encode

import (
	"encoding/binary"
	"testing"

	"github.com/hgaiser/moonshine/internal/crypto"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

func testStream() *Stream {
	keys := protocol.SessionKeys{RemoteInputKeyID: 100}
	for i := range keys.RemoteInputKey {
		keys.RemoteInputKey[i] = byte(i)
	}
	return &Stream{fec: fec.NewCache(), keys: keys}
}

func TestFECCadenceEmitsParityAfterFourthPacket(t *testing.T) {
	s := testStream()

	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}

	var emitted [][]byte
	for i := 0; i < 5; i++ {
		packets, err := s.packetize(payload, 240)
		if err != nil {
			t.Fatalf("packetize #%d: %v", i, err)
		}
		emitted = append(emitted, packets...)
	}

	// p1 p2 p3 p4 parity0 parity1 p5.
	if len(emitted) != 7 {
		t.Fatalf("expected 7 packets after 5 inputs, got %d", len(emitted))
	}

	for i, packet := range emitted {
		wantType := byte(protocol.AudioPayloadType)
		if i == 4 || i == 5 {
			wantType = protocol.AudioFECPayloadType
		}
		if packet[1] != wantType {
			t.Fatalf("packet %d has payload type %d, want %d", i, packet[1], wantType)
		}
		if packet[0] != protocol.AudioRTPHeaderMagic {
			t.Fatalf("packet %d header byte %#02x, want %#02x", i, packet[0], protocol.AudioRTPHeaderMagic)
		}
		if got := binary.BigEndian.Uint16(packet[2:4]); got != uint16(i) {
			t.Fatalf("packet %d has sequence number %d", i, got)
		}
	}
}

func TestParityPacketCarriesAudioFECHeader(t *testing.T) {
	s := testStream()
	s.sequenceNumber = 40 // group starts mid-stream

	var parity [][]byte
	for i := 0; i < nrDataShards; i++ {
		packets, err := s.packetize([]byte{1, 2, 3, 4}, 240)
		if err != nil {
			t.Fatalf("packetize: %v", err)
		}
		if len(packets) > 1 {
			parity = packets[1:]
		}
	}

	if len(parity) != nrParityShards {
		t.Fatalf("expected %d parity packets, got %d", nrParityShards, len(parity))
	}

	baseTimestamp := binary.BigEndian.Uint32(parity[0][4:8])
	for i, packet := range parity {
		fecHeader := packet[12 : 12+audioFECHeaderSize]

		if fecHeader[0] != byte(nrDataShards+i) {
			t.Fatalf("parity %d shard index %d, want %d", i, fecHeader[0], nrDataShards+i)
		}
		if fecHeader[1] != protocol.AudioPayloadType {
			t.Fatalf("parity %d fec header payload type %d", i, fecHeader[1])
		}
		if got := binary.BigEndian.Uint16(fecHeader[2:4]); got != 40 {
			t.Fatalf("parity %d base sequence number %d, want 40", i, got)
		}
		if got := binary.BigEndian.Uint32(fecHeader[4:8]); got != baseTimestamp {
			t.Fatalf("parity %d base timestamp %d, want %d", i, got, baseTimestamp)
		}
		if len(packet) != 12+audioFECHeaderSize+blockSize {
			t.Fatalf("parity %d length %d, want %d", i, len(packet), 12+audioFECHeaderSize+blockSize)
		}
	}
}

func TestDataPacketDecrypts(t *testing.T) {
	s := testStream()

	payload := []byte("opus frame bytes")
	packets, err := s.packetize(payload, 240)
	if err != nil {
		t.Fatalf("packetize: %v", err)
	}

	packet := packets[0]
	seq := binary.BigEndian.Uint16(packet[2:4])

	var iv [16]byte
	binary.BigEndian.PutUint32(iv[:4], uint32(s.keys.RemoteInputKeyID)+uint32(seq))

	plaintext, err := crypto.CBCDecrypt(s.keys.RemoteInputKey[:], iv[:], packet[12:])
	if err != nil {
		t.Fatalf("CBCDecrypt: %v", err)
	}
	if string(plaintext) != string(payload) {
		t.Fatalf("decrypted %q, want %q", plaintext, payload)
	}
}

func TestKeyRotationChangesIV(t *testing.T) {
	s := testStream()

	packetsBefore, err := s.packetize([]byte("1234567890123456"), 240)
	if err != nil {
		t.Fatalf("packetize: %v", err)
	}

	rotated := s.keys
	rotated.RemoteInputKeyID += 1000
	s.UpdateKeys(rotated)
	s.sequenceNumber = 0
	s.group = s.group[:0]

	packetsAfter, err := s.packetize([]byte("1234567890123456"), 240)
	if err != nil {
		t.Fatalf("packetize: %v", err)
	}

	if string(packetsBefore[0][12:]) == string(packetsAfter[0][12:]) {
		t.Fatal("expected rotated key id to change the ciphertext")
	}
}
