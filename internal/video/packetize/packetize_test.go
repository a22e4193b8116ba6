package packetize

import (
	"bytes"
	"testing"

	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

func TestPacketizeSingleShardNoFEC(t *testing.T) {
	p := New(fec.NewCache())

	frame := bytes.Repeat([]byte{0xAB}, 100)
	seq := uint32(0)

	shards, err := p.Packetize(frame, true, 1024, 0, 0, 1, &seq, 90000)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}
	if len(shards) != 1 {
		t.Fatalf("expected 1 shard, got %d", len(shards))
	}
	if seq != 1 {
		t.Fatalf("expected sequence number to advance by 1, got %d", seq)
	}

	shard := shards[0]
	if shard[0] != protocol.RTPHeaderMagic {
		t.Fatalf("expected RTP header magic 0x%x, got 0x%x", protocol.RTPHeaderMagic, shard[0])
	}

	nvOff := rtpHeaderSize + rtpPaddingSize
	flags := shard[nvOff+8]
	if flags&protocol.FlagStartOfFrame == 0 || flags&protocol.FlagEndOfFrame == 0 {
		t.Fatalf("expected single shard to carry both start and end of frame flags, got 0x%x", flags)
	}
	if flags&protocol.FlagContainsPicData == 0 {
		t.Fatalf("expected ContainsPicData flag set")
	}
}

func TestPacketizeSplitsAcrossShards(t *testing.T) {
	p := New(fec.NewCache())

	// requestedPacketSize leaves a payload of 10 bytes per shard; a 25 byte
	// frame (after the 8 byte frame header) must split into multiple shards.
	frame := bytes.Repeat([]byte{0x01}, 25)
	seq := uint32(0)

	requestedPacketSize := protocol.NvVideoPacketLen + 10
	shards, err := p.Packetize(frame, false, requestedPacketSize, 0, 0, 7, &seq, 1000)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}
	if len(shards) < 2 {
		t.Fatalf("expected multiple shards, got %d", len(shards))
	}
	if int(seq) != len(shards) {
		t.Fatalf("expected sequence number to advance by shard count, got seq=%d shards=%d", seq, len(shards))
	}

	nvOff := rtpHeaderSize + rtpPaddingSize
	first := shards[0][nvOff+8]
	if first&protocol.FlagStartOfFrame == 0 {
		t.Fatalf("expected first shard to carry start of frame flag")
	}
	if first&protocol.FlagEndOfFrame != 0 {
		t.Fatalf("expected first shard to not carry end of frame flag")
	}
	last := shards[len(shards)-1][nvOff+8]
	if last&protocol.FlagEndOfFrame == 0 {
		t.Fatalf("expected last shard to carry end of frame flag")
	}
}

func TestPacketizeEmitsParityShards(t *testing.T) {
	p := New(fec.NewCache())

	frame := bytes.Repeat([]byte{0x02}, 100)
	seq := uint32(0)

	requestedPacketSize := protocol.NvVideoPacketLen + 10
	shards, err := p.Packetize(frame, true, requestedPacketSize, 2, 50, 1, &seq, 0)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}

	// 108 bytes of packetData over 10 byte payloads -> 11 data shards, each
	// block requests floor(11*50/100)=5 parity shards, bounded below by the
	// minimum of 2 -> parity shards are present.
	if len(shards) <= 11 {
		t.Fatalf("expected parity shards appended after the data shards, got %d total shards", len(shards))
	}
}

func TestPacketizeFrameTypeByte(t *testing.T) {
	p := New(fec.NewCache())

	seq := uint32(0)
	shards, err := p.Packetize([]byte{0xFF}, true, 1024, 0, 0, 1, &seq, 0)
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}

	nvOff := rtpHeaderSize + rtpPaddingSize
	payload := shards[0][nvOff+protocol.NvVideoPacketLen:]
	if payload[3] != protocol.FrameTypeIDR {
		t.Fatalf("expected frame_type byte to be FrameTypeIDR, got %d", payload[3])
	}
}
