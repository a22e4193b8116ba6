// Package encode implements the Opus CBR LowDelay audio encoder, RTP
// framing, AES-128-CBC payload encryption and per-4-packet FEC grouping,
// reusing the same Reed-Solomon codec cache the video packetizer uses
// (internal/video/fec).
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/hraban/opus"

	"github.com/hgaiser/moonshine/internal/crypto"
	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

var log = logging.L("audio.encode")

const (
	sampleRate = 48000
	channels   = 2

	nrDataShards   = protocol.AudioFECDataShards
	nrParityShards = protocol.AudioFECParityShards
	// blockSize is ((2048+15)/16)*16, the fixed FEC shard size every data
	// and parity buffer is padded/truncated to.
	blockSize = ((2048 + protocol.AudioFECBlockSizeAlign - 1) / protocol.AudioFECBlockSizeAlign) * protocol.AudioFECBlockSizeAlign

	audioFECHeaderSize = 8
)

// Stream is the per-session audio encode pipeline: one Opus encoder, one
// RTP sequence counter, and a 4-packet FEC group buffer.
type Stream struct {
	enc *opus.Encoder
	fec *fec.Cache

	keys protocol.SessionKeys

	sequenceNumber uint16
	timestamp      uint32

	group      [][]byte // raw (unencrypted) RTP packets awaiting FEC
	groupStart int      // sequence number of the group's first packet
	groupBase  uint32   // rtp timestamp of the group's first packet
}

// New constructs a Stream. keys may be replaced later via UpdateKeys (e.g.
// on resume).
func New(codecs *fec.Cache, keys protocol.SessionKeys) (*Stream, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppRestrictedLowdelay)
	if err != nil {
		return nil, fmt.Errorf("audio encode: open opus encoder: %w", err)
	}
	// Clients require CBR.
	if err := enc.SetVbr(false); err != nil {
		return nil, fmt.Errorf("audio encode: disable vbr: %w", err)
	}

	return &Stream{enc: enc, fec: codecs, keys: keys}, nil
}

// UpdateKeys replaces the encryption key material, e.g. on session resume.
func (s *Stream) UpdateKeys(keys protocol.SessionKeys) {
	s.keys = keys
}

// Encode takes one 480-byte (240 int16 values) interleaved S16LE buffer, produces the
// encrypted RTP packet for it, and on every 4th packet appends the two
// parity packets for the just-completed group. The caller is responsible
// for sending every returned packet, in order, to the client.
func (s *Stream) Encode(samples []int16) ([][]byte, error) {
	opusBuf := make([]byte, 1275) // maximum possible Opus packet size
	n, err := s.enc.Encode(samples, opusBuf)
	if err != nil {
		return nil, fmt.Errorf("audio encode: opus encode: %w", err)
	}
	return s.packetize(opusBuf[:n], uint32(len(samples)/channels))
}

// packetize frames one encoded payload as an encrypted RTP packet and
// appends the group's parity packets when it completes the 4-packet FEC
// window.
func (s *Stream) packetize(opusPayload []byte, sampleCount uint32) ([][]byte, error) {
	seq := s.sequenceNumber
	s.sequenceNumber++
	ts := s.timestamp
	s.timestamp += sampleCount

	packet, err := s.buildDataPacket(opusPayload, seq, ts)
	if err != nil {
		return nil, err
	}

	if len(s.group) == 0 {
		s.groupStart = int(seq)
		s.groupBase = ts
	}
	s.group = append(s.group, packet)

	out := [][]byte{packet}

	if len(s.group) == nrDataShards {
		parity, err := s.encodeGroupFEC()
		if err != nil {
			log.Warn("failed to compute audio FEC parity", "error", err)
		} else {
			out = append(out, parity...)
		}
		s.group = s.group[:0]
	}

	return out, nil
}

func (s *Stream) buildDataPacket(opusPayload []byte, seq uint16, ts uint32) ([]byte, error) {
	encrypted, err := s.encrypt(opusPayload, seq)
	if err != nil {
		return nil, err
	}

	packet := make([]byte, 0, 12+len(encrypted))
	packet = append(packet, protocol.AudioRTPHeaderMagic, protocol.AudioPayloadType)
	packet = binary.BigEndian.AppendUint16(packet, seq)
	packet = binary.BigEndian.AppendUint32(packet, ts)
	packet = binary.BigEndian.AppendUint32(packet, 0) // ssrc
	packet = append(packet, encrypted...)
	return packet, nil
}

// encrypt applies AES-128-CBC; the IV is the session's
// remote_input_key_id plus the sequence number, as 4 big-endian bytes
// followed by 12 zero bytes.
func (s *Stream) encrypt(payload []byte, seq uint16) ([]byte, error) {
	var iv [16]byte
	binary.BigEndian.PutUint32(iv[:4], uint32(s.keys.RemoteInputKeyID)+uint32(seq))
	return crypto.CBCEncrypt(s.keys.RemoteInputKey[:], iv[:], payload)
}

// encodeGroupFEC computes the 2 parity shards for a completed 4-packet
// group and frames each as a payload-type-127 RTP packet carrying an
// AudioFecHeader.
func (s *Stream) encodeGroupFEC() ([][]byte, error) {
	shards := make([][]byte, nrDataShards+nrParityShards)
	for i, packet := range s.group {
		shard := make([]byte, blockSize)
		copy(shard, packet)
		shards[i] = shard
	}
	for i := nrDataShards; i < len(shards); i++ {
		shards[i] = make([]byte, blockSize)
	}

	if err := s.fec.Encode(shards, nrDataShards, nrParityShards); err != nil {
		return nil, fmt.Errorf("audio encode: fec encode: %w", err)
	}

	out := make([][]byte, 0, nrParityShards)
	for i := 0; i < nrParityShards; i++ {
		shardIndex := nrDataShards + i

		seq := s.sequenceNumber
		s.sequenceNumber++

		packet := make([]byte, 0, 12+audioFECHeaderSize+blockSize)
		packet = append(packet, protocol.AudioRTPHeaderMagic, protocol.AudioFECPayloadType)
		packet = binary.BigEndian.AppendUint16(packet, seq)
		packet = binary.BigEndian.AppendUint32(packet, s.groupBase)
		packet = binary.BigEndian.AppendUint32(packet, 0) // ssrc

		packet = append(packet, byte(shardIndex), protocol.AudioPayloadType)
		packet = binary.BigEndian.AppendUint16(packet, uint16(s.groupStart))
		packet = binary.BigEndian.AppendUint32(packet, s.groupBase)

		packet = append(packet, shards[shardIndex]...)
		out = append(out, packet)
	}
	return out, nil
}

// Close is a no-op: the Opus encoder holds no resources that need an
// explicit release.
func (s *Stream) Close() error {
	return nil
}
