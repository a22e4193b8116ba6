// Package packetize turns an encoded video frame into the sequence of
// NVSTREAM RTP shards a client expects on the video channel, including
// Reed-Solomon FEC parity shards.
package packetize

import (
	"encoding/binary"
	"fmt"

	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

// maxShards is the hard ceiling on data+parity shards per FEC block, imposed
// by the wire format's 8-bit shard-count fields.
const maxShards = protocol.MaxShardsPerFEC

const videoFrameHeaderSize = 8 // header_type(1) + padding1(2) + frame_type(1) + padding2(4)

// videoFrameHeader is prefixed to the first shard's payload of every frame.
// Its exact meaning beyond frame_type is undocumented upstream; it is
// reproduced bit-for-bit for client compatibility.
type videoFrameHeader struct {
	headerType byte
	padding1   uint16
	frameType  byte
	padding2   uint32
}

func (h videoFrameHeader) appendTo(buf []byte) []byte {
	buf = append(buf, h.headerType)
	buf = binary.LittleEndian.AppendUint16(buf, h.padding1)
	buf = append(buf, h.frameType)
	buf = binary.LittleEndian.AppendUint32(buf, h.padding2)
	return buf
}

// nvVideoPacket is the per-shard header, prefixed after the 16-byte RTP+pad
// prelude and before the shard payload.
type nvVideoPacket struct {
	streamPacketIndex uint32
	frameIndex        uint32
	flags             byte
	reserved          byte
	multiFECFlags     byte
	multiFECBlocks    byte
	fecInfo           uint32
}

func (p nvVideoPacket) appendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, p.streamPacketIndex)
	buf = binary.LittleEndian.AppendUint32(buf, p.frameIndex)
	buf = append(buf, p.flags, p.reserved, p.multiFECFlags, p.multiFECBlocks)
	buf = binary.LittleEndian.AppendUint32(buf, p.fecInfo)
	return buf
}

// rtpHeader is the 12-byte, big-endian RTP prelude shared with the audio
// packetizer.
type rtpHeader struct {
	header         byte
	packetType     byte
	sequenceNumber uint16
	timestamp      uint32
	ssrc           uint32
}

func (h rtpHeader) appendTo(buf []byte) []byte {
	buf = append(buf, h.header, h.packetType)
	buf = binary.BigEndian.AppendUint16(buf, h.sequenceNumber)
	buf = binary.BigEndian.AppendUint32(buf, h.timestamp)
	buf = binary.BigEndian.AppendUint32(buf, h.ssrc)
	return buf
}

const rtpHeaderSize = protocol.RTPHeaderSize // 12
const rtpPaddingSize = protocol.RTPPaddingSize

// Packetizer converts encoded frames into FEC-protected RTP shards. A single
// Packetizer is owned by one video stream for its lifetime; its sequence
// counter must only ever increase.
type Packetizer struct {
	fec *fec.Cache
}

// New constructs a Packetizer backed by the given FEC codec cache.
func New(codecs *fec.Cache) *Packetizer {
	return &Packetizer{fec: codecs}
}

// Packetize splits encodedData (one complete encoded frame) into shards
// sized to fit requestedPacketSize-byte UDP payloads, interleaving Reed-
// Solomon parity shards per block according to fecPercentage and
// minimumFECPackets. sequenceNumber is advanced by the number of shards
// produced; a single goroutine owns the counter for the stream's lifetime.
func (p *Packetizer) Packetize(
	encodedData []byte,
	isKeyFrame bool,
	requestedPacketSize int,
	minimumFECPackets uint32,
	fecPercentage uint8,
	frameNumber uint32,
	sequenceNumber *uint32,
	rtpTimestamp uint32,
) ([][]byte, error) {
	frameType := byte(protocol.FrameTypeRegular)
	if isKeyFrame {
		frameType = protocol.FrameTypeIDR
	}

	header := videoFrameHeader{headerType: 0x01, frameType: frameType}
	packetData := header.appendTo(make([]byte, 0, videoFrameHeaderSize+len(encodedData)))
	packetData = append(packetData, encodedData...)

	requestedShardPayloadSize := requestedPacketSize - protocol.NvVideoPacketLen
	if requestedShardPayloadSize <= 0 {
		return nil, fmt.Errorf("packetize: requested packet size %d too small for header", requestedPacketSize)
	}
	requestedShardSize := rtpHeaderSize + rtpPaddingSize + protocol.NvVideoPacketLen + requestedShardPayloadSize

	nrDataShards := ceilDiv(len(packetData), requestedShardPayloadSize)
	if nrDataShards == 0 {
		return nil, fmt.Errorf("packetize: empty frame")
	}

	nrParityShardsPerBlock := maxShards * int(fecPercentage) / (100 + int(fecPercentage))
	nrDataShardsPerBlock := maxShards - nrParityShardsPerBlock

	nrBlocks := (nrDataShards-1)/nrDataShardsPerBlock + 1
	lastBlockIndex := byte(min(nrBlocks, 4)-1) << 6

	var out [][]byte

	for blockIndex := 0; blockIndex < nrBlocks; blockIndex++ {
		start := blockIndex * nrDataShardsPerBlock
		end := min((blockIndex+1)*nrDataShardsPerBlock, nrDataShards)

		if blockIndex == 3 {
			end = nrDataShards
		}

		blockDataShards := end - start
		if blockDataShards == 0 {
			return nil, fmt.Errorf("packetize: empty block %d", blockIndex)
		}

		nrParityShards := max(blockDataShards*int(fecPercentage)/100, int(minimumFECPackets))
		if upperBound := maxShards - blockDataShards; nrParityShards > upperBound {
			nrParityShards = upperBound
		}
		if nrParityShards < 0 {
			nrParityShards = 0
		}

		blockFECPercentage := uint32(0)
		if blockDataShards > 0 {
			blockFECPercentage = uint32(nrParityShards * 100 / blockDataShards)
		}

		shards := make([][]byte, 0, blockDataShards+nrParityShards)
		for blockShardIndex, dataShardIndex := 0, start; dataShardIndex < end; blockShardIndex, dataShardIndex = blockShardIndex+1, dataShardIndex+1 {
			payloadStart := dataShardIndex * requestedShardPayloadSize
			payloadEnd := min((dataShardIndex+1)*requestedShardPayloadSize, len(packetData))

			shard := make([]byte, 0, requestedShardSize)

			rh := rtpHeader{
				header:         protocol.RTPHeaderMagic,
				packetType:     0,
				sequenceNumber: uint16(*sequenceNumber),
				timestamp:      rtpTimestamp,
				ssrc:           0,
			}
			shard = rh.appendTo(shard)
			shard = binary.LittleEndian.AppendUint32(shard, 0) // padding

			flags := byte(protocol.FlagContainsPicData)
			if blockShardIndex == 0 {
				flags |= protocol.FlagStartOfFrame
			}
			if blockShardIndex == blockDataShards-1 {
				flags |= protocol.FlagEndOfFrame
			}

			vp := nvVideoPacket{
				streamPacketIndex: *sequenceNumber << 8,
				frameIndex:        frameNumber,
				flags:             flags,
				reserved:          0,
				multiFECFlags:     protocol.MultiFECFlags10,
				multiFECBlocks:    (byte(blockIndex) << 4) | lastBlockIndex,
				fecInfo:           uint32(blockShardIndex<<12) | uint32(blockDataShards<<22) | (blockFECPercentage << 4),
			}
			shard = vp.appendTo(shard)

			shard = append(shard, packetData[payloadStart:payloadEnd]...)
			if pad := requestedShardPayloadSize - (payloadEnd - payloadStart); pad > 0 {
				shard = append(shard, make([]byte, pad)...)
			}

			shards = append(shards, shard)
			*sequenceNumber++
		}

		if nrParityShards > 0 {
			for i := 0; i < nrParityShards; i++ {
				shards = append(shards, make([]byte, requestedShardSize))
			}

			if err := p.fec.Encode(shards, blockDataShards, nrParityShards); err != nil {
				return nil, fmt.Errorf("packetize: encode FEC shards: %w", err)
			}

			for i, shard := range shards[blockDataShards:] {
				shard[0] = protocol.RTPHeaderMagic
				binary.BigEndian.PutUint16(shard[2:4], uint16(*sequenceNumber))

				nvOff := rtpHeaderSize + rtpPaddingSize
				shard[nvOff+11] = (byte(blockIndex) << 4) | lastBlockIndex
				binary.LittleEndian.PutUint32(shard[nvOff+12:nvOff+16], uint32((blockDataShards+i)<<12)|uint32(blockDataShards<<22)|(blockFECPercentage<<4))
				binary.LittleEndian.PutUint32(shard[nvOff+4:nvOff+8], frameNumber)

				*sequenceNumber++
			}
		}

		out = append(out, shards...)

		if blockIndex == 3 {
			break
		}
	}

	return out, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
