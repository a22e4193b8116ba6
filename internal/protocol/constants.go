// Package protocol holds the NVSTREAM wire constants shared across the
// video, audio and control packages: RTP framing sizes, control message
// types, gamepad/feature capability bitmasks.
package protocol

// RTP header and FEC domain sizes.
const (
	RTPHeaderSize    = 12
	RTPPaddingSize   = 4
	NvVideoPacketLen = 16
	MaxShardsPerFEC  = 255
	MaxFECBlocks     = 4
)

// RTP/NvVideoPacket magic bytes. Their exact meaning is undocumented
// upstream; they must be replicated bit-for-bit for Moonlight
// compatibility.
const (
	RTPHeaderMagic  = 0x90
	MultiFECFlags10 = 0x10
)

// NvVideoPacket.flags bits.
const (
	FlagContainsPicData = 0x1
	FlagEndOfFrame      = 0x2
	FlagStartOfFrame    = 0x4
)

// VideoFrameHeader.frame_type values.
const (
	FrameTypeRegular = 1
	FrameTypeIDR     = 2
)

// VideoStreamContext.video_format values.
const (
	VideoFormatH264 = 0
	VideoFormatHEVC = 1
	VideoFormatAV1  = 2
)

// Default network ports.
const (
	PortHTTP    = 47989
	PortHTTPS   = 47984
	PortRTSP    = 48010
	PortControl = 47999
	PortVideo   = 47998
	PortAudio   = 48000
)

// QoS DSCP/TOS values clients expect on the media sockets.
const (
	QoSTOSVideo = 160
	QoSTOSAudio = 224
)

// ControlMessageType identifies the framed control-channel message kinds.
type ControlMessageType uint16

const (
	ControlEncrypted                 ControlMessageType = 0x0001
	ControlTermination                ControlMessageType = 0x0100
	ControlPing                       ControlMessageType = 0x0200
	ControlLossStats                  ControlMessageType = 0x0201
	ControlFrameStats                 ControlMessageType = 0x0204
	ControlInputData                  ControlMessageType = 0x0206
	ControlRumbleData                 ControlMessageType = 0x010b
	ControlInvalidateReferenceFrames  ControlMessageType = 0x0301
	ControlRequestIDRFrame            ControlMessageType = 0x0302
	ControlStartA                     ControlMessageType = 0x0305
	ControlStartB                     ControlMessageType = 0x0307
)

// Audio wire constants.
const (
	AudioPayloadType       = 97
	AudioFECPayloadType    = 127
	AudioRTPHeaderMagic    = 0x80
	AudioFECDataShards     = 4
	AudioFECParityShards   = 2
	AudioFECBlockSizeAlign = 16
)

// GamepadKind identifies the reported controller style.
type GamepadKind uint8

const (
	GamepadUnknown    GamepadKind = 0
	GamepadXbox       GamepadKind = 1
	GamepadPlayStation GamepadKind = 2
	GamepadSwitch     GamepadKind = 3
)
