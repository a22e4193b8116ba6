package protocol

// VideoStreamContext is parsed from the ANNOUNCE SDP body and
// describes everything the packetizer and encoder need to know about the
// video stream the client asked for.
type VideoStreamContext struct {
	Width                int
	Height               int
	FPS                  int
	PacketSize           int // client-requested payload ceiling per UDP datagram, bytes
	BitrateBitsPerSecond  int
	MinimumFECPackets   int
	VideoFormat         int // 0=H.264, 1=HEVC, 2=AV1
	ChromaSampling      int
	DynamicRange        bool
	QoS                 bool
}

// AudioStreamContext is parsed from the ANNOUNCE SDP body.
type AudioStreamContext struct {
	PacketDurationMs int
	QoS              bool
}

// SessionKeys are the control-channel AES-128-GCM key material, replaced on
// resume.
type SessionKeys struct {
	RemoteInputKey   [16]byte
	RemoteInputKeyID uint64
}

// Resolution is a width/height pair.
type Resolution struct {
	Width  int
	Height int
}

// SessionContext is immutable after initialization except for Keys.
type SessionContext struct {
	Application   string
	ApplicationID int32
	Resolution    Resolution
	RefreshRate   int
	Keys          SessionKeys
	HostAudio     bool

	Video VideoStreamContext
	Audio AudioStreamContext
}
