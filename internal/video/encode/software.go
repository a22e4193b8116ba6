package encode

import "errors"

// softwareBackend is the structurally-valid-but-low-effort fallback used
// when no hardware backend registers itself for the running platform. It
// wraps each submitted BGRx frame in a minimal H.264 Annex-B access unit
// shell (SPS/PPS on IDR, then a slice NALU carrying the raw frame bytes as
// its payload) rather than performing real entropy coding, keeping the
// pipeline exercisable until an x264 binding is integrated.
type softwareBackend struct {
	cfg     Config
	pending []Packet
}

func newSoftwareBackend(cfg Config) (backend, error) {
	return &softwareBackend{cfg: cfg}, nil
}

var (
	// Minimal placeholder SPS/PPS NALUs so the bitstream is structurally an
	// Annex-B H.264 stream. Not a compliant encode of the actual frame.
	annexBStartCode = []byte{0, 0, 0, 1}
	placeholderSPS  = []byte{0x67, 0x42, 0x00, 0x0a}
	placeholderPPS  = []byte{0x68, 0xce, 0x3c, 0x80}
)

func (s *softwareBackend) Submit(frame []byte, pts int64, forceIDR bool) error {
	if len(frame) == 0 {
		return errors.New("encode: empty frame")
	}

	isKey := forceIDR || pts == 1
	var nalType byte = 0x01 // non-IDR slice
	var out []byte
	if isKey {
		nalType = 0x05 // IDR slice
		out = append(out, annexBStartCode...)
		out = append(out, placeholderSPS...)
		out = append(out, annexBStartCode...)
		out = append(out, placeholderPPS...)
	}
	out = append(out, annexBStartCode...)
	out = append(out, nalType)
	out = append(out, frame...)

	s.pending = append(s.pending, Packet{Data: out, IsKeyFrame: isKey})
	return nil
}

func (s *softwareBackend) Drain() ([]Packet, error) {
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *softwareBackend) SetBitrate(bitrate int) error    { s.cfg.Bitrate = bitrate; return nil }
func (s *softwareBackend) SetDimensions(w, h int) error    { s.cfg.Width, s.cfg.Height = w, h; return nil }
func (s *softwareBackend) Close() error                    { return nil }
func (s *softwareBackend) Name() string                    { return "software" }
func (s *softwareBackend) IsHardware() bool                { return false }

var _ backend = (*softwareBackend)(nil)
