// Package encode wraps a hardware (or software-fallback) H.264/HEVC/AV1
// encoder behind a single backend interface with the mandatory zero-latency
// configuration streaming needs: no B-frames, unbounded GOP, one reference
// frame, forced IDR on request.
package encode

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("video.encode")

// Codec identifies the output bitstream format. These three are the only
// formats a client can negotiate.
type Codec int

const (
	CodecH264 Codec = iota
	CodecHEVC
	CodecAV1
)

var (
	ErrInvalidCodec   = errors.New("encode: invalid codec")
	ErrInvalidBitrate = errors.New("encode: invalid bitrate")
	ErrInvalidFPS     = errors.New("encode: invalid fps")
)

// Config is the mandatory-at-open-time encoder configuration: no
// B-frames, an unbounded GOP (IDR only on request), a single reference
// frame, zero-latency tuning and forced-IDR support.
type Config struct {
	Codec     Codec
	Width     int
	Height    int
	FPS       int
	Bitrate   int // bits per second
	MaxBFrame int // always 0; kept explicit so a backend can assert it
	Refs      int // always 1

	PreferHardware bool
}

func (c Codec) valid() bool {
	switch c {
	case CodecH264, CodecHEVC, CodecAV1:
		return true
	default:
		return false
	}
}

func validate(cfg Config) error {
	if !cfg.Codec.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidCodec, cfg.Codec)
	}
	if cfg.Bitrate <= 0 {
		return ErrInvalidBitrate
	}
	if cfg.FPS <= 0 {
		return ErrInvalidFPS
	}
	return nil
}

// Packet is one access unit produced by a backend's Drain call.
type Packet struct {
	Data       []byte
	IsKeyFrame bool
}

// backend is the low-level codec binding. Submit hands one raw BGRx frame
// to the encoder; Drain returns every access unit the encoder has ready.
type backend interface {
	Submit(frame []byte, pts int64, forceIDR bool) error
	Drain() ([]Packet, error)
	SetBitrate(bitrate int) error
	SetDimensions(width, height int) error
	Close() error
	Name() string
	IsHardware() bool
}

type backendFactory func(cfg Config) (backend, error)

var (
	hardwareFactoriesMu sync.Mutex
	hardwareFactories   []backendFactory
)

// RegisterHardwareFactory lets a platform-specific build register its
// hardware backend at init time, so callers never need a build-tag switch
// of their own.
func RegisterHardwareFactory(factory backendFactory) {
	hardwareFactoriesMu.Lock()
	defer hardwareFactoriesMu.Unlock()
	hardwareFactories = append(hardwareFactories, factory)
}

func tryHardware(cfg Config) backend {
	hardwareFactoriesMu.Lock()
	factories := append([]backendFactory(nil), hardwareFactories...)
	hardwareFactoriesMu.Unlock()

	for _, factory := range factories {
		b, err := factory(cfg)
		if err == nil && b != nil {
			return b
		}
	}
	return nil
}

// Encoder is the per-session video encoder: it owns the backend, the
// monotonic pts counter and the pending-IDR flag checked non-blockingly on
// every iteration.
type Encoder struct {
	mu      sync.Mutex
	cfg     Config
	backend backend

	pendingIDR atomic.Bool
	nextPTS    int64
}

// New opens an Encoder, preferring a registered hardware backend and
// falling back to the software stub when none is registered or every
// registered factory declines.
func New(cfg Config) (*Encoder, error) {
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 10_000_000
	}
	if cfg.FPS == 0 {
		cfg.FPS = 60
	}
	cfg.MaxBFrame = 0
	cfg.Refs = 1
	if err := validate(cfg); err != nil {
		return nil, err
	}

	var b backend
	if cfg.PreferHardware {
		b = tryHardware(cfg)
	}
	if b == nil {
		var err error
		b, err = newSoftwareBackend(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode: open backend: %w", err)
		}
	}

	return &Encoder{cfg: cfg, backend: b, nextPTS: 1}, nil
}

// RequestIDR marks the next submitted frame to be forced as a keyframe.
// Safe to call from any goroutine (the control stream's dispatch).
func (e *Encoder) RequestIDR() {
	e.pendingIDR.Store(true)
}

// Encode submits one captured frame and returns every access unit the
// backend produced as a result (usually zero or one). pts is monotonic
// starting from 1.
func (e *Encoder) Encode(frame []byte) ([]Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backend == nil {
		return nil, errors.New("encode: encoder closed")
	}

	forceIDR := e.pendingIDR.Swap(false)
	pts := e.nextPTS
	e.nextPTS++

	if err := e.backend.Submit(frame, pts, forceIDR); err != nil {
		return nil, fmt.Errorf("encode: submit: %w", err)
	}
	packets, err := e.backend.Drain()
	if err != nil {
		return nil, fmt.Errorf("encode: drain: %w", err)
	}
	return packets, nil
}

func (e *Encoder) SetBitrate(bitrate int) error {
	if bitrate <= 0 {
		return ErrInvalidBitrate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.backend.SetBitrate(bitrate); err != nil {
		return err
	}
	e.cfg.Bitrate = bitrate
	return nil
}

func (e *Encoder) SetDimensions(width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.SetDimensions(width, height)
}

func (e *Encoder) BackendName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	b := e.backend
	e.backend = nil
	e.mu.Unlock()
	if b == nil {
		return nil
	}
	log.Debug("closing video encoder backend", "backend", b.Name())
	return b.Close()
}
