// Package audio ties system-audio capture and the Opus/FEC encoder into the
// per-session audio stream: a blocking capture loop feeding an encode loop
// whose packets go to whatever address the client's first PING datagram
// came from.
package audio

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hgaiser/moonshine/internal/audio/capture"
	"github.com/hgaiser/moonshine/internal/audio/encode"
	"github.com/hgaiser/moonshine/internal/config"
	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/netdiag"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/shutdown"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

var log = logging.L("audio")

// Stream is the per-session audio pipeline. Capture and encode start only
// once Start delivers the session keys, since every payload is encrypted
// with them.
type Stream struct {
	cfg     *config.Config
	context *protocol.SessionContext
	codecs  *fec.Cache

	samples chan []int16

	mu      sync.Mutex
	keys    protocol.SessionKeys
	encoder *encode.Stream

	started   chan struct{}
	startOnce sync.Once

	peer atomic.Pointer[net.UDPAddr]
}

// New constructs an audio Stream.
func New(cfg *config.Config, sessionContext *protocol.SessionContext, codecs *fec.Cache) *Stream {
	return &Stream{
		cfg:     cfg,
		context: sessionContext,
		codecs:  codecs,
		samples: make(chan []int16, 16),
		started: make(chan struct{}),
	}
}

// Start supplies the session keys and releases the capture/encode loops.
// Idempotent; later calls only refresh the keys.
func (s *Stream) Start(keys protocol.SessionKeys) {
	s.UpdateKeys(keys)
	s.startOnce.Do(func() {
		log.Info("starting audio stream")
		close(s.started)
	})
}

// UpdateKeys rotates the encryption key material, e.g. on session resume.
func (s *Stream) UpdateKeys(keys protocol.SessionKeys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
	if s.encoder != nil {
		s.encoder.UpdateKeys(keys)
	}
}

// Run binds the audio UDP socket and drives capture, encode and send until
// ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	if !s.context.HostAudio {
		log.Info("audio disabled for this session, serving socket without capture")
	}

	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.Address), Port: int(s.cfg.Stream.Audio.Port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("audio: bind %s: %w", addr, err)
	}
	defer conn.Close()

	if s.context.Audio.QoS {
		if err := netdiag.SetTOS(conn, protocol.QoSTOSAudio); err != nil {
			log.Debug("failed to mark audio socket TOS", "error", err)
		}
	}

	log.Info("audio stream listening", "addr", addr, "packet_duration_ms", s.context.Audio.PacketDurationMs)

	mgr := shutdown.New(ctx)

	if s.context.HostAudio {
		mgr.Go(func(ctx context.Context) error {
			return s.captureLoop(ctx)
		})
		mgr.Go(func(ctx context.Context) error {
			return s.encodeLoop(ctx, conn)
		})
	}
	mgr.Go(func(ctx context.Context) error {
		return s.receiveLoop(ctx, conn)
	})
	mgr.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return conn.Close()
	})

	mgr.Wait()
	return mgr.Reason()
}

func (s *Stream) captureLoop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.started:
	}

	capturer, err := capture.NewCapturer(s.cfg.Stream.Audio.Sink)
	if err != nil {
		return fmt.Errorf("audio: open capturer: %w", err)
	}
	defer capturer.Close()

	return capturer.Run(ctx, func(samples []int16) {
		// The capturer reuses its buffer between reads.
		buf := make([]int16, len(samples))
		copy(buf, samples)

		select {
		case s.samples <- buf:
		default:
			log.Debug("audio encode loop behind, dropping buffer")
		}
	})
}

func (s *Stream) encodeLoop(ctx context.Context, conn *net.UDPConn) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.started:
	}

	s.mu.Lock()
	encoder, err := encode.New(s.codecs, s.keys)
	if err == nil {
		s.encoder = encoder
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("audio: open encoder: %w", err)
	}
	defer encoder.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case samples := <-s.samples:
			packets, err := encoder.Encode(samples)
			if err != nil {
				log.Warn("failed to encode audio buffer, skipping", "error", err)
				continue
			}

			peer := s.peer.Load()
			if peer == nil {
				continue
			}
			for _, packet := range packets {
				if _, err := conn.WriteToUDP(packet, peer); err != nil {
					select {
					case <-ctx.Done():
						return nil
					default:
					}
					log.Warn("failed to send audio packet", "error", err)
				}
			}
		}
	}
}

// receiveLoop latches the client's return address from its PING datagrams.
func (s *Stream) receiveLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, 64)
	for {
		_, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("audio: read: %w", err)
			}
		}

		if s.peer.Swap(addr) == nil {
			log.Info("audio client address latched", "addr", addr)
		}
	}
}
