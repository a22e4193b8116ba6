package video

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hgaiser/moonshine/internal/config"
	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/netdiag"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/shutdown"
	"github.com/hgaiser/moonshine/internal/video/capture"
	"github.com/hgaiser/moonshine/internal/video/encode"
	"github.com/hgaiser/moonshine/internal/video/fec"
	"github.com/hgaiser/moonshine/internal/video/packetize"
)

var log = logging.L("video")

// frameWaitTimeout bounds how long the encode thread waits for a new
// captured frame before re-checking shutdown.
const frameWaitTimeout = 5 * time.Second

// Stream is the per-session video pipeline: capture thread, encode thread
// and UDP sender. Sending is gated on Start, which the control stream calls
// when the client's StartB message arrives.
type Stream struct {
	cfg     *config.Config
	context *protocol.SessionContext
	metrics *StreamMetrics

	encoder    *encode.Encoder
	slot       *capture.FrameSlot
	packetizer *packetize.Packetizer

	// shards carries all shards of one frame as a unit, so cross-frame
	// ordering is preserved by channel FIFO alone.
	shards chan [][]byte

	started   chan struct{}
	startOnce sync.Once

	peer atomic.Pointer[net.UDPAddr]
}

// New builds a Stream from the ANNOUNCE-derived context. The encoder is
// opened immediately so configuration errors surface before PLAY.
func New(cfg *config.Config, sessionContext *protocol.SessionContext, codecs *fec.Cache, metrics *StreamMetrics) (*Stream, error) {
	var codec encode.Codec
	switch sessionContext.Video.VideoFormat {
	case protocol.VideoFormatH264:
		codec = encode.CodecH264
	case protocol.VideoFormatHEVC:
		codec = encode.CodecHEVC
	case protocol.VideoFormatAV1:
		codec = encode.CodecAV1
	default:
		return nil, fmt.Errorf("video: unknown video format %d", sessionContext.Video.VideoFormat)
	}

	encoder, err := encode.New(encode.Config{
		Codec:          codec,
		Width:          sessionContext.Video.Width,
		Height:         sessionContext.Video.Height,
		FPS:            sessionContext.Video.FPS,
		Bitrate:        sessionContext.Video.BitrateBitsPerSecond,
		PreferHardware: true,
	})
	if err != nil {
		return nil, fmt.Errorf("video: open encoder: %w", err)
	}

	return &Stream{
		cfg:        cfg,
		context:    sessionContext,
		metrics:    metrics,
		encoder:    encoder,
		slot:       capture.NewFrameSlot(),
		packetizer: packetize.New(codecs),
		shards:     make(chan [][]byte, 16),
		started:    make(chan struct{}),
	}, nil
}

// Start releases the encode loop. Idempotent; only the first call matters.
func (s *Stream) Start() {
	s.startOnce.Do(func() {
		log.Info("starting video stream")
		close(s.started)
	})
}

// RequestIDRFrame asks the encoder to force the next frame to be a
// keyframe. Safe from any goroutine.
func (s *Stream) RequestIDRFrame() {
	s.encoder.RequestIDR()
}

// Run binds the video UDP socket and drives capture, encode and send until
// ctx is cancelled. A stream-fatal error (socket bind, capturer open)
// triggers the surrounding session's shutdown via the returned error.
func (s *Stream) Run(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.Address), Port: int(s.cfg.Stream.Video.Port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("video: bind %s: %w", addr, err)
	}
	defer conn.Close()

	if s.context.Video.QoS {
		if err := netdiag.SetTOS(conn, protocol.QoSTOSVideo); err != nil {
			log.Debug("failed to mark video socket TOS", "error", err)
		}
	}

	log.Info("video stream listening", "addr", addr,
		"resolution", fmt.Sprintf("%dx%d", s.context.Video.Width, s.context.Video.Height),
		"fps", s.context.Video.FPS, "encoder", s.encoder.BackendName())

	mgr := shutdown.New(ctx)

	mgr.Go(func(ctx context.Context) error {
		return s.captureLoop(ctx)
	})
	mgr.Go(func(ctx context.Context) error {
		return s.encodeLoop(ctx)
	})
	mgr.Go(func(ctx context.Context) error {
		return s.sendLoop(ctx, conn)
	})
	mgr.Go(func(ctx context.Context) error {
		return s.receiveLoop(ctx, conn)
	})
	mgr.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return conn.Close()
	})

	mgr.Wait()
	_ = s.encoder.Close()
	// Stream-fatal worker errors (capturer open, socket read) propagate to
	// the session's shutdown manager.
	return mgr.Reason()
}

func (s *Stream) captureLoop(ctx context.Context) error {
	capturer, err := capture.NewCapturer(capture.Config{})
	if err != nil {
		return fmt.Errorf("video: open capturer: %w", err)
	}
	return capture.Run(ctx, capturer, s.slot, s.context.Video.FPS, s.context.Video.Width, s.context.Video.Height)
}

func (s *Stream) encodeLoop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.started:
	}

	streamStart := time.Now()
	var lastCounter uint64
	var frameNumber uint32
	var sequenceNumber uint32

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, _, _, counter, ok := s.slot.Wait(ctx, lastCounter, frameWaitTimeout)
		if !ok {
			continue
		}
		if dropped := counter - lastCounter - 1; dropped > 0 && lastCounter > 0 {
			s.metrics.RecordDrop(dropped)
		}
		lastCounter = counter
		s.metrics.RecordCapture()

		encodeStart := time.Now()
		packets, err := s.encoder.Encode(frame)
		if err != nil {
			log.Warn("failed to encode frame, skipping", "error", err)
			continue
		}

		for _, packet := range packets {
			if len(packet.Data) == 0 {
				log.Warn("encoder produced empty packet, skipping")
				continue
			}

			frameNumber++
			s.metrics.RecordEncode(time.Since(encodeStart), len(packet.Data), packet.IsKeyFrame)

			// 90 kHz RTP clock, derived from the wall clock rather than the
			// frame counter so client-side jitter buffers see real pacing.
			timestamp := uint32(time.Since(streamStart).Microseconds() / (1000 / 90))

			shards, err := s.packetizer.Packetize(
				packet.Data,
				packet.IsKeyFrame,
				s.context.Video.PacketSize,
				uint32(s.context.Video.MinimumFECPackets),
				s.cfg.Stream.Video.FECPercentage,
				frameNumber,
				&sequenceNumber,
				timestamp,
			)
			if err != nil {
				log.Warn("failed to packetize frame, skipping", "error", err)
				continue
			}

			shardPayload := s.context.Video.PacketSize - protocol.NvVideoPacketLen
			nData := (len(packet.Data) + 8 + shardPayload - 1) / shardPayload
			s.metrics.RecordShards(nData, len(shards)-nData)

			select {
			case s.shards <- shards:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Stream) sendLoop(ctx context.Context, conn *net.UDPConn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frameShards := <-s.shards:
			peer := s.peer.Load()
			if peer == nil {
				continue
			}

			bytesSent := 0
			for _, shard := range frameShards {
				n, err := conn.WriteToUDP(shard, peer)
				if err != nil {
					select {
					case <-ctx.Done():
						return nil
					default:
					}
					log.Warn("failed to send video shard", "error", err)
					continue
				}
				bytesSent += n
			}
			s.metrics.RecordSend(bytesSent)
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
				return fmt.Errorf("video: read: %w", err)
			}
		}

		if s.peer.Swap(addr) == nil {
			log.Info("video client address latched", "addr", addr)
			go logClientDiagnostics(addr.IP)
		}
	}
}

// logClientDiagnostics best-effort resolves the client's MAC for the debug
// log. Never blocks the receive path.
func logClientDiagnostics(ip net.IP) {
	mac, err := netdiag.ResolveMAC(ip, time.Second)
	if err != nil {
		log.Debug("client MAC not resolved", "ip", ip, "error", err)
		return
	}
	log.Debug("client identified on LAN", "ip", ip, "mac", mac)
}
