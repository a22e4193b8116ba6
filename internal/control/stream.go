package control

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hgaiser/moonshine/internal/config"
	moonshinecrypto "github.com/hgaiser/moonshine/internal/crypto"
	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/shutdown"
	"github.com/hgaiser/moonshine/internal/video/feedback"
)

var log = logging.L("control")

// VideoStream is the subset of the video pipeline the control stream
// drives directly.
type VideoStream interface {
	RequestIDRFrame()
	Start()
}

// AudioStream is the subset of the audio pipeline the control stream
// drives directly.
type AudioStream interface {
	Start(keys protocol.SessionKeys)
}

// InputHandler dispatches a raw InputData payload to the virtual input
// devices, using feedbackTx to report rumble/LED changes back.
type InputHandler interface {
	HandleRawInput(payload []byte, feedbackTx chan<- FeedbackCommand) error
}

// Stream owns the control-channel UDP socket for one session. There is no
// Go ENet implementation in reach of this codebase's dependency set, so the
// reliability/ordering guarantees ENet would provide are narrowed to what
// plain UDP offers; ping-driven watchdog and idempotent StartB handling
// mean an occasional dropped datagram degrades gracefully rather than
// desyncing the session.
type Stream struct {
	cfg     *config.Config
	video   VideoStream
	audio   AudioStream
	input   InputHandler
	context *protocol.SessionContext

	conn         *net.UDPConn
	peerAddr     *net.UDPAddr
	feedbackChan chan FeedbackCommand
	lossReasoner *feedback.Reasoner

	audioVideoStarted bool
}

// New constructs a control Stream. The session context's Keys field is read
// on every encrypted message and may be mutated concurrently by
// UpdateKeys.
func New(cfg *config.Config, video VideoStream, audio AudioStream, input InputHandler, sessionContext *protocol.SessionContext) *Stream {
	return &Stream{
		cfg:          cfg,
		video:        video,
		audio:        audio,
		input:        input,
		context:      sessionContext,
		feedbackChan: make(chan FeedbackCommand, 10),
		lossReasoner: feedback.New(),
	}
}

// UpdateKeys replaces the session's remote input key, e.g. on resume.
func (s *Stream) UpdateKeys(keys protocol.SessionKeys) {
	s.context.Keys = keys
}

// Run services the control socket until ctx is cancelled or the watchdog
// expires from missing a Ping for config.StreamTimeout seconds.
func (s *Stream) Run(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.Address), Port: int(s.cfg.Stream.Control.Port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("control: bind %s: %w", addr, err)
	}
	defer conn.Close()
	s.conn = conn

	log.Info("control stream listening", "addr", addr)

	mgr := shutdown.New(ctx)
	watchdogDeadline := make(chan time.Time, 1)
	watchdogDeadline <- time.Now().Add(time.Duration(s.cfg.StreamTimeout) * time.Second)

	mgr.Go(func(ctx context.Context) error {
		return s.recvLoop(ctx, watchdogDeadline)
	})
	mgr.Go(func(ctx context.Context) error {
		return s.watchdogLoop(ctx, watchdogDeadline)
	})
	mgr.Go(func(ctx context.Context) error {
		return s.feedbackLoop(ctx)
	})
	mgr.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return conn.Close()
	})

	mgr.Wait()
	// A watchdog timeout or read failure must take the whole session down,
	// not just this stream.
	return mgr.Reason()
}

func (s *Stream) watchdogLoop(ctx context.Context, deadlineCh chan time.Time) error {
	deadline := <-deadlineCh
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case deadline = <-deadlineCh:
		case now := <-ticker.C:
			if now.After(deadline) {
				log.Info("stopping because no ping was received in time", "timeout_seconds", s.cfg.StreamTimeout)
				return fmt.Errorf("control: watchdog timeout")
			}
		}
	}
}

func (s *Stream) feedbackLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.feedbackChan:
			if cmd.Rumble == nil {
				continue
			}
			if s.peerAddr == nil {
				continue
			}
			if _, err := s.conn.WriteToUDP(cmd.Rumble.packet(), s.peerAddr); err != nil {
				log.Warn("failed to send rumble feedback", "error", err)
			}
		}
	}
}

func (s *Stream) recvLoop(ctx context.Context, deadlineCh chan time.Time) error {
	buf := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("control: read: %w", err)
			}
		}
		s.peerAddr = addr

		if err := s.handleDatagram(buf[:n], deadlineCh); err != nil {
			log.Debug("dropping control datagram", "error", err)
		}
	}
}

func (s *Stream) handleDatagram(buf []byte, deadlineCh chan time.Time) error {
	msg, err := parseMessage(buf)
	if err != nil {
		return err
	}

	if msg.Type == protocol.ControlEncrypted {
		decrypted, err := s.decrypt(msg)
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		msg, err = parseMessage(decrypted)
		if err != nil {
			return fmt.Errorf("parse decrypted payload: %w", err)
		}
	}

	switch msg.Type {
	case protocol.ControlInvalidateReferenceFrames, protocol.ControlRequestIDRFrame:
		s.video.RequestIDRFrame()
	case protocol.ControlLossStats:
		if s.lossReasoner.ObserveLossStats() {
			s.video.RequestIDRFrame()
		}
	case protocol.ControlFrameStats:
		s.lossReasoner.ObserveFrameStats()
	case protocol.ControlStartB:
		if !s.audioVideoStarted {
			s.audio.Start(s.context.Keys)
			s.video.Start()
			s.audioVideoStarted = true
		}
	case protocol.ControlPing:
		select {
		case <-deadlineCh:
		default:
		}
		deadlineCh <- time.Now().Add(time.Duration(s.cfg.StreamTimeout) * time.Second)
	case protocol.ControlInputData:
		if err := s.input.HandleRawInput(msg.Payload, s.feedbackChan); err != nil {
			log.Debug("failed to handle input event", "error", err)
		}
	case protocol.ControlTermination:
		log.Info("received termination message from client")
	default:
		log.Debug("ignoring control message", "type", msg.Type)
	}

	return nil
}

func (s *Stream) decrypt(msg *message) ([]byte, error) {
	var iv [16]byte
	iv[0] = byte(msg.SequenceNumber)

	plaintext, err := moonshinecrypto.GCMOpen(s.context.Keys.RemoteInputKey[:], iv[:], msg.Payload, msg.Tag[:])
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
