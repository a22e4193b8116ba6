// Package session orchestrates one streaming session's lifecycle: a
// single-consumer command loop owns all mutable state, and a Session ties
// the video, audio and control streams to a shared shutdown manager.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hgaiser/moonshine/internal/applist"
	"github.com/hgaiser/moonshine/internal/audio"
	"github.com/hgaiser/moonshine/internal/config"
	"github.com/hgaiser/moonshine/internal/control"
	"github.com/hgaiser/moonshine/internal/input"
	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/shutdown"
	"github.com/hgaiser/moonshine/internal/video"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

var log = logging.L("session")

// stopGracePeriod bounds how long StopSession waits for the session's
// workers to exit before giving up and clearing state anyway.
const stopGracePeriod = 10 * time.Second

// errNoStreamContext is returned when PLAY arrives before ANNOUNCE.
var errNoStreamContext = errors.New("session: no stream context set")

// Session is one active streaming session. All fields are owned by the
// manager's command loop; the streams themselves are driven by worker
// goroutines under the session's shutdown manager.
type Session struct {
	cfg     *config.Config
	app     applist.Entry
	context *protocol.SessionContext
	metrics *video.StreamMetrics

	shutdown *shutdown.Manager
	video    *video.Stream
	audio    *audio.Stream
	control  *control.Stream
	input    *input.Dispatcher

	started bool
}

// newSession creates a Session for app and runs its run_before hooks. The
// streams are not created until start, because their configuration comes
// from the later ANNOUNCE.
func newSession(cfg *config.Config, app applist.Entry, sessionContext protocol.SessionContext) *Session {
	runHooks("run_before", appHooksBefore(cfg, app), sessionContext.Resolution.Width, sessionContext.Resolution.Height)

	ctx := sessionContext
	return &Session{
		cfg:     cfg,
		app:     app,
		context: &ctx,
		metrics: video.NewStreamMetrics(),
	}
}

func appHooksBefore(cfg *config.Config, app applist.Entry) [][]string {
	for _, a := range cfg.Applications {
		if a.Title == app.Title {
			return a.RunBefore
		}
	}
	return nil
}

func appHooksAfter(cfg *config.Config, app applist.Entry) [][]string {
	for _, a := range cfg.Applications {
		if a.Title == app.Title {
			return a.RunAfter
		}
	}
	return nil
}

// start creates the three streams from the ANNOUNCE-derived contexts and
// spawns their worker goroutines under one shutdown manager rooted in
// parent. Stream-fatal errors from any worker trigger the whole session's
// shutdown.
func (s *Session) start(parent context.Context, videoCtx protocol.VideoStreamContext, audioCtx protocol.AudioStreamContext, codecs *fec.Cache) error {
	if s.started {
		log.Info("session already started, ignoring")
		return nil
	}

	s.context.Video = videoCtx
	s.context.Audio = audioCtx
	if s.context.Resolution.Width == 0 {
		s.context.Resolution = protocol.Resolution{Width: videoCtx.Width, Height: videoCtx.Height}
		s.context.RefreshRate = videoCtx.FPS
	}

	videoStream, err := video.New(s.cfg, s.context, codecs, s.metrics)
	if err != nil {
		return fmt.Errorf("session: create video stream: %w", err)
	}

	s.video = videoStream
	s.audio = audio.New(s.cfg, s.context, codecs)
	s.input = input.New()
	s.control = control.New(s.cfg, s.video, s.audio, s.input, s.context)

	s.shutdown = shutdown.New(parent)
	s.shutdown.Go(s.video.Run)
	s.shutdown.Go(s.audio.Run)
	s.shutdown.Go(s.control.Run)

	s.started = true
	log.Info("session started", "application", s.context.Application, "application_id", s.context.ApplicationID)
	return nil
}

// updateKeys propagates rotated key material to the control and audio
// streams, per the resume flow.
func (s *Session) updateKeys(keys protocol.SessionKeys) {
	s.context.Keys = keys
	if s.control != nil {
		s.control.UpdateKeys(keys)
	}
	if s.audio != nil {
		s.audio.UpdateKeys(keys)
	}
}

// stop triggers the session's shutdown, waits up to stopGracePeriod for
// every worker to exit, then runs the run_after hooks and releases the
// virtual input devices.
func (s *Session) stop() {
	if s.shutdown != nil {
		s.shutdown.Trigger(errors.New("session stopped"))

		select {
		case <-s.shutdown.WaitChan():
		case <-time.After(stopGracePeriod):
			log.Warn("session workers did not exit in time, abandoning them", "grace_period", stopGracePeriod)
		}
	}

	if s.input != nil {
		if err := s.input.Close(); err != nil {
			log.Warn("failed to close virtual input devices", "error", err)
		}
	}

	runHooks("run_after", appHooksAfter(s.cfg, s.app), s.context.Resolution.Width, s.context.Resolution.Height)
	log.Info("session stopped", "application", s.context.Application)
}

// done exposes the session's shutdown channel so the manager can reap a
// session that died on its own (watchdog, stream-fatal error). Nil before
// start.
func (s *Session) done() <-chan struct{} {
	if s.shutdown == nil {
		return nil
	}
	return s.shutdown.Done()
}
