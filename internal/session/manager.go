package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hgaiser/moonshine/internal/applist"
	"github.com/hgaiser/moonshine/internal/config"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/video"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

// command is the closed set of messages the manager's loop consumes. Every
// command carries a reply channel; the loop never blocks on a send because
// each reply channel has capacity 1.
type command interface{ isCommand() }

type setStreamContextCmd struct {
	video protocol.VideoStreamContext
	audio protocol.AudioStreamContext
	reply chan error
}

type getSessionContextCmd struct {
	reply chan *protocol.SessionContext
}

type initializeSessionCmd struct {
	context protocol.SessionContext
	app     applist.Entry
	reply   chan error
}

type startSessionCmd struct {
	reply chan error
}

type stopSessionCmd struct {
	reply chan error
}

type updateKeysCmd struct {
	keys  protocol.SessionKeys
	reply chan error
}

type metricsCmd struct {
	reply chan video.MetricsSnapshot
}

func (setStreamContextCmd) isCommand()   {}
func (getSessionContextCmd) isCommand()  {}
func (initializeSessionCmd) isCommand()  {}
func (startSessionCmd) isCommand()       {}
func (stopSessionCmd) isCommand()        {}
func (updateKeysCmd) isCommand()         {}
func (metricsCmd) isCommand()            {}

// Manager owns the one-active-session invariant. All mutation flows through
// its command channel; the webserver and RTSP negotiator only ever hold a
// *Manager and talk to the loop.
type Manager struct {
	cfg      *config.Config
	apps     []applist.Entry
	codecs   *fec.Cache
	commands chan command

	// loop-owned state, never touched outside Run.
	session  *Session
	videoCtx *protocol.VideoStreamContext
	audioCtx *protocol.AudioStreamContext

	// newSession is swappable for tests.
	newSession func(cfg *config.Config, app applist.Entry, ctx protocol.SessionContext) *Session
}

// NewManager constructs a Manager. Run must be called before any command
// methods are used.
func NewManager(cfg *config.Config, apps []applist.Entry, codecs *fec.Cache) *Manager {
	return &Manager{
		cfg:        cfg,
		apps:       apps,
		codecs:     codecs,
		commands:   make(chan command, 8),
		newSession: newSession,
	}
}

// Run consumes commands until ctx is cancelled, stopping any active session
// on the way out. It also reaps a session whose workers died on their own
// (control watchdog, stream-fatal error) so the host returns to idle.
func (m *Manager) Run(ctx context.Context) error {
	log.Info("session manager running")

	for {
		var sessionDone <-chan struct{}
		if m.session != nil {
			sessionDone = m.session.done()
		}

		select {
		case <-ctx.Done():
			if m.session != nil {
				m.session.stop()
				m.session = nil
			}
			return nil

		case <-sessionDone:
			log.Info("session ended on its own, reaping")
			m.session.stop()
			m.session = nil

		case cmd := <-m.commands:
			m.handle(ctx, cmd)
		}
	}
}

func (m *Manager) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case setStreamContextCmd:
		videoCtx, audioCtx := c.video, c.audio
		m.videoCtx, m.audioCtx = &videoCtx, &audioCtx
		c.reply <- nil

	case getSessionContextCmd:
		if m.session == nil {
			c.reply <- nil
			return
		}
		snapshot := *m.session.context
		c.reply <- &snapshot

	case initializeSessionCmd:
		if m.session != nil {
			log.Info("session already initialized, ignoring", "application", m.session.context.Application)
			c.reply <- nil
			return
		}
		m.session = m.newSession(m.cfg, c.app, c.context)
		c.reply <- nil

	case startSessionCmd:
		switch {
		case m.session == nil:
			c.reply <- errors.New("session: no session initialized")
		case m.videoCtx == nil || m.audioCtx == nil:
			c.reply <- errNoStreamContext
		default:
			c.reply <- m.session.start(ctx, *m.videoCtx, *m.audioCtx, m.codecs)
		}

	case stopSessionCmd:
		if m.session != nil {
			m.session.stop()
			m.session = nil
		}
		m.videoCtx, m.audioCtx = nil, nil
		c.reply <- nil

	case updateKeysCmd:
		if m.session == nil {
			c.reply <- errors.New("session: no session to update keys for")
			return
		}
		m.session.updateKeys(c.keys)
		c.reply <- nil

	case metricsCmd:
		if m.session == nil {
			c.reply <- video.MetricsSnapshot{}
			return
		}
		c.reply <- m.session.metrics.Snapshot()
	}
}

func (m *Manager) send(ctx context.Context, cmd command, reply chan error) error {
	select {
	case m.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetStreamContext stashes the latest ANNOUNCE-derived stream parameters.
func (m *Manager) SetStreamContext(videoCtx protocol.VideoStreamContext, audioCtx protocol.AudioStreamContext) error {
	reply := make(chan error, 1)
	return m.send(context.Background(), setStreamContextCmd{video: videoCtx, audio: audioCtx, reply: reply}, reply)
}

// GetSessionContext snapshots the active session, or nil when idle.
func (m *Manager) GetSessionContext(ctx context.Context) (*protocol.SessionContext, error) {
	reply := make(chan *protocol.SessionContext, 1)
	select {
	case m.commands <- getSessionContextCmd{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartSession starts the initialized session's streams (PLAY).
func (m *Manager) StartSession(ctx context.Context) error {
	reply := make(chan error, 1)
	return m.send(ctx, startSessionCmd{reply: reply}, reply)
}

// StopSession stops and clears any active session.
func (m *Manager) StopSession(ctx context.Context) error {
	reply := make(chan error, 1)
	return m.send(ctx, stopSessionCmd{reply: reply}, reply)
}

// UpdateKeys rotates the remote input key material on resume.
func (m *Manager) UpdateKeys(ctx context.Context, keys protocol.SessionKeys) error {
	reply := make(chan error, 1)
	return m.send(ctx, updateKeysCmd{keys: keys, reply: reply}, reply)
}

// Metrics snapshots the active session's stream counters; zero when idle.
func (m *Manager) Metrics(ctx context.Context) (video.MetricsSnapshot, error) {
	reply := make(chan video.MetricsSnapshot, 1)
	select {
	case m.commands <- metricsCmd{reply: reply}:
	case <-ctx.Done():
		return video.MetricsSnapshot{}, ctx.Err()
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return video.MetricsSnapshot{}, ctx.Err()
	}
}

// Launch initializes a fresh session for appID with the client-supplied key
// material (rikey/rikeyid from the /launch request).
func (m *Manager) Launch(ctx context.Context, appID int32, clientID string, keys protocol.SessionKeys, res protocol.Resolution, fps int) error {
	app, ok := applist.Find(m.apps, appID)
	if !ok {
		return fmt.Errorf("session: unknown application id %d", appID)
	}

	sessionContext := protocol.SessionContext{
		Application:   app.Title,
		ApplicationID: app.ID,
		Resolution:    res,
		RefreshRate:   fps,
		Keys:          keys,
		HostAudio:     true,
	}

	log.Info("launching application", "title", app.Title, "client", clientID, "resolution", fmt.Sprintf("%dx%d", res.Width, res.Height))

	reply := make(chan error, 1)
	return m.send(ctx, initializeSessionCmd{context: sessionContext, app: app, reply: reply}, reply)
}

// Resume reattaches a client to the running session, rotating its keys.
func (m *Manager) Resume(ctx context.Context, clientID string, keys protocol.SessionKeys) error {
	log.Info("resuming session", "client", clientID)
	return m.UpdateKeys(ctx, keys)
}

// Cancel tears the current session down (the /cancel endpoint).
func (m *Manager) Cancel(ctx context.Context) error {
	return m.StopSession(ctx)
}

// CurrentAppID reports the running application for /serverinfo.
func (m *Manager) CurrentAppID() (int32, bool) {
	snapshot, err := m.GetSessionContext(context.Background())
	if err != nil || snapshot == nil {
		return 0, false
	}
	return snapshot.ApplicationID, true
}
