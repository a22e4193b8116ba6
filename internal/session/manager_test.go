package session

import (
	"context"
	"testing"
	"time"

	"github.com/hgaiser/moonshine/internal/applist"
	"github.com/hgaiser/moonshine/internal/config"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/video"
	"github.com/hgaiser/moonshine/internal/video/fec"
)

func testManager(t *testing.T) (*Manager, context.CancelFunc) {
	t.Helper()

	cfg := config.Default()
	apps := []applist.Entry{{ID: 42, Title: "Desktop"}}
	m := NewManager(cfg, apps, fec.NewCache())

	// Sessions in these tests never start streams, so skip the hook
	// execution newSession would otherwise do.
	m.newSession = func(cfg *config.Config, app applist.Entry, ctx protocol.SessionContext) *Session {
		c := ctx
		return &Session{cfg: cfg, app: app, context: &c, metrics: video.NewStreamMetrics()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	return m, cancel
}

func TestLaunchInitializesSessionOnce(t *testing.T) {
	m, cancel := testManager(t)
	defer cancel()

	ctx := context.Background()
	keys := protocol.SessionKeys{RemoteInputKeyID: 7}

	if err := m.Launch(ctx, 42, "client-a", keys, protocol.Resolution{Width: 1920, Height: 1080}, 60); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	appID, ok := m.CurrentAppID()
	if !ok || appID != 42 {
		t.Fatalf("CurrentAppID = %d, %v; want 42, true", appID, ok)
	}

	// A second launch must not disturb the running session.
	if err := m.Launch(ctx, 42, "client-b", protocol.SessionKeys{}, protocol.Resolution{}, 0); err != nil {
		t.Fatalf("second Launch: %v", err)
	}

	snapshot, err := m.GetSessionContext(ctx)
	if err != nil {
		t.Fatalf("GetSessionContext: %v", err)
	}
	if snapshot.Keys.RemoteInputKeyID != 7 {
		t.Fatalf("second launch replaced the session (key id %d)", snapshot.Keys.RemoteInputKeyID)
	}
}

func TestLaunchUnknownApplication(t *testing.T) {
	m, cancel := testManager(t)
	defer cancel()

	err := m.Launch(context.Background(), 999, "client", protocol.SessionKeys{}, protocol.Resolution{}, 0)
	if err == nil {
		t.Fatal("expected error for unknown application id")
	}
}

func TestStartSessionRequiresInitializeAndAnnounce(t *testing.T) {
	m, cancel := testManager(t)
	defer cancel()

	ctx := context.Background()

	if err := m.StartSession(ctx); err == nil {
		t.Fatal("expected StartSession before Launch to fail")
	}

	if err := m.Launch(ctx, 42, "client", protocol.SessionKeys{}, protocol.Resolution{}, 0); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if err := m.StartSession(ctx); err != errNoStreamContext {
		t.Fatalf("StartSession without ANNOUNCE = %v, want errNoStreamContext", err)
	}
}

func TestUpdateKeysRotatesSessionKeys(t *testing.T) {
	m, cancel := testManager(t)
	defer cancel()

	ctx := context.Background()

	if err := m.UpdateKeys(ctx, protocol.SessionKeys{}); err == nil {
		t.Fatal("expected UpdateKeys with no session to fail")
	}

	if err := m.Launch(ctx, 42, "client", protocol.SessionKeys{RemoteInputKeyID: 1}, protocol.Resolution{}, 0); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	rotated := protocol.SessionKeys{RemoteInputKeyID: 2}
	if err := m.Resume(ctx, "client", rotated); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	snapshot, err := m.GetSessionContext(ctx)
	if err != nil {
		t.Fatalf("GetSessionContext: %v", err)
	}
	if snapshot.Keys.RemoteInputKeyID != 2 {
		t.Fatalf("key id = %d after resume, want 2", snapshot.Keys.RemoteInputKeyID)
	}
}

func TestStopSessionReturnsToIdle(t *testing.T) {
	m, cancel := testManager(t)
	defer cancel()

	ctx := context.Background()

	if err := m.Launch(ctx, 42, "client", protocol.SessionKeys{}, protocol.Resolution{}, 0); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := m.StopSession(ctx); err != nil {
		t.Fatalf("StopSession: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.CurrentAppID(); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session still reported after StopSession")
}

func TestSubstituteResolution(t *testing.T) {
	argv := substituteResolution([]string{"xrandr", "--mode", "{width}x{height}"}, 2560, 1440)
	if argv[2] != "2560x1440" {
		t.Fatalf("substitution produced %q", argv[2])
	}
}
