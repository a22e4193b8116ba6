package webserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hgaiser/moonshine/internal/applist"
	"github.com/hgaiser/moonshine/internal/config"
	moonshinecrypto "github.com/hgaiser/moonshine/internal/crypto"
	"github.com/hgaiser/moonshine/internal/pairing"
	"github.com/hgaiser/moonshine/internal/protocol"
)

// SessionController is the subset of the session manager the webserver
// needs to drive /launch, /resume and /cancel without importing the
// session package directly, keeping the dependency one-directional.
type SessionController interface {
	Launch(ctx context.Context, appID int32, clientID string, keys protocol.SessionKeys, res protocol.Resolution, fps int) error
	Resume(ctx context.Context, clientID string, keys protocol.SessionKeys) error
	Cancel(ctx context.Context) error
	CurrentAppID() (int32, bool)
}

// HostStats is the subset of a host resource snapshot surfaced in
// /serverinfo's cpuLoadPercent field.
type HostStats interface {
	Snapshot() (cpuPercent float64, err error)
}

// Server is the HTTP (pairing, port 47989) and HTTPS (mTLS, port 47984)
// front end described by the web interface component.
type Server struct {
	cfg      *config.Config
	pairing  *pairing.Manager
	store    *pairing.FileStore
	session  SessionController
	stats    HostStats
	identity *moonshinecrypto.HostIdentity
	apps     []applist.Entry

	httpServer  *http.Server
	httpsServer *http.Server
}

// New constructs a Server. session and stats may be nil in configurations
// that only need pairing (e.g. tests).
func New(cfg *config.Config, identity *moonshinecrypto.HostIdentity, mgr *pairing.Manager, store *pairing.FileStore, session SessionController, stats HostStats, apps []applist.Entry) *Server {
	return &Server{
		cfg:      cfg,
		pairing:  mgr,
		store:    store,
		session:  session,
		stats:    stats,
		identity: identity,
		apps:     apps,
	}
}

// SetApps replaces the served application catalog, e.g. after reloading an
// on-disk catalog file.
func (s *Server) SetApps(apps []applist.Entry) {
	s.apps = apps
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/pair", s.handlePair)
	mux.HandleFunc("/pin", s.handlePin)
	mux.HandleFunc("/submit-pin", s.handlePinSubmit)
	mux.HandleFunc("/unpair", s.handleUnpair)
	mux.HandleFunc("/serverinfo", s.handleServerInfo)
	mux.HandleFunc("/applist", s.handleAppList)
	mux.HandleFunc("/appasset", s.handleAppAsset)
	mux.HandleFunc("/launch", s.handleLaunch)
	mux.HandleFunc("/resume", s.handleResume)
	mux.HandleFunc("/cancel", s.handleCancel)
	return mux
}

// ListenAndServe starts both the plain-HTTP and mTLS-HTTPS listeners and
// blocks until ctx is cancelled, at which point both are shut down with a
// bounded grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := s.routes()

	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(s.cfg.Address, itoa(s.cfg.Webserver.Port)),
		Handler: mux,
	}
	s.httpsServer = &http.Server{
		Addr:      net.JoinHostPort(s.cfg.Address, itoa(s.cfg.Webserver.PortHTTPS)),
		Handler:   mux,
		TLSConfig: s.tlsConfig(),
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http pairing listener starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()
	go func() {
		log.Info("https listener starting", "addr", s.httpsServer.Addr)
		if err := s.httpsServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("https server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	_ = s.httpsServer.Shutdown(shutdownCtx)

	return nil
}

func (s *Server) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{s.identity.TLS},
		ClientAuth:   tls.RequestClientCert,
		MinVersion:   tls.VersionTLS12,
	}
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
