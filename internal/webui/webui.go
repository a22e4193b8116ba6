// Package webui serves a small loopback-only stats endpoint: a WebSocket
// that pushes live session counters (encode rate, FEC overhead, dropped
// frames) to whatever local tooling wants to watch a stream, plus a
// one-shot JSON snapshot for curl.
package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/video"
)

var log = logging.L("webui")

// pushInterval is how often connected WebSocket clients receive a snapshot.
const pushInterval = time.Second

// MetricsSource provides the active session's stream counters.
type MetricsSource interface {
	Metrics(ctx context.Context) (video.MetricsSnapshot, error)
}

// HostSource provides host resource samples.
type HostSource interface {
	Snapshot() (float64, error)
	Memory() float64
}

// Server is the loopback stats server.
type Server struct {
	port    uint16
	metrics MetricsSource
	host    HostSource

	upgrader websocket.Upgrader
}

// New constructs a Server. host may be nil.
func New(port uint16, metrics MetricsSource, host HostSource) *Server {
	return &Server{
		port:    port,
		metrics: metrics,
		host:    host,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type statsPayload struct {
	Stream     video.MetricsSnapshot `json:"stream"`
	CPUPercent float64               `json:"cpuPercent"`
	MemPercent float64               `json:"memPercent"`
}

func (s *Server) snapshot(ctx context.Context) statsPayload {
	payload := statsPayload{}
	if snapshot, err := s.metrics.Metrics(ctx); err == nil {
		payload.Stream = snapshot
	}
	if s.host != nil {
		if cpuPercent, err := s.host.Snapshot(); err == nil {
			payload.CPUPercent = cpuPercent
		}
		payload.MemPercent = s.host.Memory()
	}
	return payload
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshot(r.Context()))
}

func (s *Server) handleStatsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log.Debug("stats client connected", "remote", conn.RemoteAddr())

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot(r.Context())); err != nil {
				log.Debug("stats client disconnected", "error", err)
				return
			}
		}
	}
}

// ListenAndServe serves on 127.0.0.1 only until ctx is cancelled. A port of
// zero disables the endpoint entirely.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.port == 0 {
		log.Debug("stats endpoint disabled")
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStatsSocket)
	mux.HandleFunc("/", s.handleSnapshot)

	server := &http.Server{
		Addr:    net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", s.port)),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("stats endpoint starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
