// Package rtsp implements the minimal, line-oriented RTSP/1.0 dialect
// Moonlight speaks to negotiate a streaming session: one request per
// TCP connection, OPTIONS/DESCRIBE/SETUP/ANNOUNCE/PLAY, with two URI quirks
// that real clients require tolerance for.
package rtsp

import (
	"context"
	"fmt"
	"net"

	"github.com/hgaiser/moonshine/internal/config"
	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/protocol"
	"github.com/hgaiser/moonshine/internal/sdp"
	"github.com/hgaiser/moonshine/internal/shutdown"
)

var log = logging.L("rtsp")

// controllerTouchEvents is the only capability bit the DESCRIBE response
// advertises: touch events on the controller's touchpad,
// Sunshine-compatible.
const controllerTouchEvents = 0x02

// SessionManager is the subset of the session manager the negotiator
// drives directly.
type SessionManager interface {
	SetStreamContext(video protocol.VideoStreamContext, audio protocol.AudioStreamContext) error
	StartSession(ctx context.Context) error
}

// Server is the RTSP negotiator listening on the stream port (default
// 48010).
type Server struct {
	cfg     *config.Config
	manager SessionManager
}

// New constructs an RTSP Server.
func New(cfg *config.Config, manager SessionManager) *Server {
	return &Server{cfg: cfg, manager: manager}
}

// ListenAndServe accepts connections until ctx is cancelled, handling each
// on its own goroutine (one connection per request, as Moonlight expects).
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Address, portString(s.cfg.Stream.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rtsp: listen on %s: %w", addr, err)
	}
	log.Info("rtsp listener starting", "addr", addr)

	mgr := shutdown.New(ctx)
	mgr.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return listener.Close()
	})

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				mgr.Wait()
				return nil
			default:
				return fmt.Errorf("rtsp: accept: %w", err)
			}
		}

		go func() {
			if err := s.handleConnection(ctx, conn); err != nil {
				log.Warn("rtsp connection handling failed", "error", err)
			}
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	req, err := readRequest(conn)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	log.Debug("received rtsp request", "method", req.Method, "uri", req.URI)

	resp := s.dispatch(ctx, req)

	if _, err := conn.Write(resp.bytes()); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, req *request) *response {
	switch req.Method {
	case "OPTIONS":
		return s.handleOptions(req)
	case "DESCRIBE":
		return s.handleDescribe(req)
	case "SETUP":
		return s.handleSetup(req)
	case "ANNOUNCE":
		return s.handleAnnounce(req)
	case "PLAY":
		return s.handlePlay(ctx, req)
	default:
		log.Warn("received request with unsupported method", "method", req.Method)
		return badRequest(req.CSeq)
	}
}

func (s *Server) handleOptions(req *request) *response {
	return &response{
		CSeq:       req.CSeq,
		StatusCode: 200,
		StatusText: "OK",
		Headers:    map[string]string{"Public": "OPTIONS DESCRIBE SETUP PLAY"},
	}
}

func (s *Server) handleDescribe(req *request) *response {
	body := fmt.Sprintf("a=x-ss-general.featureFlags:%d\n", controllerTouchEvents) +
		"sprop-parameter-sets=AAAAAU\n" +
		"a=fmtp:96 packetization-mode=1"

	return &response{
		CSeq:       req.CSeq,
		StatusCode: 200,
		StatusText: "OK",
		Body:       []byte(body),
	}
}

func (s *Server) handleSetup(req *request) *response {
	streamID, err := streamIDFromURI(req.URI)
	if err != nil {
		log.Warn("failed to extract stream id from SETUP request", "uri", req.URI, "error", err)
		return badRequest(req.CSeq)
	}

	var port uint16
	switch streamID {
	case "video":
		port = s.cfg.Stream.Video.Port
	case "audio":
		port = s.cfg.Stream.Audio.Port
	case "control":
		port = s.cfg.Stream.Control.Port
	default:
		log.Warn("unknown stream id in SETUP request", "stream", streamID)
		return badRequest(req.CSeq)
	}

	return &response{
		CSeq:       req.CSeq,
		StatusCode: 200,
		StatusText: "OK",
		Headers: map[string]string{
			"Session":   "MoonshineSession;timeout = 90",
			"Transport": fmt.Sprintf("server_port=%d", port),
		},
	}
}

func (s *Server) handleAnnounce(req *request) *response {
	video, err := sdp.ParseVideoStreamContext(string(req.Body))
	if err != nil {
		log.Warn("failed to parse video stream context from ANNOUNCE body", "error", err)
		return badRequest(req.CSeq)
	}
	audio, err := sdp.ParseAudioStreamContext(string(req.Body))
	if err != nil {
		log.Warn("failed to parse audio stream context from ANNOUNCE body", "error", err)
		return badRequest(req.CSeq)
	}

	if err := s.manager.SetStreamContext(video, audio); err != nil {
		log.Error("failed to set stream context", "error", err)
		return &response{CSeq: req.CSeq, StatusCode: 500, StatusText: "Internal Server Error"}
	}

	return &response{CSeq: req.CSeq, StatusCode: 200, StatusText: "OK"}
}

func (s *Server) handlePlay(ctx context.Context, req *request) *response {
	if err := s.manager.StartSession(ctx); err != nil {
		log.Error("failed to start session", "error", err)
		return &response{CSeq: req.CSeq, StatusCode: 500, StatusText: "Internal Server Error"}
	}
	return &response{CSeq: req.CSeq, StatusCode: 200, StatusText: "OK"}
}

func badRequest(cseq int) *response {
	return &response{CSeq: cseq, StatusCode: 400, StatusText: "Bad Request"}
}

func portString(v uint16) string {
	return fmt.Sprintf("%d", v)
}
