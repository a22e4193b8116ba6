package webserver

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hgaiser/moonshine/internal/applist"
	"github.com/hgaiser/moonshine/internal/protocol"
)

// handleAppList answers /applist with one <App> entry per configured
// application, the shape Moonlight's app grid expects.
func (s *Server) handleAppList(w http.ResponseWriter, r *http.Request) {
	var body string
	for _, app := range s.apps {
		body += fmt.Sprintf("<App><IsHdrSupported>0</IsHdrSupported><AppTitle>%s</AppTitle><ID>%d</ID></App>",
			app.Title, app.ID)
	}
	writeXML(w, xmlRoot("<Apps>"+body+"</Apps>"))
}

// handleAppAsset answers /appasset?appid=<id> with the application's boxart
// PNG, or 404 if none is configured.
func (s *Server) handleAppAsset(w http.ResponseWriter, r *http.Request) {
	appIDStr, ok := requireParam(w, r.URL.Query(), "appid")
	if !ok {
		return
	}
	appID, err := strconv.ParseInt(appIDStr, 10, 32)
	if err != nil {
		badRequest(w, fmt.Sprintf("invalid appid %q: %v", appIDStr, err))
		return
	}

	app, ok := applist.Find(s.apps, int32(appID))
	if !ok || app.Boxart == "" {
		http.NotFound(w, r)
		return
	}

	data, err := os.ReadFile(app.Boxart)
	if err != nil {
		log.Warn("failed to read boxart", "app", app.Title, "path", app.Boxart, "error", err)
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

// sessionKeysFromQuery decodes the rikey/rikeyid parameters Moonlight sends
// on /launch and /resume: the AES-128 key for the control and audio
// channels and the 64-bit IV prefix.
func sessionKeysFromQuery(w http.ResponseWriter, query url.Values) (protocol.SessionKeys, bool) {
	keyBytes, ok := requireHexParam(w, query, "rikey")
	if !ok {
		return protocol.SessionKeys{}, false
	}
	if len(keyBytes) != 16 {
		badRequest(w, fmt.Sprintf("rikey must be 16 bytes, got %d", len(keyBytes)))
		return protocol.SessionKeys{}, false
	}
	keyIDStr, ok := requireParam(w, query, "rikeyid")
	if !ok {
		return protocol.SessionKeys{}, false
	}
	keyID, err := strconv.ParseUint(keyIDStr, 10, 64)
	if err != nil {
		badRequest(w, fmt.Sprintf("invalid rikeyid %q: %v", keyIDStr, err))
		return protocol.SessionKeys{}, false
	}

	var keys protocol.SessionKeys
	copy(keys.RemoteInputKey[:], keyBytes)
	keys.RemoteInputKeyID = keyID
	return keys, true
}

// modeFromQuery parses the optional "mode" parameter (WxHxFPS). A missing
// or malformed mode leaves the resolution to be filled in from ANNOUNCE.
func modeFromQuery(query url.Values) (protocol.Resolution, int) {
	parts := strings.Split(query.Get("mode"), "x")
	if len(parts) != 3 {
		return protocol.Resolution{}, 0
	}
	width, errW := strconv.Atoi(parts[0])
	height, errH := strconv.Atoi(parts[1])
	fps, errF := strconv.Atoi(parts[2])
	if errW != nil || errH != nil || errF != nil {
		return protocol.Resolution{}, 0
	}
	return protocol.Resolution{Width: width, Height: height}, fps
}

// handleLaunch answers /launch?appid=<id>&uniqueid=<client>, starting a new
// session for the requested application.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		badRequest(w, "no session controller configured")
		return
	}

	query := r.URL.Query()
	appIDStr, ok := requireParam(w, query, "appid")
	if !ok {
		return
	}
	clientID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}
	appID, err := strconv.ParseInt(appIDStr, 10, 32)
	if err != nil {
		badRequest(w, fmt.Sprintf("invalid appid %q: %v", appIDStr, err))
		return
	}
	keys, ok := sessionKeysFromQuery(w, query)
	if !ok {
		return
	}
	res, fps := modeFromQuery(query)

	if err := s.session.Launch(r.Context(), int32(appID), clientID, keys, res, fps); err != nil {
		badRequest(w, fmt.Sprintf("failed to launch application: %v", err))
		return
	}

	writeXML(w, xmlRoot("<gamesession>1</gamesession>"))
}

// handleResume answers /resume?uniqueid=<client>, reattaching a client to
// the currently running session.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		badRequest(w, "no session controller configured")
		return
	}

	query := r.URL.Query()
	clientID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}
	keys, ok := sessionKeysFromQuery(w, query)
	if !ok {
		return
	}

	if err := s.session.Resume(r.Context(), clientID, keys); err != nil {
		badRequest(w, fmt.Sprintf("failed to resume session: %v", err))
		return
	}

	writeXML(w, xmlRoot("<resume>1</resume>"))
}

// handleCancel answers /cancel, tearing down the current session.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		badRequest(w, "no session controller configured")
		return
	}

	if err := s.session.Cancel(r.Context()); err != nil {
		badRequest(w, fmt.Sprintf("failed to cancel session: %v", err))
		return
	}

	writeXML(w, xmlRoot("<cancel>1</cancel>"))
}
