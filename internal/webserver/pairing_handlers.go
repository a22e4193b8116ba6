// Package webserver implements the HTTP/HTTPS front ends: pairing,
// /serverinfo, /applist, /appasset, /launch, /resume, /cancel, /unpair, and
// the PIN-entry page. Every XML response is wrapped in the
// `<root status_code="200">` envelope real clients expect.
package webserver

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("webserver")

const xmlContentType = "application/xml"

func xmlRoot(body string) string {
	return `<root status_code="200">` + body + `</root>`
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", xmlContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func badRequest(w http.ResponseWriter, message string) {
	log.Warn(message)
	http.Error(w, message, http.StatusBadRequest)
}

// handlePair dispatches a /pair request to the phase identified by its
// query parameters. Dispatch order matters: "phrase" is checked first
// because phase 1 and 4a both carry it.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch {
	case query.Has("phrase"):
		switch query.Get("phrase") {
		case "getservercert":
			s.handleGetServerCert(w, r, query)
		case "pairchallenge":
			s.handlePairChallenge(w, query)
		default:
			badRequest(w, fmt.Sprintf("unknown pair phrase received: %s", query.Get("phrase")))
		}
	case query.Has("clientchallenge"):
		s.handleClientChallenge(w, query)
	case query.Has("serverchallengeresp"):
		s.handleServerChallengeResponse(w, query)
	case query.Has("clientpairingsecret"):
		s.handleClientPairingSecret(w, query)
	default:
		badRequest(w, fmt.Sprintf("unknown pair command with params: %v", query))
	}
}

func requireParam(w http.ResponseWriter, query url.Values, name string) (string, bool) {
	value := query.Get(name)
	if value == "" {
		badRequest(w, fmt.Sprintf("expected %q parameter, got %v", name, query))
		return "", false
	}
	return value, true
}

func requireHexParam(w http.ResponseWriter, query url.Values, name string) ([]byte, bool) {
	value, ok := requireParam(w, query, name)
	if !ok {
		return nil, false
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		badRequest(w, fmt.Sprintf("failed to decode %q as hex: %v", name, err))
		return nil, false
	}
	return decoded, true
}

func (s *Server) handleGetServerCert(w http.ResponseWriter, r *http.Request, query url.Values) {
	clientCert, ok := requireHexParam(w, query, "clientcert")
	if !ok {
		return
	}
	uniqueID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}
	saltBytes, ok := requireHexParam(w, query, "salt")
	if !ok {
		return
	}
	if len(saltBytes) != 16 {
		badRequest(w, fmt.Sprintf("expected salt of exactly 16 bytes, got %d", len(saltBytes)))
		return
	}
	var salt [16]byte
	copy(salt[:], saltBytes)

	done := r.Context().Done()
	if _, err := s.pairing.StartPairing(uniqueID, clientCert, salt, done); err != nil {
		badRequest(w, fmt.Sprintf("failed to start pairing: %v", err))
		return
	}

	writeXML(w, xmlRoot("<paired>1</paired>"+
		fmt.Sprintf("<plaincert>%s</plaincert>", hex.EncodeToString(s.pairing.ServerCertificatePEM()))))
}

func (s *Server) handleClientChallenge(w http.ResponseWriter, query url.Values) {
	uniqueID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}
	challenge, ok := requireHexParam(w, query, "clientchallenge")
	if !ok {
		return
	}

	response, err := s.pairing.ClientChallenge(uniqueID, challenge)
	if err != nil {
		badRequest(w, fmt.Sprintf("failed to process client challenge: %v", err))
		return
	}

	writeXML(w, xmlRoot("<paired>1</paired>"+
		fmt.Sprintf("<challengeresponse>%s</challengeresponse>", hex.EncodeToString(response))))
}

func (s *Server) handleServerChallengeResponse(w http.ResponseWriter, query url.Values) {
	uniqueID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}
	challengeResponse, ok := requireHexParam(w, query, "serverchallengeresp")
	if !ok {
		return
	}

	pairingSecret, err := s.pairing.ServerChallengeResponse(uniqueID, challengeResponse)
	if err != nil {
		badRequest(w, fmt.Sprintf("failed to process server challenge response: %v", err))
		return
	}

	writeXML(w, xmlRoot("<paired>1</paired>"+
		fmt.Sprintf("<pairingsecret>%s</pairingsecret>", hex.EncodeToString(pairingSecret))))
}

func (s *Server) handlePairChallenge(w http.ResponseWriter, query url.Values) {
	uniqueID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}

	// All Moonlight clients report the same uniqueid, so a promotion error
	// here (already paired) is not fatal to the handshake.
	if err := s.pairing.PairChallenge(uniqueID); err != nil {
		log.Warn("failed to promote client to paired", "id", uniqueID, "error", err)
	}

	writeXML(w, xmlRoot("<paired>1</paired>"))
}

func (s *Server) handleClientPairingSecret(w http.ResponseWriter, query url.Values) {
	uniqueID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}
	secret, ok := requireHexParam(w, query, "clientpairingsecret")
	if !ok {
		return
	}

	if err := s.pairing.CheckClientPairingSecret(uniqueID, secret); err != nil {
		badRequest(w, fmt.Sprintf("failed to check client pairing secret: %v", err))
		return
	}

	writeXML(w, xmlRoot("<paired>1</paired>"))
}

// handlePin serves the PIN-entry page, and handlePinSubmit registers a PIN
// for a pending client.
func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, `<!DOCTYPE html><html><body>
<form action="/submit-pin" method="get">
<label>Unique ID: <input name="uniqueid"></label>
<label>PIN: <input name="pin"></label>
<button type="submit">Submit</button>
</form>
</body></html>`)
}

func (s *Server) handlePinSubmit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	uniqueID, ok := requireParam(w, query, "uniqueid")
	if !ok {
		return
	}
	pin, ok := requireParam(w, query, "pin")
	if !ok {
		return
	}

	if err := s.pairing.RegisterPIN(uniqueID, pin); err != nil {
		badRequest(w, fmt.Sprintf("failed to register pin: %v", err))
		return
	}

	_, _ = fmt.Fprint(w, "PIN registered.")
}

func (s *Server) handleUnpair(w http.ResponseWriter, r *http.Request) {
	uniqueID, ok := requireParam(w, r.URL.Query(), "uniqueid")
	if !ok {
		return
	}
	if err := s.store.RemoveClient(uniqueID); err != nil {
		badRequest(w, fmt.Sprintf("failed to unpair client: %v", err))
		return
	}
	writeXML(w, xmlRoot("<paired>0</paired>"))
}
