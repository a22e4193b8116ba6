package webserver

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/hgaiser/moonshine/internal/netdiag"
)

// hostMAC is resolved once; interfaces do not change under a running host
// often enough to justify re-enumerating per poll.
var hostMAC = sync.OnceValue(func() string {
	iface, err := netdiag.PrimaryInterface()
	if err != nil {
		return "00:00:00:00:00:00"
	}
	return iface.MAC.String()
})

// handleServerInfo answers /serverinfo, the endpoint Moonlight polls both
// before and after pairing to discover host capabilities and current
// session state. The field set is what Moonlight clients parse (GfeVersion,
// PairStatus, currentgame, ServerCodecModeSupport); missing fields make
// clients mark the host unsupported rather than degrade.
func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	clientID := query.Get("uniqueid")

	paired := 0
	if r.TLS != nil && clientID != "" && s.store.HasClient(clientID) {
		paired = 1
	}

	currentGame := 0
	if s.session != nil {
		if appID, ok := s.session.CurrentAppID(); ok {
			currentGame = int(appID)
		}
	}

	cpuLoad := 0.0
	if s.stats != nil {
		if v, err := s.stats.Snapshot(); err == nil {
			cpuLoad = v
		}
	}

	state := "SUNSHINE_SERVER_FREE"
	if currentGame != 0 {
		state = "SUNSHINE_SERVER_BUSY"
	}

	body := fmt.Sprintf(`<hostname>%s</hostname>
<appversion>7.1.431.0</appversion>
<GfeVersion>3.23.0.74</GfeVersion>
<uniqueid>%s</uniqueid>
<HttpsPort>%d</HttpsPort>
<ExternalPort>%d</ExternalPort>
<mac>%s</mac>
<LocalIP>%s</LocalIP>
<SupportedDisplayModes></SupportedDisplayModes>
<PairStatus>%d</PairStatus>
<currentgame>%d</currentgame>
<state>%s</state>
<ServerCodecModeSupport>259</ServerCodecModeSupport>
<cpuLoadPercent>%.2f</cpuLoadPercent>`,
		s.cfg.Name, s.store.UniqueID(), s.cfg.Webserver.PortHTTPS, s.cfg.Stream.Port,
		hostMAC(), s.cfg.Address, paired, currentGame, state, cpuLoad)

	writeXML(w, xmlRoot(body))
}
