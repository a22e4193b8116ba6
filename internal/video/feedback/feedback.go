// Package feedback turns the control channel's LossStats/FrameStats
// messages into an IDR-request decision. The wire messages carry no
// structured payload in this host's dialect, so the reasoning is
// necessarily coarse: a run of consecutive loss signals uninterrupted by a
// clean FrameStats report is treated the same way a WebRTC receiver's
// Picture Loss Indication is treated by a WebRTC sender: as a request to
// resynchronize on the next keyframe.
package feedback

import (
	"sync"

	"github.com/pion/rtcp"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("video.feedback")

// idrAfterConsecutiveLossSignals is how many LossStats messages in a row,
// with no intervening FrameStats, it takes to request a keyframe.
const idrAfterConsecutiveLossSignals = 3

// Reasoner accumulates loss signals for one video stream and decides when
// to request an IDR frame.
type Reasoner struct {
	mu          sync.Mutex
	consecutive int
}

// New returns an empty Reasoner.
func New() *Reasoner {
	return &Reasoner{}
}

// ObserveLossStats records one LossStats message and reports whether the
// accumulated signal justifies requesting a keyframe now.
func (r *Reasoner) ObserveLossStats() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutive++
	trigger := r.consecutive >= idrAfterConsecutiveLossSignals
	if trigger {
		r.consecutive = 0
	}

	// Shaped like a WebRTC PictureLossIndication purely for the diagnostic
	// value of a familiar wire-equivalent payload size in the log line;
	// nothing is sent, since this host speaks NVSTREAM, not RTCP.
	pli := &rtcp.PictureLossIndication{}
	if buf, err := pli.Marshal(); err == nil {
		log.Debug("loss feedback observed", "consecutive", r.consecutive, "trigger_idr", trigger, "pli_equivalent_bytes", len(buf))
	}

	return trigger
}

// ObserveFrameStats records a clean FrameStats report, resetting the
// consecutive-loss counter.
func (r *Reasoner) ObserveFrameStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutive = 0
}
