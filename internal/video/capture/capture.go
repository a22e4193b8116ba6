// Package capture implements the single-producer screen capture thread: a
// platform-dispatched Capturer feeds raw BGRx frames into a mutex-guarded
// one-slot buffer, with a monotonic counter standing in for the condition
// variable's coalesced notifications.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("video.capture")

// Capturer captures one BGRx frame of the desktop per call. The contract is
// CPU BGRx frames; there is no GPU zero-copy path here.
type Capturer interface {
	// Capture returns one frame's raw BGRx pixels, tightly packed
	// (stride == width*4), plus its dimensions.
	Capture() (frame []byte, width, height int, err error)

	// Close releases the capture handle (display connection, shm segment).
	Close() error
}

// Config holds what this host's single-display capture actually uses.
type Config struct {
	DisplayIndex int
}

// ErrNotSupported is returned when screen capture is not implemented for the
// running platform.
var ErrNotSupported = fmt.Errorf("video capture not supported on this platform")

// NewCapturer creates a platform-specific Capturer.
func NewCapturer(cfg Config) (Capturer, error) {
	return newPlatformCapturer(cfg)
}

// FrameSlot is the mutex-guarded one-slot swap buffer shared between the
// capture thread and the encoder: the lock is held only long
// enough to swap the pointer and bump the counter. Waiters do not rely on
// the notification itself being delivered exactly once (it may be
// coalesced), only on the counter having advanced past what they last saw.
type FrameSlot struct {
	mu     sync.Mutex
	notify chan struct{}

	frame  []byte
	width  int
	height int
	// counter is CapturedFrameNumber: incremented on every Swap, starting
	// at 1 for the first captured frame.
	counter uint64
}

// NewFrameSlot returns an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{notify: make(chan struct{})}
}

// Swap installs a newly captured frame, incrementing the counter and waking
// any waiters. Ownership of frame passes to the slot; callers must not
// reuse the backing array afterwards.
func (s *FrameSlot) Swap(frame []byte, width, height int) uint64 {
	s.mu.Lock()
	s.frame = frame
	s.width = width
	s.height = height
	s.counter++
	counter := s.counter
	old := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()

	close(old)
	return counter
}

func (s *FrameSlot) snapshot() ([]byte, int, int, uint64, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.width, s.height, s.counter, s.notify
}

// Counter returns the current CapturedFrameNumber without waiting.
func (s *FrameSlot) Counter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Wait blocks until the slot's counter advances past last, ctx is
// cancelled, or timeout elapses, so the encoder can periodically re-check
// shutdown. ok is false on timeout or cancellation; the caller should re-read
// Counter() and retry rather than treat it as fatal.
func (s *FrameSlot) Wait(ctx context.Context, last uint64, timeout time.Duration) (frame []byte, width, height int, counter uint64, ok bool) {
	frame, width, height, counter, ch := s.snapshot()
	if counter != last {
		return frame, width, height, counter, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		frame, width, height, counter, _ = s.snapshot()
		return frame, width, height, counter, true
	case <-timer.C:
		return nil, 0, 0, last, false
	case <-ctx.Done():
		return nil, 0, 0, last, false
	}
}

// Run drives the capture thread: ticks at fps, captures one frame per tick
// and swaps it into slot, until ctx is cancelled. Dimension mismatches
// against want are logged, not treated as fatal; scaling is the next
// stage's responsibility.
func Run(ctx context.Context, capturer Capturer, slot *FrameSlot, fps int, wantWidth, wantHeight int) error {
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	defer capturer.Close()

	for {
		select {
		case <-ctx.Done():
			log.Info("capture thread stopping")
			return nil
		case <-ticker.C:
			frame, width, height, err := capturer.Capture()
			if err != nil {
				log.Warn("capture failed, skipping tick", "error", err)
				continue
			}
			if width != wantWidth || height != wantHeight {
				log.Debug("captured frame dimensions differ from stream", "got_width", width, "got_height", height, "want_width", wantWidth, "want_height", wantHeight)
			}
			slot.Swap(frame, width, height)
		}
	}
}
