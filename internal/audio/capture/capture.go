// Package capture implements blocking audio capture from the monitor
// source of the system's default sink, delivering fixed-size
// 48kHz/2ch/S16LE buffers.
package capture

import (
	"context"
	"fmt"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("audio.capture")

// SamplesPerRead is the fixed sample count delivered to onSamples on every
// blocking read: 480 bytes of S16LE, interleaved stereo.
const SamplesPerRead = 480 / 2 // int16 count, not byte count

// SampleRate and Channels are the fixed capture format the encoder expects.
const (
	SampleRate = 48000
	Channels   = 2
)

// ErrNotSupported is returned when audio capture has no implementation for
// the running platform.
var ErrNotSupported = fmt.Errorf("audio capture not supported on this platform")

// Capturer reads fixed-size interleaved S16LE buffers from the monitor
// source of a sink until Close is called or ctx is cancelled.
type Capturer interface {
	// Run blocks, invoking onSamples once per SamplesPerRead-sample buffer,
	// until ctx is cancelled or a fatal capture error occurs.
	Run(ctx context.Context, onSamples func(samples []int16)) error
	Close() error
}

// NewCapturer opens the monitor source of sink ("" selects the default
// sink's monitor).
func NewCapturer(sink string) (Capturer, error) {
	return newPlatformCapturer(sink)
}
