//go:build linux

package capture

/*
#cgo CFLAGS: -I/usr/include
#cgo LDFLAGS: -lpulse -lpulse-simple

#include <pulse/simple.h>
#include <pulse/error.h>
#include <stdlib.h>

static pa_simple *open_monitor(const char *sinkMonitorName, int *err) {
	pa_sample_spec spec;
	spec.format = PA_SAMPLE_S16LE;
	spec.rate = 48000;
	spec.channels = 2;

	return pa_simple_new(
		NULL,                 // default server
		"moonshine",           // application name
		PA_STREAM_RECORD,
		sinkMonitorName,       // device; NULL selects default sink's monitor
		"session audio",
		&spec,
		NULL, NULL, err);
}

static int read_samples(pa_simple *s, void *buf, size_t bytes, int *err) {
	return pa_simple_read(s, buf, bytes, err);
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

type pulseCapturer struct {
	mu     sync.Mutex
	handle *C.pa_simple
}

func newPlatformCapturer(sink string) (Capturer, error) {
	var cSink *C.char
	if sink != "" {
		cSink = C.CString(sink)
		defer C.free(unsafe.Pointer(cSink))
	}

	var errCode C.int
	handle := C.open_monitor(cSink, &errCode)
	if handle == nil {
		return nil, fmt.Errorf("audio capture: pa_simple_new failed: %s", C.GoString(C.pa_strerror(errCode)))
	}

	return &pulseCapturer{handle: handle}, nil
}

func (c *pulseCapturer) Run(ctx context.Context, onSamples func(samples []int16)) error {
	buf := make([]int16, SamplesPerRead)
	bufBytes := C.size_t(len(buf) * 2)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.mu.Lock()
		handle := c.handle
		c.mu.Unlock()
		if handle == nil {
			return nil
		}

		var errCode C.int
		if C.read_samples(handle, unsafe.Pointer(&buf[0]), bufBytes, &errCode) < 0 {
			return fmt.Errorf("audio capture: pa_simple_read failed: %s", C.GoString(C.pa_strerror(errCode)))
		}

		onSamples(buf)
	}
}

func (c *pulseCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		C.pa_simple_free(c.handle)
		c.handle = nil
	}
	return nil
}

var _ Capturer = (*pulseCapturer)(nil)
