// Package sdp extracts the x-nv-*/x-ml-* attributes an ANNOUNCE body
// carries into VideoStreamContext/AudioStreamContext: `a=` lines are parsed
// into a flat key/value map, then the handful of attributes the session
// actually needs are pulled out.
package sdp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hgaiser/moonshine/internal/protocol"
)

// attributes is a parsed ANNOUNCE body: every `a=key:value` line, keyed by
// key. Moonlight repeats some keys with differing behavior depending on the
// stream index (e.g. `x-nv-video[0].*`), so the key is taken verbatim,
// brackets included.
type attributes map[string]string

// parse splits an SDP body into its `a=` attribute lines. Non-attribute
// lines (`v=`, `o=`, `s=`, ...) are ignored; ANNOUNCE bodies from Moonlight
// only carry information the session needs inside `a=` lines.
func parse(body string) attributes {
	attrs := make(attributes)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "a=") {
			continue
		}
		kv := strings.SplitN(line[2:], ":", 2)
		if len(kv) != 2 {
			continue
		}
		attrs[kv[0]] = kv[1]
	}
	return attrs
}

func (a attributes) require(key string) (string, error) {
	value, ok := a[key]
	if !ok {
		return "", fmt.Errorf("sdp: missing attribute %q", key)
	}
	return value, nil
}

func (a attributes) requireInt(key string) (int, error) {
	value, err := a.require(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("sdp: attribute %q is not an integer: %v", key, err)
	}
	return n, nil
}

// ParseVideoStreamContext extracts a VideoStreamContext from an ANNOUNCE
// body, failing if any attribute the session needs is absent.
func ParseVideoStreamContext(body string) (protocol.VideoStreamContext, error) {
	attrs := parse(body)

	width, err := attrs.requireInt("x-nv-video[0].clientViewportWd")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}
	height, err := attrs.requireInt("x-nv-video[0].clientViewportHt")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}
	fps, err := attrs.requireInt("x-nv-video[0].maxFPS")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}
	packetSize, err := attrs.requireInt("x-nv-video[0].packetSize")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}
	bitrateKbps, err := attrs.requireInt("x-ml-video.configuredBitrateKbps")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}
	minimumFECPackets, err := attrs.requireInt("x-nv-vqos[0].fec.minRequiredFecPackets")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}
	qosTrafficType, err := attrs.requireInt("x-nv-vqos[0].qosTrafficType")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}
	videoFormat, err := attrs.requireInt("x-nv-vqos[0].bitStreamFormat")
	if err != nil {
		return protocol.VideoStreamContext{}, err
	}

	ctx := protocol.VideoStreamContext{
		Width:                width,
		Height:               height,
		FPS:                  fps,
		PacketSize:           packetSize,
		BitrateBitsPerSecond: bitrateKbps * 1000,
		MinimumFECPackets:    minimumFECPackets,
		VideoFormat:          videoFormat,
		QoS:                  qosTrafficType != 0,
	}

	// Optional attributes; older clients omit them.
	if v, err := strconv.Atoi(attrs["x-nv-vqos[0].chromaSamplingType"]); err == nil {
		ctx.ChromaSampling = v
	}
	if v, err := strconv.Atoi(attrs["x-nv-video[0].dynamicRangeMode"]); err == nil {
		ctx.DynamicRange = v != 0
	}

	return ctx, nil
}

// ParseAudioStreamContext extracts an AudioStreamContext from an ANNOUNCE
// body.
func ParseAudioStreamContext(body string) (protocol.AudioStreamContext, error) {
	attrs := parse(body)

	packetDuration, err := attrs.requireInt("x-nv-aqos.packetDuration")
	if err != nil {
		return protocol.AudioStreamContext{}, err
	}
	qosTrafficType, err := attrs.requireInt("x-nv-aqos.qosTrafficType")
	if err != nil {
		return protocol.AudioStreamContext{}, err
	}

	return protocol.AudioStreamContext{
		PacketDurationMs: packetDuration,
		QoS:              qosTrafficType != 0,
	}, nil
}
