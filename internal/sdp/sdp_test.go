package sdp

import "testing"

const announceBody = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"a=x-nv-video[0].clientViewportWd:1920\r\n" +
	"a=x-nv-video[0].clientViewportHt:1080\r\n" +
	"a=x-nv-video[0].maxFPS:60\r\n" +
	"a=x-nv-video[0].packetSize:1392\r\n" +
	"a=x-ml-video.configuredBitrateKbps:20000\r\n" +
	"a=x-nv-vqos[0].fec.minRequiredFecPackets:5\r\n" +
	"a=x-nv-vqos[0].qosTrafficType:5\r\n" +
	"a=x-nv-vqos[0].bitStreamFormat:0\r\n" +
	"a=x-nv-aqos.packetDuration:5\r\n" +
	"a=x-nv-aqos.qosTrafficType:5\r\n"

func TestParseVideoStreamContext(t *testing.T) {
	ctx, err := ParseVideoStreamContext(announceBody)
	if err != nil {
		t.Fatalf("ParseVideoStreamContext: %v", err)
	}
	if ctx.Width != 1920 || ctx.Height != 1080 || ctx.FPS != 60 || ctx.PacketSize != 1392 {
		t.Fatalf("unexpected dimensions/fps/packet size: %+v", ctx)
	}
	if ctx.BitrateBitsPerSecond != 20_000_000 {
		t.Fatalf("expected bitrate scaled by 1000, got %d", ctx.BitrateBitsPerSecond)
	}
	if ctx.MinimumFECPackets != 5 {
		t.Fatalf("expected minimum fec packets 5, got %d", ctx.MinimumFECPackets)
	}
	if !ctx.QoS {
		t.Fatalf("expected qos true")
	}
	if ctx.VideoFormat != 0 {
		t.Fatalf("expected video format 0, got %d", ctx.VideoFormat)
	}
}

func TestParseAudioStreamContext(t *testing.T) {
	ctx, err := ParseAudioStreamContext(announceBody)
	if err != nil {
		t.Fatalf("ParseAudioStreamContext: %v", err)
	}
	if ctx.PacketDurationMs != 5 {
		t.Fatalf("expected packet duration 5, got %d", ctx.PacketDurationMs)
	}
	if !ctx.QoS {
		t.Fatalf("expected qos true")
	}
}

func TestParseVideoStreamContextMissingAttribute(t *testing.T) {
	if _, err := ParseVideoStreamContext("v=0\r\n"); err == nil {
		t.Fatalf("expected error for missing attributes")
	}
}
