package rtsp

import (
	"bytes"
	"testing"
)

type fakeConn struct {
	data []byte
	read bool
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if f.read {
		return 0, bytes.ErrTooLarge
	}
	f.read = true
	return copy(p, f.data), nil
}

func TestReadRequestRewritesSetupURI(t *testing.T) {
	raw := "SETUP streamid=video/0/0 RTSP/1.0\r\nCSeq: 2\r\n\r\n"
	req, err := readRequest(&fakeConn{data: []byte(raw)})
	if err != nil {
		t.Fatalf("readRequest: %v", err)
	}
	if req.Method != "SETUP" {
		t.Fatalf("expected method SETUP, got %q", req.Method)
	}
	if req.CSeq != 2 {
		t.Fatalf("expected CSeq 2, got %d", req.CSeq)
	}

	streamID, err := streamIDFromURI(req.URI)
	if err != nil {
		t.Fatalf("streamIDFromURI: %v", err)
	}
	if streamID != "video" {
		t.Fatalf("expected stream id video, got %q", streamID)
	}
}

func TestReadRequestRewritesPlayURI(t *testing.T) {
	raw := "PLAY / RTSP/1.0\r\nCSeq: 5\r\n\r\n"
	req, err := readRequest(&fakeConn{data: []byte(raw)})
	if err != nil {
		t.Fatalf("readRequest: %v", err)
	}
	if req.URI != "rtsp://localhost/" {
		t.Fatalf("expected rewritten PLAY URI, got %q", req.URI)
	}
}

func TestReadRequestParsesBody(t *testing.T) {
	body := "a=x-nv-video[0].clientViewportWd:1920"
	raw := "ANNOUNCE rtsp://localhost/ RTSP/1.0\r\nCSeq: 9\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body
	req, err := readRequest(&fakeConn{data: []byte(raw)})
	if err != nil {
		t.Fatalf("readRequest: %v", err)
	}
	if string(req.Body) != body {
		t.Fatalf("expected body %q, got %q", body, req.Body)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestResponseBytes(t *testing.T) {
	resp := &response{CSeq: 3, StatusCode: 200, StatusText: "OK", Headers: map[string]string{"Public": "OPTIONS"}}
	out := resp.bytes()
	if !bytes.Contains(out, []byte("RTSP/1.0 200 OK\r\n")) {
		t.Fatalf("expected status line in response, got %q", out)
	}
	if !bytes.Contains(out, []byte("CSeq: 3\r\n")) {
		t.Fatalf("expected CSeq header in response, got %q", out)
	}
}
