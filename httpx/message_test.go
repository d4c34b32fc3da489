package httpx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/wiretap-dev/httpwire/internal/netx"
)

func TestRequestWriterSizedExchange(t *testing.T) {
	// POST /hello-world with Host + Content-Length and a 445-byte payload.
	// Encode then decode must agree byte-for-byte.
	payload := bytes.Repeat([]byte("Lorem ipsum "), 38)[:445]

	var buf bytes.Buffer
	w := NewRequestWriter(context.Background(), &buf, DefaultConfig(), "POST", "/hello-world", "HTTP/1.1")
	must(t, w.Headers().Append("Host", "test.com"))
	w.Sized(int64(len(payload)))
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	src := netx.NewCRLFFastReader(bytes.NewReader(buf.Bytes()))
	req, err := ReadRequest(context.Background(), src, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if req.StartLine.Method != "POST" || req.StartLine.RequestTarget != "/hello-world" {
		t.Fatalf("got %+v", req.StartLine)
	}
	if got := req.Header.Get("Host"); got != "test.com" {
		t.Fatalf("Host = %q", got)
	}
	body, err := req.Body.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("body mismatch: got %d bytes, want %d", len(body), len(payload))
	}
	must(t, req.Body.Close())
}

func TestRequestWriterChunkedWithTrailer(t *testing.T) {
	var buf bytes.Buffer
	w := NewRequestWriter(context.Background(), &buf, DefaultConfig(), "GET", "/hello-world", "HTTP/1.1")
	must(t, w.Headers().Append("Host", "test.com"))
	w.Chunked(true)
	if _, err := w.Write([]byte("Lorem ipsum dolor sit amet")); err != nil {
		t.Fatal(err)
	}
	must(t, w.Headers().Append("Test", "123"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("missing Transfer-Encoding header: %q", buf.String())
	}

	src := netx.NewCRLFFastReader(bytes.NewReader(buf.Bytes()))
	req, err := ReadRequest(context.Background(), src, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	body, err := req.Body.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "Lorem ipsum dolor sit amet" {
		t.Fatalf("body = %q", body)
	}
	must(t, req.Body.Close())
	if v, _ := req.Trailer.First("Test"); v != "123" {
		t.Fatalf("trailer not round-tripped, got %#v", req.Trailer.Fields())
	}
}

func TestMessageWriterFramingPrecedence(t *testing.T) {
	// If a caller sets Sized then Chunked, chunked wins and Content-Length
	// is removed before emission.
	var buf bytes.Buffer
	w := NewRequestWriter(context.Background(), &buf, DefaultConfig(), "PUT", "/x", "HTTP/1.1")
	w.Sized(10)
	w.Chunked(true)
	if _, err := w.Write([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	head := buf.String()
	if strings.Contains(head, "Content-Length") {
		t.Fatalf("Content-Length leaked into chunked request: %q", head)
	}
	if !strings.Contains(head, "Transfer-Encoding: chunked") {
		t.Fatalf("missing chunked framing: %q", head)
	}
}

func TestMessageWriterClosedAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := NewRequestWriter(context.Background(), &buf, DefaultConfig(), "GET", "/", "HTTP/1.1")
	w.Chunked(true)
	if _, err := w.Write(nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("late")); err != ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestResponseWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewResponseWriter(context.Background(), &buf, DefaultConfig(), "HTTP/1.1", 404, "Not Found")
	must(t, w.Headers().Append("Content-Type", "text/plain"))
	w.Sized(5)
	if _, err := w.Write([]byte("nope!")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	src := netx.NewCRLFFastReader(bytes.NewReader(buf.Bytes()))
	resp, err := ReadResponse(context.Background(), src, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if resp.StartLine.StatusCode != 404 || resp.StartLine.Reason != "Not Found" {
		t.Fatalf("got %+v", resp.StartLine)
	}
	body, err := resp.Body.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "nope!" {
		t.Fatalf("body = %q", body)
	}
}

func TestReadRequestRejectsMalformedStartLine(t *testing.T) {
	src := netx.NewCRLFFastReader(bytes.NewReader([]byte("GET /only-two\r\n\r\n")))
	_, err := ReadRequest(context.Background(), src, DefaultConfig())
	if err == nil {
		t.Fatal("expected error for malformed request-line")
	}
}

func TestReadHeaderBlockEnforcesFieldCap(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n"
	src := netx.NewCRLFFastReader(bytes.NewReader([]byte(raw)))
	cfg := Config{MaxLineSize: 1024, MaxFieldCount: 2}
	_, err := ReadRequest(context.Background(), src, cfg)
	if err != ErrTooManyFields {
		t.Fatalf("expected ErrTooManyFields, got %v", err)
	}
}
