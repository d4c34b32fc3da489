package httpx

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wiretap-dev/httpwire/internal/netx"
)

// StartLine is the first line of an HTTP message: a request-line (method,
// request-target, version) or a status-line (version, code, reason). Both
// forms are three space-separated tokens, the last of which (reason-phrase)
// may itself contain spaces.
type StartLine struct {
	// Request-line fields.
	Method        string
	RequestTarget string

	// Status-line fields.
	StatusCode int
	Reason     string

	// Shared.
	Version string
}

func (s StartLine) requestLineString() string {
	return s.Method + " " + s.RequestTarget + " " + s.Version
}

func (s StartLine) statusLineString() string {
	return s.Version + " " + strconv.Itoa(s.StatusCode) + " " + s.Reason
}

// Config bounds how much a message reader will consume before giving up,
// and how many redirect hops the client package will follow. Zero values
// fall back to the defaults DefaultConfig documents.
type Config struct {
	MaxLineSize   int
	MaxFieldCount int
	MaxRedirects  int
}

// DefaultConfig returns the toolkit's documented sizing limits: a 1024-byte
// line bound, a 100-field cap on headers and trailers, and a 10-hop budget
// for the redirect follower.
func DefaultConfig() Config {
	return Config{MaxLineSize: 1024, MaxFieldCount: 100, MaxRedirects: 10}
}

func (c Config) lineSize() int {
	if c.MaxLineSize <= 0 {
		return 1024
	}
	return c.MaxLineSize
}

func (c Config) fieldCount() int {
	if c.MaxFieldCount <= 0 {
		return 100
	}
	return c.MaxFieldCount
}

// writerState is the latch a message writer transitions through exactly
// once: mutating the header list is only legal while headersUnwritten.
type writerState int

const (
	headersUnwritten writerState = iota
	headersWritten
	writerClosed
)

// messageWriter is the shared core behind RequestWriter and ResponseWriter.
// It owns the transport writer, the header field list, and the
// headers-unwritten -> headers-written -> closed latch; the two public
// wrapper types differ only in how they render their start-line.
type messageWriter struct {
	ctx      context.Context
	w        io.Writer
	header   *Header
	state    writerState
	body     BodyWriter
	chunked  bool
	sizedLen int64
	hasSized bool
	cfg      Config

	renderStart func() string

	// release, when set by the connection facade, is invoked exactly
	// once as Close transitions the writer to writerClosed, regardless of
	// which exit path got there. It lets the facade track whether a
	// message is still in flight without the codec itself knowing about
	// connections.
	release func()
}

func newMessageWriter(ctx context.Context, w io.Writer, cfg Config, renderStart func() string) *messageWriter {
	return &messageWriter{
		ctx:         ctx,
		w:           w,
		header:      NewHeader(),
		cfg:         cfg,
		renderStart: renderStart,
	}
}

// Headers returns the mutable header list. Valid only while the writer is
// still headers-unwritten; after the first Write it is repurposed as the
// trailer list for a chunked body writer.
func (m *messageWriter) Headers() *Header { return m.header }

// Sized declares Content-Length framing and clears any Transfer-Encoding.
func (m *messageWriter) Sized(n int64) {
	m.hasSized = true
	m.sizedLen = n
	m.chunked = false
	m.header.Del("Transfer-Encoding")
	m.header.Del("Content-Length")
}

// Chunked declares or clears chunked Transfer-Encoding framing. Turning it
// on clears any Content-Length, per the framing-precedence property: they
// never coexist on egress.
func (m *messageWriter) Chunked(on bool) {
	m.chunked = on
	if on {
		m.hasSized = false
		m.header.Del("Content-Length")
	} else {
		m.header.Del("Transfer-Encoding")
	}
}

// Write emits the start-line and header block on its first call, then
// constructs the body writer matching the declared framing and delegates to
// it for this call and every subsequent one.
func (m *messageWriter) Write(data []byte) (int, error) {
	if m.state == writerClosed {
		return 0, ErrConnectionClosed
	}
	if m.state == headersUnwritten {
		if err := m.writeHeadBlock(); err != nil {
			return 0, err
		}
	}
	return m.body.Write(data)
}

func (m *messageWriter) writeHeadBlock() error {
	select {
	case <-m.ctx.Done():
		return m.ctx.Err()
	default:
	}

	if m.chunked {
		if err := m.header.Set("Transfer-Encoding", "chunked"); err != nil {
			return err
		}
	} else if m.hasSized {
		if err := m.header.Set("Content-Length", strconv.FormatInt(m.sizedLen, 10)); err != nil {
			return err
		}
	}

	if err := writeLine(m.w, m.renderStart()); err != nil {
		return err
	}
	if err := m.header.Write(m.w); err != nil {
		return err
	}
	if err := writeLine(m.w, ""); err != nil {
		return err
	}

	trailer := m.header
	trailer.Reset()

	switch {
	case m.chunked:
		m.body = NewChunkedWriter(m.ctx, m.w, 4096, trailer)
	case m.hasSized:
		m.body = NewSizedWriter(m.w, m.sizedLen)
	default:
		m.body = NewNoBodyWriter(m.w)
	}
	m.state = headersWritten
	return nil
}

// Close delegates to the body writer, which is responsible for emitting any
// chunked terminator and trailer fields. A writer whose headers were never
// written closes as a no-op — nothing was ever sent.
func (m *messageWriter) Close() error {
	if m.state == writerClosed {
		return nil
	}
	defer func() {
		if m.release != nil {
			m.release()
		}
	}()
	if m.state == headersUnwritten {
		m.state = writerClosed
		return nil
	}
	m.state = writerClosed
	return m.body.Close()
}

// setRelease installs the connection facade's in-flight-release hook.
// Called only from within this package.
func (m *messageWriter) setRelease(f func()) {
	m.release = f
}

func writeLine(w io.Writer, s string) error {
	n, err := io.WriteString(w, s+"\r\n")
	if err != nil {
		return err
	}
	if n != len(s)+2 {
		return ErrShortWrite
	}
	return nil
}

// RequestWriter renders a request-line ("METHOD target VERSION") followed
// by headers and a body.
type RequestWriter struct{ *messageWriter }

// NewRequestWriter constructs a RequestWriter for method/target/version over w.
func NewRequestWriter(ctx context.Context, w io.Writer, cfg Config, method, target, version string) *RequestWriter {
	sl := StartLine{Method: method, RequestTarget: target, Version: version}
	return &RequestWriter{newMessageWriter(ctx, w, cfg, sl.requestLineString)}
}

// ResponseWriter renders a status-line ("VERSION code reason") followed by
// headers and a body.
type ResponseWriter struct{ *messageWriter }

// NewResponseWriter constructs a ResponseWriter for version/code/reason over w.
func NewResponseWriter(ctx context.Context, w io.Writer, cfg Config, version string, code int, reason string) *ResponseWriter {
	sl := StartLine{Version: version, StatusCode: code, Reason: reason}
	return &ResponseWriter{newMessageWriter(ctx, w, cfg, sl.statusLineString)}
}

// -----------------------------------------------------------------------------
// Message reader
// -----------------------------------------------------------------------------

// parseHeaderBlock reads header lines from src until an empty line,
// validating and appending each to h. Shared by request and response
// parsing; it handles only the leading header block. Trailers are not
// parsed here: the chunked body reader parses them itself on Close.
func parseHeaderBlock(src *netx.CRLFFastReader, h *Header, cfg Config) (contentLength int64, hasLength bool, chunked bool, err error) {
	count := 0
	for {
		line, lerr := src.ReadLine(cfg.lineSize())
		if lerr != nil {
			return 0, false, false, fmt.Errorf("%w: %v", ErrUnterminatedLine, lerr)
		}
		if len(line) == 0 {
			return contentLength, hasLength, chunked, nil
		}
		count++
		if count > cfg.fieldCount() {
			return 0, false, false, ErrTooManyFields
		}

		s := string(line)
		i := strings.IndexByte(s, ':')
		if i <= 0 {
			return 0, false, false, ErrMalformedHeader
		}
		name := strings.TrimRight(s[:i], " \t")
		value := strings.TrimLeft(s[i+1:], " \t")
		if err := h.Append(name, value); err != nil {
			return 0, false, false, err
		}

		switch {
		case strings.EqualFold(name, "Content-Length"):
			n, perr := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if perr != nil || n < 0 {
				return 0, false, false, fmt.Errorf("%w: %q", ErrInvalidLength, value)
			}
			contentLength = n
			hasLength = true
		case strings.EqualFold(name, "Transfer-Encoding") && strings.EqualFold(strings.TrimSpace(value), "chunked"):
			chunked = true
		}
	}
}

func newBodyReader(ctx context.Context, src *netx.CRLFFastReader, cfg Config, trail *Header, contentLength int64, hasLength, chunked bool) BodyReader {
	switch {
	case chunked:
		return NewChunkedReader(ctx, src, trail, cfg.lineSize(), cfg.fieldCount())
	case hasLength:
		return NewSizedReader(ctx, src, contentLength)
	default:
		return NewNoBodyReader()
	}
}

// RequestReader parses a request-line followed by headers and a body.
type RequestReader struct {
	StartLine StartLine
	Header    *Header
	Trailer   *Header
	Body      BodyReader
}

// ReadRequest parses one HTTP request from src (method, request-target,
// version, headers, framing, body) per RFC 7230 §3.
func ReadRequest(ctx context.Context, src *netx.CRLFFastReader, cfg Config) (*RequestReader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	line, err := src.ReadLine(cfg.lineSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnterminatedLine, err)
	}
	tokens := strings.Fields(string(line))
	if len(tokens) != 3 {
		return nil, fmt.Errorf("%w: request-line %q", ErrMalformedStart, line)
	}

	header := NewHeader()
	cl, hasCL, chunked, err := parseHeaderBlock(src, header, cfg)
	if err != nil {
		return nil, err
	}
	trailer := NewHeader()

	return &RequestReader{
		StartLine: StartLine{Method: tokens[0], RequestTarget: tokens[1], Version: tokens[2]},
		Header:    header,
		Trailer:   trailer,
		Body:      newBodyReader(ctx, src, cfg, trailer, cl, hasCL, chunked),
	}, nil
}

// ResponseReader parses a status-line followed by headers and a body.
type ResponseReader struct {
	StartLine StartLine
	Header    *Header
	Trailer   *Header
	Body      BodyReader
}

// ReadResponse parses one HTTP response from src (version, status code,
// reason phrase, headers, framing, body).
func ReadResponse(ctx context.Context, src *netx.CRLFFastReader, cfg Config) (*ResponseReader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	line, err := src.ReadLine(cfg.lineSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnterminatedLine, err)
	}
	s := string(line)
	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: status-line %q", ErrMalformedStart, line)
	}
	code, cerr := strconv.Atoi(parts[1])
	if cerr != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedStart, parts[1])
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	header := NewHeader()
	cl, hasCL, chunked, err := parseHeaderBlock(src, header, cfg)
	if err != nil {
		return nil, err
	}
	trailer := NewHeader()

	return &ResponseReader{
		StartLine: StartLine{Version: parts[0], StatusCode: code, Reason: reason},
		Header:    header,
		Trailer:   trailer,
		Body:      newBodyReader(ctx, src, cfg, trailer, cl, hasCL, chunked),
	}, nil
}
