package httpx

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wiretap-dev/httpwire/internal/netx"
)

// Connection is the facade pairing a read half and a write half of a
// bidirectional byte stream into a synchronous exchange. A client uses
// SendRequest/ReceiveResponse; a server uses ReceiveRequest/SendResponse.
// Every operation fails with ErrConnectionClosed once Close has run.
//
// The facade does not implement keep-alive accounting or pooling — those
// belong to the caller — but it does guard against re-entrancy: issuing a
// new request/response on a half of the connection whose previous message
// body is still open fails with ErrMessageInFlight instead of corrupting
// the byte stream.
type Connection struct {
	id  uuid.UUID
	cfg Config
	log *zap.Logger

	src *netx.CRLFFastReader
	w   io.Writer

	rCloser io.Closer
	wCloser io.Closer

	closed    bool
	writeBusy bool
	readBusy  bool
}

// ID returns the UUID stamped on this connection at construction, used to
// correlate log lines for a multiplexed server handling many connections.
func (c *Connection) ID() uuid.UUID { return c.id }

// NewConnection pairs r and w into a Connection. If r and/or w also
// implement io.Closer, Close closes them (deduplicated if r and w are the
// same underlying value, e.g. a net.Conn). A nil logger is replaced with
// zap.NewNop(), so logging is always safe to call and silent by default.
func NewConnection(r io.Reader, w io.Writer, cfg Config, log *zap.Logger) *Connection {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.New()
	c := &Connection{
		id:  id,
		cfg: cfg,
		log: log,
		src: newLineReader(r),
		w:   w,
	}
	if rc, ok := r.(io.Closer); ok {
		c.rCloser = rc
	}
	if wc, ok := w.(io.Closer); ok {
		c.wCloser = wc
	}
	c.log.Debug("connection opened", zap.String("connection_id", id.String()))
	return c
}

// NewConnectionFromStream is a convenience constructor for a single
// full-duplex stream (e.g. a net.Conn or a TLS-wrapped socket) that serves
// as both halves.
func NewConnectionFromStream(rw io.ReadWriter, cfg Config, log *zap.Logger) *Connection {
	return NewConnection(rw, rw, cfg, log)
}

// SendRequest begins a client-side request exchange: method/target/version
// are rendered, together with the header block, on the first Write. Fails with
// ErrMessageInFlight if a previously returned RequestWriter on this
// connection has not yet been Closed.
func (c *Connection) SendRequest(ctx context.Context, method, target, version string) (*RequestWriter, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.writeBusy {
		return nil, fmt.Errorf("%w: previous request not closed", ErrMessageInFlight)
	}
	c.writeBusy = true
	rw := NewRequestWriter(ctx, c.w, c.cfg, method, target, version)
	rw.messageWriter.setRelease(func() { c.writeBusy = false })
	c.log.Debug("send_request",
		zap.String("connection_id", c.id.String()),
		zap.String("method", method),
		zap.String("target", target))
	return rw, nil
}

// ReceiveResponse reads one client-side response. Fails with
// ErrMessageInFlight if the previous response's body on this connection has
// not yet been Closed (it would otherwise desynchronize the stream for the
// next message).
func (c *Connection) ReceiveResponse(ctx context.Context) (*ResponseReader, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.readBusy {
		return nil, fmt.Errorf("%w: previous response not closed", ErrMessageInFlight)
	}
	resp, err := ReadResponse(ctx, c.src, c.cfg)
	if err != nil {
		return nil, err
	}
	c.readBusy = true
	resp.Body = c.trackRead(resp.Body)
	c.log.Debug("receive_response",
		zap.String("connection_id", c.id.String()),
		zap.Int("status", resp.StartLine.StatusCode))
	return resp, nil
}

// ReceiveRequest reads one server-side request. Fails with
// ErrMessageInFlight if the previous request's body on this connection has
// not yet been Closed.
func (c *Connection) ReceiveRequest(ctx context.Context) (*RequestReader, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.readBusy {
		return nil, fmt.Errorf("%w: previous request not closed", ErrMessageInFlight)
	}
	req, err := ReadRequest(ctx, c.src, c.cfg)
	if err != nil {
		return nil, err
	}
	c.readBusy = true
	req.Body = c.trackRead(req.Body)
	c.log.Debug("receive_request",
		zap.String("connection_id", c.id.String()),
		zap.String("method", req.StartLine.Method),
		zap.String("target", req.StartLine.RequestTarget))
	return req, nil
}

// SendResponse begins a server-side response exchange. Fails with
// ErrMessageInFlight if a previously returned ResponseWriter on this
// connection has not yet been Closed.
func (c *Connection) SendResponse(ctx context.Context, version string, code int, reason string) (*ResponseWriter, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.writeBusy {
		return nil, fmt.Errorf("%w: previous response not closed", ErrMessageInFlight)
	}
	c.writeBusy = true
	rw := NewResponseWriter(ctx, c.w, c.cfg, version, code, reason)
	rw.messageWriter.setRelease(func() { c.writeBusy = false })
	c.log.Debug("send_response",
		zap.String("connection_id", c.id.String()),
		zap.Int("status", code))
	return rw, nil
}

// trackRead wraps body so its Close releases the read-in-flight latch
// exactly once, independent of which BodyReader variant is underneath.
func (c *Connection) trackRead(body BodyReader) BodyReader {
	return &connBodyReader{BodyReader: body, release: func() { c.readBusy = false }}
}

type connBodyReader struct {
	BodyReader
	release func()
	done    bool
}

func (r *connBodyReader) Close() error {
	err := r.BodyReader.Close()
	if !r.done {
		r.done = true
		r.release()
	}
	return err
}

// Close closes both halves of the connection (deduplicated if they are the
// same underlying value) and sets the closed latch; every operation after
// Close fails with ErrConnectionClosed. Close is idempotent.
func (c *Connection) Close() error {
	if c.closed {
		c.log.Debug("close on already-closed connection", zap.String("connection_id", c.id.String()))
		return nil
	}
	c.closed = true
	c.log.Debug("connection closed", zap.String("connection_id", c.id.String()))

	var rErr, wErr error
	if c.rCloser != nil {
		rErr = c.rCloser.Close()
	}
	if c.wCloser != nil && c.wCloser != c.rCloser {
		wErr = c.wCloser.Close()
	}
	if rErr != nil {
		return rErr
	}
	return wErr
}
