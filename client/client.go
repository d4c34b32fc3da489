// Package client implements a redirect-following request dispatcher on top
// of package httpx: it sends one request over a connection supplied by a
// Dialer and, for redirect statuses, resolves the next target via
// httpx.TransformReference and reissues the request. It owns no
// wire-format logic of its own; every byte on the wire is framed and
// parsed by package httpx.
package client

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/wiretap-dev/httpwire/httpx"
)

// Dialer opens a fresh bidirectional stream to the scheme/authority a
// request (or a redirect hop) targets. Pooling is the dialer's business:
// Do never caches or reuses a connection across hops or across calls.
type Dialer interface {
	Dial(ctx context.Context, target httpx.Reference) (io.ReadWriteCloser, error)
}

// Request is one HTTP request to dispatch. URL must be absolute (it is
// parsed with httpx.ParseReference); Header holds zero or more values per
// case-insensitive name, mirroring httpx.Header's duplicate-preserving
// shape without requiring callers to build one. Body is sent whole, framed
// with Content-Length; a body is never streamed across a redirect hop,
// since it must be replayable to every hop.
type Request struct {
	Method string
	URL    string
	Header map[string][]string
	Body   []byte

	// Follow enables redirect following for 301/302/303/307/308 responses.
	// When false, Do returns the first response regardless of status.
	Follow bool

	// MaxRedirects overrides Config.MaxRedirects for this request when > 0.
	MaxRedirects int
}

// Response is the terminal response of a Do call: either the first
// response (Follow false, or a non-redirect status) or the response at the
// end of the redirect chain. URL records the address the response actually
// came from, which may differ from Request.URL after redirects.
type Response struct {
	StatusCode int
	Reason     string
	Version    string
	Header     *httpx.Header
	Body       []byte
	URL        string
}

var redirectStatuses = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

// Do dispatches req over a connection from dialer, following redirects: a
// 303 response always downgrades the method to GET and drops the body;
// every other redirect status preserves both. The next target is computed with
// httpx.TransformReference against the URL just used and the response's
// Location header; a redirect response with no Location fails with
// httpx.ErrMissingLocation, and exceeding the hop budget fails with
// httpx.ErrRedirectLoop. Every hop logs at Info (log defaults to a no-op
// logger when nil) so a caller following many redirects can trace the
// chain without instrumenting Do itself.
func Do(ctx context.Context, dialer Dialer, req *Request, cfg httpx.Config, log *zap.Logger) (*Response, error) {
	if log == nil {
		log = zap.NewNop()
	}

	maxRedirects := cfg.MaxRedirects
	if req.MaxRedirects > 0 {
		maxRedirects = req.MaxRedirects
	}
	if maxRedirects <= 0 {
		maxRedirects = httpx.DefaultConfig().MaxRedirects
	}

	currentURL := req.URL
	method := req.Method
	if method == "" {
		method = "GET"
	}
	body := req.Body
	header := cloneHeader(req.Header)

	for hop := 0; ; hop++ {
		if hop > maxRedirects {
			return nil, httpx.ErrRedirectLoop
		}

		resp, nextURL, nextMethod, nextBody, redirected, err := doOnce(ctx, dialer, currentURL, method, header, body, cfg, log, req.Follow)
		if err != nil {
			return nil, err
		}
		if !redirected {
			resp.URL = currentURL
			return resp, nil
		}

		log.Info("following redirect",
			zap.String("from", currentURL),
			zap.Int("status", resp.StatusCode),
			zap.String("to", nextURL),
			zap.Int("hop", hop+1))

		currentURL, method, body = nextURL, nextMethod, nextBody
	}
}

// doOnce dials, sends one request, and reads its response. redirected
// reports whether the caller should follow another hop; when true, nextURL/
// nextMethod/nextBody are the inputs for it.
func doOnce(ctx context.Context, dialer Dialer, rawURL, method string, header map[string][]string, body []byte, cfg httpx.Config, log *zap.Logger, follow bool) (resp *Response, nextURL, nextMethod string, nextBody []byte, redirected bool, err error) {
	target := httpx.ParseReference(rawURL)
	if target.Scheme == "" {
		target.Scheme = "https"
	}

	stream, err := dialer.Dial(ctx, target)
	if err != nil {
		return nil, "", "", nil, false, &DialError{Target: target, Err: err}
	}
	conn := httpx.NewConnectionFromStream(stream, cfg, log)
	defer conn.Close()

	requestTarget := target.Path
	if requestTarget == "" {
		requestTarget = "/"
	}
	if target.HasQuery {
		requestTarget += "?" + target.Query
	}

	rw, err := conn.SendRequest(ctx, method, requestTarget, "HTTP/1.1")
	if err != nil {
		return nil, "", "", nil, false, err
	}
	if _, hasHost := firstHeader(header, "Host"); !hasHost {
		if err := rw.Headers().Append("Host", target.Authority); err != nil {
			return nil, "", "", nil, false, err
		}
	}
	for name, values := range header {
		for _, v := range values {
			if err := rw.Headers().Append(name, v); err != nil {
				return nil, "", "", nil, false, err
			}
		}
	}
	rw.Sized(int64(len(body)))
	// Write is called even for an empty body: the message writer only
	// flushes headers on the first Write, so a header-only message still
	// needs one call (possibly with no data) to reach the wire.
	if _, err := rw.Write(body); err != nil {
		return nil, "", "", nil, false, err
	}
	if err := rw.Close(); err != nil {
		return nil, "", "", nil, false, err
	}

	respReader, err := conn.ReceiveResponse(ctx)
	if err != nil {
		return nil, "", "", nil, false, err
	}
	respBody, err := respReader.Body.ReadAll()
	if err != nil {
		return nil, "", "", nil, false, err
	}
	if err := respReader.Body.Close(); err != nil {
		return nil, "", "", nil, false, err
	}

	resp = &Response{
		StatusCode: respReader.StartLine.StatusCode,
		Reason:     respReader.StartLine.Reason,
		Version:    respReader.StartLine.Version,
		Header:     respReader.Header,
		Body:       respBody,
	}

	if !follow || !redirectStatuses[resp.StatusCode] {
		return resp, "", "", nil, false, nil
	}

	location, ok := respReader.Header.First("Location")
	if !ok || location == "" {
		return nil, "", "", nil, false, httpx.ErrMissingLocation
	}

	next := httpx.TransformReference(target, httpx.ParseReference(location))
	nextMethod = method
	nextBody = body
	if resp.StatusCode == 303 {
		nextMethod = "GET"
		nextBody = nil
	}
	return resp, next.String(), nextMethod, nextBody, true, nil
}

func cloneHeader(h map[string][]string) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, v := range h {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func firstHeader(h map[string][]string, name string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}

// DialError wraps a Dialer failure with the target it was trying to reach.
type DialError struct {
	Target httpx.Reference
	Err    error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("client: dial %s: %v", e.Target.String(), e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }
