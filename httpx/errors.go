package httpx

import "errors"

// Sentinel errors closing the algebra the codec can raise. Every parse error
// is fatal for the message being processed; the codec never attempts resync,
// so callers should close the connection on any of these.
var (
	ErrInvalidFieldName  = errors.New("httpx: invalid header field name")
	ErrInvalidFieldValue = errors.New("httpx: invalid header field value")
	ErrMalformedHeader   = errors.New("httpx: malformed header line")
	ErrUnterminatedLine  = errors.New("httpx: unterminated line")
	ErrTooManyFields     = errors.New("httpx: too many header fields")
	ErrInvalidLength     = errors.New("httpx: invalid content-length")
	ErrInvalidChunkSize  = errors.New("httpx: invalid chunk size")
	ErrMalformedStart    = errors.New("httpx: malformed start line")
	ErrShortWrite        = errors.New("httpx: short write")
	ErrConnectionClosed  = errors.New("httpx: connection closed")

	// ErrRedirectLoop and ErrMissingLocation belong to the redirect follower
	// (package client), not the codec, but live here so both packages share
	// one error algebra.
	ErrRedirectLoop    = errors.New("httpx: exceeded redirect budget")
	ErrMissingLocation = errors.New("httpx: redirect response missing Location")

	// ErrMessageInFlight guards connection re-entrancy: SendRequest and
	// ReceiveRequest (and their response counterparts) refuse to start a
	// new exchange while the previous message's body on the same half of
	// the connection is still open, rather than silently corrupting the
	// stream.
	ErrMessageInFlight = errors.New("httpx: previous message body not closed")
)
