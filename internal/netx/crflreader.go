// Package netx holds the transport-facing line primitive the HTTP codec
// parses with. It knows nothing about HTTP itself; any CRLF-delimited
// protocol could sit on top of it.
package netx

import (
	"bufio"
	"errors"
	"io"
)

// ErrLineTooLong indicates that a line exceeded the caller's maximum length.
var ErrLineTooLong = errors.New("crlf: line too long")

// ErrMissingTerminator indicates the source ended before a line terminator
// was seen.
var ErrMissingTerminator = errors.New("crlf: source ended before line terminator")

// DefaultBufSize is the buffer size used by NewCRLFFastReader.
const DefaultBufSize = 4096

// CRLFFastReader reads CRLF-terminated lines from a buffered byte source
// with a hard per-line cap, and doubles as an io.Reader so the bytes after
// a header block (a message body) can be consumed through the same buffer
// without losing what bufio has already pulled in.
//
// Callers needing a richer error algebra wrap ErrLineTooLong and
// ErrMissingTerminator at their own layer; this package stays free of any
// protocol's sentinels.
type CRLFFastReader struct {
	br *bufio.Reader
}

// NewCRLFFastReader wraps r with a buffered reader of DefaultBufSize.
func NewCRLFFastReader(r io.Reader) *CRLFFastReader {
	return &CRLFFastReader{br: bufio.NewReaderSize(r, DefaultBufSize)}
}

// Reset discards buffered state and points the reader at a new source.
func (r *CRLFFastReader) Reset(src io.Reader) {
	if r.br == nil {
		r.br = bufio.NewReaderSize(src, DefaultBufSize)
		return
	}
	r.br.Reset(src)
}

// ReadLine reads one logical line of at most max bytes (terminator
// included) and returns it with the trailing CRLF trimmed. A bare LF is
// tolerated as a terminator. The empty line that ends a header block comes
// back as a zero-length slice with a nil error.
//
// A line longer than max fails with ErrLineTooLong; a source that ends
// before any terminator fails with ErrMissingTerminator, or io.EOF when
// the source was already exhausted.
func (r *CRLFFastReader) ReadLine(max int) ([]byte, error) {
	if max <= 0 {
		return nil, errors.New("crlf: invalid max value")
	}

	var line []byte
	for {
		frag, err := r.br.ReadSlice('\n')
		if len(line)+len(frag) > max {
			return nil, ErrLineTooLong
		}
		line = append(line, frag...)

		switch {
		case err == nil:
			return trimTerminator(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			// terminator not yet seen; keep accumulating against max
		case errors.Is(err, io.EOF):
			if len(line) == 0 {
				return nil, io.EOF
			}
			return line, ErrMissingTerminator
		default:
			return nil, err
		}
	}
}

func trimTerminator(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
		if n > 0 && line[n-1] == '\r' {
			n--
		}
	}
	return line[:n]
}

// Read satisfies io.Reader by draining the internal buffer first, so a
// CRLFFastReader can be handed to a body reader once the header block has
// been consumed via ReadLine.
func (r *CRLFFastReader) Read(p []byte) (int, error) {
	return r.br.Read(p)
}
