package httpx

import (
	"fmt"
	"io"
	"strings"
)

// -----------------------------------------------------------------------------
// Field lexer
// -----------------------------------------------------------------------------
//
// Two table-driven predicates over the RFC 7230 token and field-value
// alphabets. The lexer never lower-cases a name: casing is preserved as
// received and compared case-insensitively only at lookup time.

var fieldNameTable [256]bool
var fieldValueTable [256]bool

func init() {
	for c := 'A'; c <= 'Z'; c++ {
		fieldNameTable[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		fieldNameTable[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		fieldNameTable[c] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		fieldNameTable[c] = true
	}

	fieldValueTable['\t'] = true
	fieldValueTable[' '] = true
	for c := 0x21; c <= 0x7E; c++ {
		fieldValueTable[c] = true
	}
}

// validateName reports whether s is a non-empty token per RFC 7230 §3.2.6.
func validateName(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFieldName)
	}
	for i := 0; i < len(s); i++ {
		if !fieldNameTable[s[i]] {
			return fmt.Errorf("%w: %q", ErrInvalidFieldName, s)
		}
	}
	return nil
}

// validateValue reports whether s contains only HTAB, SP, or visible ASCII.
func validateValue(s string) error {
	for i := 0; i < len(s); i++ {
		if !fieldValueTable[s[i]] {
			return fmt.Errorf("%w: %q", ErrInvalidFieldValue, s)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Field list
// -----------------------------------------------------------------------------

// Field is one (name, value) pair as received or appended, casing preserved.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered, case-insensitive multi-map of header (or trailer)
// fields. Unlike net/http.Header it is not a map: duplicate names and
// insertion order must survive a round trip, which a Go map cannot
// guarantee.
type Header struct {
	fields []Field
}

// NewHeader returns an empty field list ready for use.
func NewHeader() *Header {
	return &Header{}
}

// Append validates name and value and pushes the pair to the end of the list.
func (h *Header) Append(name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
	return nil
}

// Set removes every entry whose name matches case-insensitively, then
// appends (name, value) at the end.
func (h *Header) Set(name, value string) error {
	h.Del(name)
	return h.Append(name, value)
}

// Del removes every entry whose name matches name case-insensitively,
// without adding a replacement.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// First returns the value of the first case-insensitive match and true, or
// ("", false) if name is absent.
func (h *Header) First(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Get is a convenience wrapper over First returning "" for an absent field.
func (h *Header) Get(name string) string {
	v, _ := h.First(name)
	return v
}

// Values returns every value for name, in insertion order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Len reports the number of (name, value) pairs, counting duplicates.
func (h *Header) Len() int {
	return len(h.fields)
}

// Fields returns the (name, value) pairs in insertion order. The caller must
// not mutate the returned slice.
func (h *Header) Fields() []Field {
	return h.fields
}

// Reset clears the list so it can be reused, e.g. by the message writer when
// it hands its header list back as an empty trailer list after emission.
func (h *Header) Reset() {
	h.fields = h.fields[:0]
}

// Write serializes the list to wire format: "Name: Value\r\n" per entry,
// each already-validated at Append/Set time, so no further checking happens
// here beyond what io.Writer reports.
func (h *Header) Write(w io.Writer) error {
	for _, f := range h.fields {
		if _, err := io.WriteString(w, f.Name); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ": "); err != nil {
			return err
		}
		if _, err := io.WriteString(w, f.Value); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}
	return nil
}
