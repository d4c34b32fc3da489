package httpx

import "strings"

// Reference is a parsed URI reference: the five-part form RFC 3986 §3
// decomposes any URI or relative reference into. HasAuthority, HasQuery,
// and HasFragment distinguish "absent" from "present but empty" — needed
// because transform_reference's rules (§5.2.2) branch on presence, not on
// string emptiness (e.g. "?" with nothing after it still carries a query).
type Reference struct {
	Scheme       string
	Authority    string
	HasAuthority bool
	Path         string
	Query        string
	HasQuery     bool
	Fragment     string
	HasFragment  bool
}

// ParseReference splits raw into its five components per RFC 3986 §3,
// without validating percent-encoding or component contents; callers that
// need encoding rules enforce them separately.
func ParseReference(raw string) Reference {
	var ref Reference
	s := raw

	if i := strings.IndexByte(s, '#'); i >= 0 {
		ref.Fragment = s[i+1:]
		ref.HasFragment = true
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		ref.Query = s[i+1:]
		ref.HasQuery = true
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 && isScheme(s[:i]) {
		ref.Scheme = s[:i]
		s = s[i+1:]
	}
	if strings.HasPrefix(s, "//") {
		ref.HasAuthority = true
		rest := s[2:]
		end := len(rest)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			end = i
		}
		ref.Authority = rest[:end]
		s = rest[end:]
	}
	ref.Path = s
	return ref
}

// isScheme reports whether s is a valid RFC 3986 scheme token: ALPHA
// followed by any number of ALPHA / DIGIT / "+" / "-" / ".".
func isScheme(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '+', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}

// String renders a Reference back to its wire form.
func (r Reference) String() string {
	var b strings.Builder
	if r.Scheme != "" {
		b.WriteString(r.Scheme)
		b.WriteByte(':')
	}
	if r.HasAuthority {
		b.WriteString("//")
		b.WriteString(r.Authority)
	}
	b.WriteString(r.Path)
	if r.HasQuery {
		b.WriteByte('?')
		b.WriteString(r.Query)
	}
	if r.HasFragment {
		b.WriteByte('#')
		b.WriteString(r.Fragment)
	}
	return b.String()
}

// RemoveDotSegments implements RFC 3986 §5.2.4: it strips "." and ".."
// segments from path, left to right, without ever looking past the
// segment currently being processed. Output never contains a "." or ".."
// segment, and a leading "/" present on input is always preserved.
func RemoveDotSegments(path string) string {
	var out []string
	in := path

	for in != "" {
		switch {
		case strings.HasPrefix(in, "../"):
			in = in[3:]
		case strings.HasPrefix(in, "./"):
			in = in[2:]
		case strings.HasPrefix(in, "/./"):
			in = "/" + in[3:]
		case in == "/.":
			in = "/"
		case strings.HasPrefix(in, "/../"):
			in = "/" + in[4:]
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case in == "/..":
			in = "/"
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case in == "." || in == "..":
			in = ""
		default:
			start := 0
			if in[0] == '/' {
				start = 1
			}
			if j := strings.IndexByte(in[start:], '/'); j >= 0 {
				out = append(out, in[:start+j])
				in = in[start+j:]
			} else {
				out = append(out, in)
				in = ""
			}
		}
	}
	return strings.Join(out, "")
}

// TransformReference implements RFC 3986 §5.2.2: it resolves reference
// against base to produce an absolute Reference. An absolute reference
// (one carrying its own scheme) is returned almost as-is, with only its
// path dot-normalized; every other case inherits scheme and/or authority
// and/or path from base per the §5.2.2 algorithm. The fragment always
// comes from reference.
func TransformReference(base, reference Reference) Reference {
	var t Reference

	switch {
	case reference.Scheme != "":
		t.Scheme = reference.Scheme
		t.Authority = reference.Authority
		t.HasAuthority = reference.HasAuthority
		t.Path = RemoveDotSegments(reference.Path)
		t.Query = reference.Query
		t.HasQuery = reference.HasQuery

	case reference.HasAuthority:
		t.Scheme = base.Scheme
		t.Authority = reference.Authority
		t.HasAuthority = true
		t.Path = RemoveDotSegments(reference.Path)
		t.Query = reference.Query
		t.HasQuery = reference.HasQuery

	case reference.Path == "":
		t.Scheme = base.Scheme
		t.Authority = base.Authority
		t.HasAuthority = base.HasAuthority
		t.Path = base.Path
		if reference.HasQuery {
			t.Query = reference.Query
			t.HasQuery = true
		} else {
			t.Query = base.Query
			t.HasQuery = base.HasQuery
		}

	default:
		t.Scheme = base.Scheme
		t.Authority = base.Authority
		t.HasAuthority = base.HasAuthority
		if strings.HasPrefix(reference.Path, "/") {
			t.Path = RemoveDotSegments(reference.Path)
		} else {
			t.Path = RemoveDotSegments(mergePath(base, reference.Path))
		}
		t.Query = reference.Query
		t.HasQuery = reference.HasQuery
	}

	t.Fragment = reference.Fragment
	t.HasFragment = reference.HasFragment
	return t
}

// mergePath implements the merge() routine from RFC 3986 §5.3: when base
// has an authority and an empty path, the reference's path is rooted
// under "/"; otherwise it replaces everything after the last "/" of
// base's path.
func mergePath(base Reference, refPath string) string {
	if base.HasAuthority && base.Path == "" {
		return "/" + refPath
	}
	if i := strings.LastIndexByte(base.Path, '/'); i >= 0 {
		return base.Path[:i+1] + refPath
	}
	return refPath
}
