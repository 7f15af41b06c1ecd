package resource

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the scheme written by URI.String.
const Scheme = "transit"

// ErrInvalidURI is returned by Parse for identifiers without an authority.
var ErrInvalidURI = errors.New("invalid resource identifier")

// URI is a parsed resource identifier: an authority naming the data family
// followed by decoded path segments.
type URI struct {
	Authority string
	Segments  []string
}

// New builds a URI from an authority and raw (unescaped) segments.
func New(authority string, segments ...string) URI {
	return URI{Authority: authority, Segments: append([]string(nil), segments...)}
}

// Parse accepts "transit://authority/a/b" as well as the scheme-less
// "authority/a/b". Segments are percent-decoded; empty segments are dropped.
func Parse(s string) (URI, error) {
	rest := s
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	rest = strings.TrimPrefix(rest, "/")
	if q := strings.IndexAny(rest, "?#"); q >= 0 {
		rest = rest[:q]
	}

	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		return URI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}

	u := URI{Authority: parts[0]}
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		seg, err := url.PathUnescape(p)
		if err != nil {
			return URI{}, fmt.Errorf("%w: %q: %v", ErrInvalidURI, s, err)
		}
		u.Segments = append(u.Segments, seg)
	}
	return u, nil
}

// MustParse is Parse for identifiers known at compile time.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Path returns the escaped path with a leading slash, "/" for the root.
func (u URI) Path() string {
	if len(u.Segments) == 0 {
		return "/"
	}
	escaped := make([]string, len(u.Segments))
	for i, s := range u.Segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

func (u URI) String() string {
	if len(u.Segments) == 0 {
		return Scheme + "://" + u.Authority
	}
	return Scheme + "://" + u.Authority + u.Path()
}

// Append returns a copy of u with extra segments.
func (u URI) Append(segments ...string) URI {
	out := URI{Authority: u.Authority, Segments: make([]string, 0, len(u.Segments)+len(segments))}
	out.Segments = append(out.Segments, u.Segments...)
	out.Segments = append(out.Segments, segments...)
	return out
}

// Equal reports whether both identifiers address the same resource.
func (u URI) Equal(o URI) bool {
	if u.Authority != o.Authority || len(u.Segments) != len(o.Segments) {
		return false
	}
	for i := range u.Segments {
		if u.Segments[i] != o.Segments[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether o lies strictly below u.
func (u URI) IsAncestorOf(o URI) bool {
	if u.Authority != o.Authority || len(u.Segments) >= len(o.Segments) {
		return false
	}
	for i := range u.Segments {
		if u.Segments[i] != o.Segments[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether a change published at u concerns a watcher of
// watched. With descendants set, changes anywhere below watched count too.
func (u URI) Overlaps(watched URI, descendants bool) bool {
	if u.Equal(watched) || u.IsAncestorOf(watched) {
		return true
	}
	return descendants && watched.IsAncestorOf(u)
}
