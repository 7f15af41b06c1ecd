// Package resource parses path-shaped resource identifiers and resolves them
// against registered patterns to the tag of a query plan.
package resource

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownResource is returned when no registered pattern matches an
// identifier. Callers must treat it as fatal for the call.
var ErrUnknownResource = errors.New("unknown resource")

// Tag identifies the concrete plan an identifier resolves to.
type Tag string

const (
	// DigitsWildcard matches a segment of one or more ASCII digits.
	DigitsWildcard = "#"
	// AnyWildcard matches any non-empty segment.
	AnyWildcard = "*"
)

// Match is the outcome of a successful resolution.
type Match struct {
	Tag       Tag
	URI       URI
	Wildcards []string
}

// Arg returns the i-th captured wildcard segment, or "" when absent.
func (m Match) Arg(i int) string {
	if i < 0 || i >= len(m.Wildcards) {
		return ""
	}
	return m.Wildcards[i]
}

// Last returns the last captured wildcard segment.
func (m Match) Last() string {
	return m.Arg(len(m.Wildcards) - 1)
}

type node struct {
	literals map[string]*node
	digits   *node
	any      *node

	tag      Tag
	terminal bool
}

func newNode() *node {
	return &node{literals: make(map[string]*node)}
}

// Router matches identifier paths against registered patterns.
type Router struct {
	root *node
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{root: newNode()}
}

// Register adds pattern, a slash separated list of literal segments and
// wildcards, resolving to tag. Registering the same shape twice is an error.
func (r *Router) Register(pattern string, tag Tag) error {
	n := r.root
	for _, seg := range splitPattern(pattern) {
		var next **node
		switch seg {
		case DigitsWildcard:
			next = &n.digits
		case AnyWildcard:
			next = &n.any
		default:
			child, ok := n.literals[seg]
			if !ok {
				child = newNode()
				n.literals[seg] = child
			}
			n = child
			continue
		}
		if *next == nil {
			*next = newNode()
		}
		n = *next
	}

	if n.terminal {
		return fmt.Errorf("pattern %q already registered for tag %q", pattern, n.tag)
	}
	n.terminal = true
	n.tag = tag
	return nil
}

// MustRegister is Register for startup tables; it panics on conflicts.
func (r *Router) MustRegister(pattern string, tag Tag) {
	if err := r.Register(pattern, tag); err != nil {
		panic(err)
	}
}

// Resolve finds the tag for u. At every position a literal segment is tried
// before the digits wildcard, which is tried before the any wildcard.
func (r *Router) Resolve(u URI) (Match, error) {
	var captured []string
	n, ok := r.root.walk(u.Segments, &captured)
	if !ok {
		return Match{}, fmt.Errorf("%w: %s", ErrUnknownResource, u)
	}
	return Match{Tag: n.tag, URI: u, Wildcards: captured}, nil
}

func (n *node) walk(segments []string, captured *[]string) (*node, bool) {
	if len(segments) == 0 {
		return n, n.terminal
	}
	seg, rest := segments[0], segments[1:]

	if child, ok := n.literals[seg]; ok {
		if found, ok := child.walk(rest, captured); ok {
			return found, true
		}
	}

	for _, wc := range []struct {
		child *node
		ok    bool
	}{
		{n.digits, isDigits(seg)},
		{n.any, seg != ""},
	} {
		if wc.child == nil || !wc.ok {
			continue
		}
		mark := len(*captured)
		*captured = append(*captured, seg)
		if found, ok := wc.child.walk(rest, captured); ok {
			return found, true
		}
		*captured = (*captured)[:mark]
	}
	return nil, false
}

func splitPattern(pattern string) []string {
	var out []string
	for _, s := range strings.Split(pattern, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
