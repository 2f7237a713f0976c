// Package match filters browse listings by glob pattern and by entry
// attributes (size, modification time, name regex). Patterns use
// doublestar syntax, so "**" crosses path separators.
package match

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when a glob pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// Config selects entries by name.
type Config struct {
	// Includes are glob patterns; an entry matches when any include
	// matches. Empty means include everything.
	Includes []string

	// Excludes are glob patterns; a matching entry is dropped even when
	// an include matched it.
	Excludes []string

	// IncludeHidden keeps entries whose name, or any path segment of it,
	// starts with a dot. Hidden entries are dropped by default.
	IncludeHidden bool
}

// Matcher applies include/exclude globs to entry names. It is safe for
// concurrent use after creation.
type Matcher struct {
	cfg Config
}

// New validates every pattern and builds a Matcher.
func New(cfg Config) (*Matcher, error) {
	for _, p := range cfg.Includes {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	for _, p := range cfg.Excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	return &Matcher{cfg: cfg}, nil
}

// Match reports whether name passes the configured patterns. Name is a
// slash-separated path relative to the browsed prefix.
func (m *Matcher) Match(name string) bool {
	name = strings.TrimPrefix(name, "/")

	if !m.cfg.IncludeHidden && isHidden(name) {
		return false
	}

	if len(m.cfg.Includes) > 0 {
		included := false
		for _, p := range m.cfg.Includes {
			if ok, _ := doublestar.Match(p, name); ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, p := range m.cfg.Excludes {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	return true
}

// isHidden reports whether any path segment starts with a dot.
func isHidden(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
