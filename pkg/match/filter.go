package match

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Filter errors.
var (
	ErrInvalidSize  = errors.New("invalid size value")
	ErrInvalidDate  = errors.New("invalid date value")
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// Filter evaluates whether a browse entry passes a criterion. Filters
// operate on data already present in the listing; no extra calls are made.
type Filter interface {
	Match(f *datasource.File) bool

	// String returns a human-readable description of the filter.
	String() string
}

// FilterConfig holds filter criteria, typically from CLI flags.
type FilterConfig struct {
	// MinSize and MaxSize are inclusive byte bounds. Human-readable
	// units are accepted: "1KB", "100MiB".
	MinSize string
	MaxSize string

	// ModifiedAfter and ModifiedBefore bound the modification time.
	// ISO 8601 dates or datetimes: "2024-01-15", "2024-01-15T10:30:00Z".
	// After is inclusive, Before is exclusive.
	ModifiedAfter  string
	ModifiedBefore string

	// NameRegex is applied to entry names after glob matching.
	NameRegex string
}

// NewFilter compiles the configured criteria into a single AND filter.
// Returns nil when no criteria are set.
func NewFilter(cfg FilterConfig) (Filter, error) {
	var filters []Filter

	if cfg.MinSize != "" || cfg.MaxSize != "" {
		f, err := newSizeFilter(cfg.MinSize, cfg.MaxSize)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if cfg.ModifiedAfter != "" || cfg.ModifiedBefore != "" {
		f, err := newDateFilter(cfg.ModifiedAfter, cfg.ModifiedBefore)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if cfg.NameRegex != "" {
		re, err := regexp.Compile(cfg.NameRegex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
		}
		filters = append(filters, &regexFilter{pattern: re, raw: cfg.NameRegex})
	}

	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	default:
		return chainFilter(filters), nil
	}
}

// Apply returns the entries of files that pass filter. A nil filter
// passes everything. Folders always pass size and date criteria so that
// filtering a listing never hides navigable containers.
func Apply(filter Filter, files []datasource.File) []datasource.File {
	if filter == nil {
		return files
	}
	out := make([]datasource.File, 0, len(files))
	for i := range files {
		if filter.Match(&files[i]) {
			out = append(out, files[i])
		}
	}
	return out
}

type sizeFilter struct {
	min int64 // -1 means unbounded
	max int64
}

func newSizeFilter(minStr, maxStr string) (*sizeFilter, error) {
	f := &sizeFilter{min: -1, max: -1}
	if minStr != "" {
		n, err := ParseSize(minStr)
		if err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
		f.min = n
	}
	if maxStr != "" {
		n, err := ParseSize(maxStr)
		if err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
		f.max = n
	}
	if f.min >= 0 && f.max >= 0 && f.min > f.max {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, f.min, f.max)
	}
	return f, nil
}

func (f *sizeFilter) Match(file *datasource.File) bool {
	if file.Type == datasource.EntryFolder {
		return true
	}
	if f.min >= 0 && file.Size < f.min {
		return false
	}
	if f.max >= 0 && file.Size > f.max {
		return false
	}
	return true
}

func (f *sizeFilter) String() string {
	switch {
	case f.min >= 0 && f.max >= 0:
		return fmt.Sprintf("size: %s - %s", FormatSize(f.min), FormatSize(f.max))
	case f.min >= 0:
		return fmt.Sprintf("size: >= %s", FormatSize(f.min))
	default:
		return fmt.Sprintf("size: <= %s", FormatSize(f.max))
	}
}

type dateFilter struct {
	after  time.Time // zero means unbounded
	before time.Time
}

func newDateFilter(afterStr, beforeStr string) (*dateFilter, error) {
	f := &dateFilter{}
	if afterStr != "" {
		t, err := ParseDate(afterStr)
		if err != nil {
			return nil, fmt.Errorf("after date: %w", err)
		}
		f.after = t
	}
	if beforeStr != "" {
		t, err := ParseDate(beforeStr)
		if err != nil {
			return nil, fmt.Errorf("before date: %w", err)
		}
		f.before = t
	}
	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, f.after, f.before)
	}
	return f, nil
}

// Match reads the entry's modification time from its metadata. Entries
// without one (folders, vendors that omit it) pass unconditionally.
func (f *dateFilter) Match(file *datasource.File) bool {
	mod, ok := modifiedTime(file)
	if !ok {
		return true
	}
	if !f.after.IsZero() && mod.Before(f.after) {
		return false
	}
	if !f.before.IsZero() && !mod.Before(f.before) {
		return false
	}
	return true
}

func (f *dateFilter) String() string {
	switch {
	case !f.after.IsZero() && !f.before.IsZero():
		return fmt.Sprintf("modified: %s to %s", f.after.Format("2006-01-02"), f.before.Format("2006-01-02"))
	case !f.after.IsZero():
		return fmt.Sprintf("modified: on/after %s", f.after.Format("2006-01-02"))
	default:
		return fmt.Sprintf("modified: before %s", f.before.Format("2006-01-02"))
	}
}

// modifiedTime extracts the last_modified metadata entry. Connectors
// publish it as an RFC 3339 string.
func modifiedTime(file *datasource.File) (time.Time, bool) {
	raw, ok := file.Metadata["last_modified"]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		t, err := ParseDate(v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

type regexFilter struct {
	pattern *regexp.Regexp
	raw     string
}

func (f *regexFilter) Match(file *datasource.File) bool {
	return f.pattern.MatchString(file.Name)
}

func (f *regexFilter) String() string {
	return fmt.Sprintf("name_regex: %s", f.raw)
}

// chainFilter combines filters with AND semantics.
type chainFilter []Filter

func (c chainFilter) Match(file *datasource.File) bool {
	for _, f := range c {
		if !f.Match(file) {
			return false
		}
	}
	return true
}

func (c chainFilter) String() string {
	parts := make([]string, len(c))
	for i, f := range c {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}

// Size unit multipliers.
const (
	kb int64 = 1000
	mb int64 = 1000 * kb
	gb int64 = 1000 * mb
	tb int64 = 1000 * gb

	kib int64 = 1024
	mib int64 = 1024 * kib
	gib int64 = 1024 * mib
	tib int64 = 1024 * gib
)

// ParseSize parses a human-readable size string. Raw byte counts,
// base-10 units ("1KB" = 1000 bytes) and base-2 units ("1KiB" = 1024
// bytes) are accepted, case-insensitively.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidSize
	}

	numEnd := 0
	for i, c := range s {
		if c >= '0' && c <= '9' || c == '.' {
			numEnd = i + 1
		} else {
			break
		}
	}
	if numEnd == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	numStr := s[:numEnd]
	unitStr := strings.TrimSpace(s[numEnd:])

	var multiplier int64
	switch strings.ToUpper(unitStr) {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = kb
	case "M", "MB":
		multiplier = mb
	case "G", "GB":
		multiplier = gb
	case "T", "TB":
		multiplier = tb
	case "KI", "KIB":
		multiplier = kib
	case "MI", "MIB":
		multiplier = mib
	case "GI", "GIB":
		multiplier = gib
	case "TI", "TIB":
		multiplier = tib
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, unitStr)
	}

	if strings.Contains(numStr, ".") {
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
		}
		bytes := num * float64(multiplier)
		if bytes > float64(math.MaxInt64) {
			return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
		}
		return int64(bytes), nil
	}

	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	if n > math.MaxInt64/uint64(multiplier) {
		return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
	}
	return int64(n) * multiplier, nil
}

// FormatSize formats bytes as a human-readable string using base-2 units.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= tib:
		return fmt.Sprintf("%.1fTiB", float64(bytes)/float64(tib))
	case bytes >= gib:
		return fmt.Sprintf("%.1fGiB", float64(bytes)/float64(gib))
	case bytes >= mib:
		return fmt.Sprintf("%.1fMiB", float64(bytes)/float64(mib))
	case bytes >= kib:
		return fmt.Sprintf("%.1fKiB", float64(bytes)/float64(kib))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// ParseDate parses an ISO 8601 date or datetime. Date-only values are
// interpreted as start of day UTC; all results are normalized to UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
