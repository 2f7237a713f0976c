package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(Config{Includes: []string{"[unclosed"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = New(Config{Excludes: []string{"[unclosed"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want bool
	}{
		{"no patterns matches all", Config{}, "docs/readme.md", true},
		{"include hit", Config{Includes: []string{"**/*.md"}}, "docs/readme.md", true},
		{"include miss", Config{Includes: []string{"**/*.md"}}, "docs/readme.txt", false},
		{"doublestar crosses dirs", Config{Includes: []string{"**/*.csv"}}, "a/b/c/data.csv", true},
		{"exclude wins over include", Config{Includes: []string{"**"}, Excludes: []string{"**/*.tmp"}}, "build/out.tmp", false},
		{"exclude without includes", Config{Excludes: []string{"logs/**"}}, "logs/app.log", false},
		{"leading slash trimmed", Config{Includes: []string{"data/*.json"}}, "/data/a.json", true},
		{"hidden dropped by default", Config{}, ".git/config", false},
		{"hidden segment dropped", Config{}, "src/.cache/blob", false},
		{"hidden kept when enabled", Config{IncludeHidden: true}, ".env", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.key))
		})
	}
}
