package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsString(t *testing.T) {
	p := Params{"q": "beatles", "limit": float64(20), "flag": true}
	assert.Equal(t, "beatles", p.String("q", ""))
	assert.Equal(t, "20", p.String("limit", ""))
	assert.Equal(t, "true", p.String("flag", ""))
	assert.Equal(t, "fallback", p.String("missing", "fallback"))
}

func TestParamsInt(t *testing.T) {
	p := Params{"a": float64(30), "b": 7, "c": "12", "d": "nope"}
	assert.Equal(t, 30, p.Int("a", 0))
	assert.Equal(t, 7, p.Int("b", 0))
	assert.Equal(t, 12, p.Int("c", 0))
	assert.Equal(t, 5, p.Int("d", 5))
	assert.Equal(t, 5, p.Int("missing", 5))
}

func TestParamsBool(t *testing.T) {
	p := Params{"on": true, "txt": "false"}
	assert.True(t, p.Bool("on", false))
	assert.False(t, p.Bool("txt", true))
	assert.True(t, p.Bool("missing", true))
}

func TestParamsStrings(t *testing.T) {
	p := Params{
		"typed": []string{"a", "b"},
		"json":  []any{"x", "y", 3},
		"one":   "solo",
		"empty": "",
	}
	assert.Equal(t, []string{"a", "b"}, p.Strings("typed"))
	assert.Equal(t, []string{"x", "y"}, p.Strings("json"))
	assert.Equal(t, []string{"solo"}, p.Strings("one"))
	assert.Nil(t, p.Strings("empty"))
	assert.Nil(t, p.Strings("missing"))
}

func TestMessageStream(t *testing.T) {
	s := MessageStreamOf(TextMessage("one"), VariableMessage("k", "v"))
	var got []Message
	for s.Next() {
		got = append(got, s.Message())
	}
	assert.Len(t, got, 2)
	assert.Equal(t, MessageText, got[0].Type)
	assert.Equal(t, "one", got[0].Text)
	assert.Equal(t, "k", got[1].Name)
	assert.False(t, s.Next(), "exhausted stream stays exhausted")
}
