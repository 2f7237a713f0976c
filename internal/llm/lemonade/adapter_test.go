package lemonade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

func TestNewWithoutKey(t *testing.T) {
	// Local servers do not require an API key.
	a, err := New(datasource.Credentials{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Name, a.Name())
}
