package azureopenai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(datasource.Credentials{"api_key": "k"}, nil)
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(datasource.Credentials{"endpoint": "https://res.openai.azure.com"}, nil)
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

func TestNew(t *testing.T) {
	a, err := New(datasource.Credentials{
		"api_key":  "k",
		"endpoint": "https://res.openai.azure.com",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, Name, a.Name())
}
