package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProviderUnknownName(t *testing.T) {
	_, err := NewProvider("nope", nil)
	require.Error(t, err)

	_, err = NewProvider("", nil)
	require.Error(t, err)
}

func TestGeminiFactoryRequiresAPIKey(t *testing.T) {
	_, err := NewProvider("gemini", nil)
	require.Error(t, err)

	_, err = NewProvider("gemini", map[string]interface{}{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))

	_, err = NewProvider("gemini", map[string]interface{}{"api_key": "   "})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))

	p, err := NewProvider("gemini", map[string]interface{}{"api_key": "k"})
	require.NoError(t, err)
	require.Equal(t, "gemini", p.Name())
}
