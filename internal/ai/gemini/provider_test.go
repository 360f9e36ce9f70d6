package gemini_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/gemini"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
)

// --- classifyError ---

func TestClassifyError_APIErrorByValue(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{403, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := gemini.ClassifyError("g1", fmt.Errorf("generate: %w", genai.APIError{Code: tt.code, Message: "boom"}))

			if tt.retryable {
				var te *ai.TransientProviderError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.code, te.StatusCode)
				assert.Equal(t, "g1", te.Provider)
				assert.Equal(t, ai.Retryable, ai.Classify(err))
				return
			}
			var pe *ai.PermanentProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.StatusCode)
			assert.Equal(t, ai.Permanent, ai.Classify(err))
		})
	}
}

func TestClassifyError_APIErrorPointer(t *testing.T) {
	err := gemini.ClassifyError("g1", &genai.APIError{Code: 503})
	var te *ai.TransientProviderError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)
}

func TestClassifyError_ContextErrorsUnchanged(t *testing.T) {
	err := gemini.ClassifyError("g1", fmt.Errorf("generate: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var pe *ai.PermanentProviderError
	assert.False(t, errors.As(err, &pe))
}

func TestClassifyError_OtherErrorsPermanent(t *testing.T) {
	err := gemini.ClassifyError("g1", errors.New("invalid model name"))
	var pe *ai.PermanentProviderError
	require.ErrorAs(t, err, &pe)
	assert.Zero(t, pe.StatusCode)
}

// --- NewProvider ---

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := gemini.NewProvider(context.Background(), config.ProviderConfig{Name: "g1", Type: "gemini"})
	assert.ErrorContains(t, err, "api key is required")
}

func TestNewProvider_DefaultModel(t *testing.T) {
	p, err := gemini.NewProvider(context.Background(), config.ProviderConfig{Name: "g1", Type: "gemini", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "g1", p.Name())
}
