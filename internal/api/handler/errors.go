package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/analysis"
	"github.com/kiranshivaraju/mdmdedup/internal/api/response"
	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/internal/store"
)

// writeError maps domain errors to status codes and error envelopes.
func writeError(w http.ResponseWriter, err error) {
	var (
		invalid   *ai.InvalidInputError
		noHealthy *ai.NoHealthyProviderError
		exhausted *ai.AllProvidersExhaustedError
		retries   *ai.RetriesExhaustedError
		timeout   *ai.TimeoutError
		ruleErr   *rules.RuleEvaluationError
	)
	switch {
	case errors.As(err, &invalid):
		response.Error(w, http.StatusBadRequest, "INVALID_INPUT", invalid.Error(), nil)
	case errors.As(err, &noHealthy):
		response.Error(w, http.StatusServiceUnavailable, "NO_HEALTHY_PROVIDER",
			"No healthy AI provider is available", nil)
	case errors.As(err, &exhausted):
		response.Error(w, http.StatusBadGateway, "ALL_PROVIDERS_EXHAUSTED",
			"Every AI provider failed", map[string]string{"lastProvider": exhausted.LastProvider})
	case errors.As(err, &retries):
		response.Error(w, http.StatusBadGateway, "RETRIES_EXHAUSTED",
			"The retry budget was spent before a provider answered", nil)
	case errors.As(err, &timeout):
		response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT",
			"AI analysis took too long and was cancelled", map[string]string{"provider": timeout.Provider})
	case errors.As(err, &ruleErr):
		response.Error(w, http.StatusUnprocessableEntity, "RULE_EVALUATION_FAILED", ruleErr.Error(), nil)
	case errors.Is(err, analysis.ErrBatchTooLarge):
		response.BadRequest(w, err.Error())
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "Resource already exists", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusServiceUnavailable, "REQUEST_CANCELLED", "The request was cancelled", nil)
	default:
		zap.L().Error("unhandled request error", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
