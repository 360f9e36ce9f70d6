package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/analysis"
	"github.com/kiranshivaraju/mdmdedup/internal/api/response"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// Analyzer defines the analysis service the handlers depend on.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*analysis.Result, error)
	AnalyzeBatch(ctx context.Context, reqs []models.AnalysisRequest) ([]analysis.BatchItem, error)
}

type analyzeRequest struct {
	Record1    models.Record `json:"record1"`
	Record2    models.Record `json:"record2"`
	FuzzyScore *float64      `json:"fuzzyScore"`
}

func (a analyzeRequest) toModel() (models.AnalysisRequest, string) {
	switch {
	case a.Record1 == nil:
		return models.AnalysisRequest{}, "record1 is required"
	case a.Record2 == nil:
		return models.AnalysisRequest{}, "record2 is required"
	case a.FuzzyScore == nil:
		return models.AnalysisRequest{}, "fuzzyScore is required"
	}
	return models.AnalysisRequest{Record1: a.Record1, Record2: a.Record2, FuzzyScore: *a.FuzzyScore}, ""
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyze.
func NewAnalyzeHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body analyzeRequest
		if err := response.Decode(w, r, &body); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		req, problem := body.toModel()
		if problem != "" {
			response.BadRequest(w, problem)
			return
		}

		res, err := svc.Analyze(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewAnalyzeBatchHandler returns an http.HandlerFunc for POST /api/v1/analyze/batch.
// Per-pair failures are reported in their slot; the request still succeeds.
func NewAnalyzeBatchHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Pairs []analyzeRequest `json:"pairs"`
		}
		if err := response.Decode(w, r, &body); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		if len(body.Pairs) == 0 {
			response.BadRequest(w, "pairs must not be empty")
			return
		}
		if len(body.Pairs) > analysis.MaxBatchSize {
			writeError(w, analysis.ErrBatchTooLarge)
			return
		}

		reqs := make([]models.AnalysisRequest, len(body.Pairs))
		for i, p := range body.Pairs {
			req, problem := p.toModel()
			if problem != "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", problem, map[string]int{"index": i})
				return
			}
			reqs[i] = req
		}

		items, err := svc.AnalyzeBatch(r.Context(), reqs)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, items)
	}
}

// NewSmartAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyze/smart.
// It runs only the rule engine and never calls a provider.
func NewSmartAnalyzeHandler(engine ai.SmartAnalyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body analyzeRequest
		if err := response.Decode(w, r, &body); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		req, problem := body.toModel()
		if problem != "" {
			response.BadRequest(w, problem)
			return
		}
		response.JSON(w, engine.AnalyzeRecords(req))
	}
}
