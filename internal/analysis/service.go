package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/cache"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const (
	// MaxBatchSize bounds the number of pairs in one AnalyzeBatch call.
	MaxBatchSize = 100

	defaultConcurrency = 4
	defaultCacheTTL    = 24 * time.Hour
)

var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d pairs", MaxBatchSize)

// Analyzer runs the provider failover loop for one pair and reports the
// provider that answered.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest, maxRetries int) (*ai.Outcome, error)
}

// RecordStore persists analysis outputs.
type RecordStore interface {
	CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error
}

// Result is the outcome of analysing one pair.
type Result struct {
	Fingerprint string                 `json:"fingerprint"`
	Provider    string                 `json:"provider"`
	Cached      bool                   `json:"cached"`
	Output      *models.AnalysisOutput `json:"output"`
}

// BatchItem is one pair's slot in a batch response. Exactly one of Result
// and Error is set.
type BatchItem struct {
	Index  int     `json:"index"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Err    error   `json:"-"`
}

// Service wraps the orchestrator with caching and persistence.
type Service struct {
	analyzer    Analyzer
	cache       cache.Cache
	cacheTTL    time.Duration
	store       RecordStore
	maxRetries  int
	concurrency int
	logger      *zap.Logger
}

type Option func(*Service)

// WithCache enables the analysis cache. A non-positive ttl uses 24h.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithStore(st RecordStore) Option {
	return func(s *Service) { s.store = st }
}

func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

// WithConcurrency bounds in-flight pairs during AnalyzeBatch.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service over analyzer.
func NewService(analyzer Analyzer, opts ...Option) *Service {
	s := &Service{
		analyzer:    analyzer,
		cacheTTL:    defaultCacheTTL,
		maxRetries:  ai.DefaultMaxRetries,
		concurrency: defaultConcurrency,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze returns the cached output for the pair when present, otherwise
// runs the failover loop, persists and caches the result. Cache and store
// failures are logged and do not fail the analysis.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (*Result, error) {
	fp := PairFingerprint(req)

	if out, ok := s.cached(ctx, fp); ok {
		return &Result{Fingerprint: fp, Provider: out.Provider, Cached: true, Output: out.Output}, nil
	}

	oc, err := s.analyzer.Analyze(ctx, req, s.maxRetries)
	if err != nil {
		return nil, err
	}

	res := &Result{Fingerprint: fp, Provider: oc.Provider, Output: oc.Output}
	s.persist(ctx, req, res)
	s.fill(ctx, res)
	return res, nil
}

// cachedOutput is the cache entry layout.
type cachedOutput struct {
	Provider string                 `json:"provider"`
	Output   *models.AnalysisOutput `json:"output"`
}

func (s *Service) cached(ctx context.Context, fp string) (cachedOutput, bool) {
	if s.cache == nil {
		return cachedOutput{}, false
	}
	raw, found, err := s.cache.Get(ctx, cache.AnalysisKey(fp))
	if err != nil {
		s.logger.Warn("analysis cache read failed", zap.String("fingerprint", fp), zap.Error(err))
		return cachedOutput{}, false
	}
	if !found {
		return cachedOutput{}, false
	}
	var entry cachedOutput
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Output == nil {
		s.logger.Warn("discarding corrupt analysis cache entry", zap.String("fingerprint", fp))
		return cachedOutput{}, false
	}
	return entry, true
}

func (s *Service) fill(ctx context.Context, res *Result) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedOutput{Provider: res.Provider, Output: res.Output})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.AnalysisKey(res.Fingerprint), raw, s.cacheTTL); err != nil {
		s.logger.Warn("analysis cache write failed", zap.String("fingerprint", res.Fingerprint), zap.Error(err))
	}
}

func (s *Service) persist(ctx context.Context, req models.AnalysisRequest, res *Result) {
	if s.store == nil {
		return
	}
	rec := &models.AnalysisRecord{
		ID:          uuid.New(),
		Fingerprint: res.Fingerprint,
		Provider:    res.Provider,
		FuzzyScore:  req.FuzzyScore,
		Output:      *res.Output,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAnalysisRecord(ctx, rec); err != nil {
		s.logger.Warn("failed to persist analysis", zap.String("fingerprint", res.Fingerprint), zap.Error(err))
	}
}

// AnalyzeBatch analyses pairs concurrently. A failing pair is reported in
// its slot and never aborts the others. Items keep input order.
func (s *Service) AnalyzeBatch(ctx context.Context, reqs []models.AnalysisRequest) ([]BatchItem, error) {
	if len(reqs) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	items := make([]BatchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			items[i].Index = i
			res, err := s.Analyze(ctx, req)
			if err != nil {
				items[i].Err = err
				items[i].Error = err.Error()
				return nil
			}
			items[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	s.logger.Info("batch analysed", zap.Int("pairs", len(reqs)), zap.Int("failed", failed))

	return items, ctx.Err()
}
