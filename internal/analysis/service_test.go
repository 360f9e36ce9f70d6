package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/mock"
	"github.com/kiranshivaraju/mdmdedup/internal/analysis"
	"github.com/kiranshivaraju/mdmdedup/internal/cache"
	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// memCache is an in-process cache.Cache.
type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*memCache)(nil)

// recordingStore captures persisted records.
type recordingStore struct {
	mu   sync.Mutex
	recs []*models.AnalysisRecord
	err  error
}

func (s *recordingStore) CreateAnalysisRecord(_ context.Context, rec *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

// stubAnalyzer answers from fn as provider and counts calls.
type stubAnalyzer struct {
	calls    atomic.Int32
	provider string
	fn       func(req models.AnalysisRequest) (*models.AnalysisOutput, error)
}

func (a *stubAnalyzer) Analyze(_ context.Context, req models.AnalysisRequest, _ int) (*ai.Outcome, error) {
	a.calls.Add(1)
	out, err := a.fn(req)
	if err != nil {
		return nil, err
	}
	return &ai.Outcome{Output: out, Provider: a.provider, Calls: 1}, nil
}

func okOutput() *models.AnalysisOutput {
	return &models.AnalysisOutput{
		ConfidenceLevel: "High", What: "same entity", Why: "matching tax id", Recommendation: "merge",
		RiskFactors: []string{}, ExemptionReasons: []string{}, RulesApplied: []string{},
	}
}

func sampleReq() models.AnalysisRequest {
	return models.AnalysisRequest{
		Record1:    models.Record{"name": "Acme Corp", "city": "Austin"},
		Record2:    models.Record{"name": "ACME Corporation", "city": "Austin"},
		FuzzyScore: 0.82,
	}
}

// --- Analyze ---

func TestAnalyze_CachesAndPersists(t *testing.T) {
	stub := &stubAnalyzer{provider: "primary", fn: func(models.AnalysisRequest) (*models.AnalysisOutput, error) { return okOutput(), nil }}
	mc := newMemCache()
	st := &recordingStore{}
	svc := analysis.NewService(stub,
		analysis.WithCache(mc, time.Hour),
		analysis.WithStore(st),
		analysis.WithLogger(zap.NewNop()))

	ctx := context.Background()
	first, err := svc.Analyze(ctx, sampleReq())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "primary", first.Provider)
	assert.Equal(t, analysis.PairFingerprint(sampleReq()), first.Fingerprint)

	require.Len(t, st.recs, 1)
	assert.Equal(t, first.Fingerprint, st.recs[0].Fingerprint)
	assert.InDelta(t, 0.82, st.recs[0].FuzzyScore, 1e-9)

	// Swapped records hit the same cache entry.
	swapped := sampleReq()
	swapped.Record1, swapped.Record2 = swapped.Record2, swapped.Record1
	second, err := svc.Analyze(ctx, swapped)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "primary", second.Provider)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Len(t, st.recs, 1)
}

func TestAnalyze_ErrorNotCached(t *testing.T) {
	stub := &stubAnalyzer{fn: func(models.AnalysisRequest) (*models.AnalysisOutput, error) {
		return nil, &ai.NoHealthyProviderError{}
	}}
	mc := newMemCache()
	svc := analysis.NewService(stub, analysis.WithCache(mc, 0), analysis.WithLogger(zap.NewNop()))

	_, err := svc.Analyze(context.Background(), sampleReq())
	var nh *ai.NoHealthyProviderError
	assert.ErrorAs(t, err, &nh)
	assert.Empty(t, mc.data)
}

func TestAnalyze_CacheAndStoreFailuresTolerated(t *testing.T) {
	stub := &stubAnalyzer{fn: func(models.AnalysisRequest) (*models.AnalysisOutput, error) { return okOutput(), nil }}
	mc := newMemCache()
	mc.getErr = errors.New("redis down")
	st := &recordingStore{err: errors.New("db down")}
	svc := analysis.NewService(stub, analysis.WithCache(mc, 0), analysis.WithStore(st), analysis.WithLogger(zap.NewNop()))

	res, err := svc.Analyze(context.Background(), sampleReq())
	require.NoError(t, err)
	assert.Equal(t, "merge", res.Output.Recommendation)
}

func TestAnalyze_CorruptCacheEntryIgnored(t *testing.T) {
	stub := &stubAnalyzer{fn: func(models.AnalysisRequest) (*models.AnalysisOutput, error) { return okOutput(), nil }}
	mc := newMemCache()
	mc.data[cache.AnalysisKey(analysis.PairFingerprint(sampleReq()))] = []byte("{not json")
	svc := analysis.NewService(stub, analysis.WithCache(mc, 0), analysis.WithLogger(zap.NewNop()))

	res, err := svc.Analyze(context.Background(), sampleReq())
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(1), stub.calls.Load())
}

// End to end through the real orchestrator: an invalid name short-circuits
// without calling the provider and is attributed to the rules.
func TestAnalyze_ShortCircuitThroughOrchestrator(t *testing.T) {
	engine, err := rules.NewEngine(zap.NewNop())
	require.NoError(t, err)
	validator, err := ai.NewResponseValidator()
	require.NoError(t, err)
	reg := ai.NewRegistry(zap.NewNop())
	p := mock.NewMockProvider("primary")
	require.NoError(t, reg.Register(p, models.ProviderMock, 1))
	orch := ai.NewOrchestrator(reg, engine, validator, ai.WithLogger(zap.NewNop()))

	svc := analysis.NewService(orch, analysis.WithLogger(zap.NewNop()))
	req := sampleReq()
	req.Record2["name"] = "N/A"

	res, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationRemove, res.Output.Recommendation)
	assert.Equal(t, "rules", res.Provider)
	assert.Equal(t, 0, p.CallCount())

	req.Record2["name"] = "ACME Corporation"
	res, err = svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, 1, p.CallCount())
}

func TestAnalyze_BackendRemoveVerdictAttributedToBackend(t *testing.T) {
	stub := &stubAnalyzer{provider: "primary", fn: func(models.AnalysisRequest) (*models.AnalysisOutput, error) {
		out := okOutput()
		out.Recommendation = models.RecommendationRemove
		return out, nil
	}}
	st := &recordingStore{}
	svc := analysis.NewService(stub, analysis.WithStore(st), analysis.WithLogger(zap.NewNop()))

	res, err := svc.Analyze(context.Background(), sampleReq())
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Provider)
	require.Len(t, st.recs, 1)
	assert.Equal(t, "primary", st.recs[0].Provider)
}

// Another pair failing over while this pair waits on its backend must not
// change the provider persisted and cached for this pair.
func TestAnalyze_AttributionUnderConcurrentFailover(t *testing.T) {
	engine, err := rules.NewEngine(zap.NewNop())
	require.NoError(t, err)
	validator, err := ai.NewResponseValidator()
	require.NoError(t, err)

	reply, err := json.Marshal(okOutput())
	require.NoError(t, err)
	release := make(chan struct{})
	a := &mock.MockProvider{
		Name_: "a",
		CompleteFunc: func(ctx context.Context, _ models.Prompt) (string, error) {
			select {
			case <-release:
				return string(reply), nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	b := mock.NewMockProvider("b")
	reg := ai.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(a, models.ProviderMock, 1))
	require.NoError(t, reg.Register(b, models.ProviderMock, 2))
	orch := ai.NewOrchestrator(reg, engine, validator, ai.WithLogger(zap.NewNop()))

	mc := newMemCache()
	st := &recordingStore{}
	svc := analysis.NewService(orch, analysis.WithCache(mc, 0), analysis.WithStore(st), analysis.WithLogger(zap.NewNop()))

	type outcome struct {
		res *analysis.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.Analyze(context.Background(), sampleReq())
		done <- outcome{res, err}
	}()

	require.Eventually(t, func() bool { return a.CallCount() == 1 }, time.Second, 5*time.Millisecond)
	_, ok := reg.FailoverFrom("a")
	require.True(t, ok)
	close(release)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "a", got.res.Provider)
	assert.Equal(t, "b", reg.Status().CurrentProvider)
	require.Len(t, st.recs, 1)
	assert.Equal(t, "a", st.recs[0].Provider)

	cached, err := svc.Analyze(context.Background(), sampleReq())
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, "a", cached.Provider)
	assert.Equal(t, 0, b.CallCount())
}

// --- AnalyzeBatch ---

func TestAnalyzeBatch_PartialFailure(t *testing.T) {
	stub := &stubAnalyzer{fn: func(req models.AnalysisRequest) (*models.AnalysisOutput, error) {
		if req.FuzzyScore > 1 {
			return nil, &ai.InvalidInputError{Reason: "fuzzyScore out of range"}
		}
		return okOutput(), nil
	}}
	svc := analysis.NewService(stub, analysis.WithConcurrency(2), analysis.WithLogger(zap.NewNop()))

	var reqs []models.AnalysisRequest
	for i := 0; i < 7; i++ {
		r := sampleReq()
		r.Record1 = models.Record{"name": fmt.Sprintf("Acme %d", i)}
		if i == 3 {
			r.FuzzyScore = 2
		}
		reqs = append(reqs, r)
	}

	items, err := svc.AnalyzeBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, items, 7)
	for i, it := range items {
		assert.Equal(t, i, it.Index)
		if i == 3 {
			assert.Nil(t, it.Result)
			assert.Contains(t, it.Error, "fuzzyScore")
			continue
		}
		require.NotNil(t, it.Result, i)
		assert.Empty(t, it.Error)
	}
	assert.Equal(t, int32(7), stub.calls.Load())
}

func TestAnalyzeBatch_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	stub := &stubAnalyzer{fn: func(models.AnalysisRequest) (*models.AnalysisOutput, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return okOutput(), nil
	}}
	svc := analysis.NewService(stub, analysis.WithConcurrency(3), analysis.WithLogger(zap.NewNop()))

	reqs := make([]models.AnalysisRequest, 12)
	for i := range reqs {
		reqs[i] = sampleReq()
	}
	_, err := svc.AnalyzeBatch(context.Background(), reqs)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestAnalyzeBatch_TooLarge(t *testing.T) {
	svc := analysis.NewService(&stubAnalyzer{}, analysis.WithLogger(zap.NewNop()))
	_, err := svc.AnalyzeBatch(context.Background(), make([]models.AnalysisRequest, analysis.MaxBatchSize+1))
	assert.ErrorIs(t, err, analysis.ErrBatchTooLarge)
}

func TestAnalyzeBatch_Empty(t *testing.T) {
	svc := analysis.NewService(&stubAnalyzer{}, analysis.WithLogger(zap.NewNop()))
	items, err := svc.AnalyzeBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}
