package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing and for the "mock"
// provider kind. It records every prompt it receives.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, prompt models.Prompt) (string, error)

	mu    sync.Mutex
	calls []models.Prompt
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, prompt models.Prompt) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "", nil
}

// CallCount returns the number of Complete calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the prompts received so far.
func (m *MockProvider) Calls() []models.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Prompt, len(m.calls))
	copy(out, m.calls)
	return out
}

// DefaultOutput is the analysis NewMockProvider answers with.
func DefaultOutput() models.AnalysisOutput {
	return models.AnalysisOutput{
		ConfidenceLevel:  models.ConfidenceMedium,
		What:             "Records share name and address tokens",
		Why:              "Simulated analysis from mock provider",
		Recommendation:   models.RecommendationReview,
		BusinessContext:  "Mock business context for testing",
		RiskFactors:      []string{},
		ExemptionReasons: []string{},
		RulesApplied:     []string{},
	}
}

// NewMockProvider returns a MockProvider that answers with DefaultOutput as JSON.
func NewMockProvider(name string) *MockProvider {
	return NewJSONProvider(name, DefaultOutput())
}

// NewJSONProvider returns a MockProvider that always answers with out as JSON.
func NewJSONProvider(name string, out models.AnalysisOutput) *MockProvider {
	b, _ := json.Marshal(out)
	return NewTextProvider(name, string(b))
}

// NewTextProvider returns a MockProvider that always answers with text.
func NewTextProvider(name, text string) *MockProvider {
	return &MockProvider{
		Name_: name,
		CompleteFunc: func(_ context.Context, _ models.Prompt) (string, error) {
			return text, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(name string, err error) *MockProvider {
	return &MockProvider{
		Name_: name,
		CompleteFunc: func(_ context.Context, _ models.Prompt) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until the context is
// cancelled.
func NewTimeoutProvider(name string) *MockProvider {
	return &MockProvider{
		Name_: name,
		CompleteFunc: func(ctx context.Context, _ models.Prompt) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Reply is one scripted answer for NewSequenceProvider.
type Reply struct {
	Text string
	Err  error
}

// NewSequenceProvider returns a MockProvider that answers with replies in
// FIFO order and fails with a transient error once they run out.
func NewSequenceProvider(name string, replies ...Reply) *MockProvider {
	var mu sync.Mutex
	queue := append([]Reply(nil), replies...)
	return &MockProvider{
		Name_: name,
		CompleteFunc: func(_ context.Context, _ models.Prompt) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(queue) == 0 {
				return "", &ai.TransientProviderError{Provider: name, Err: ai.ErrProbeFailed}
			}
			r := queue[0]
			queue = queue[1:]
			return r.Text, r.Err
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
