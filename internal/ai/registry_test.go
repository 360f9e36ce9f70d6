package ai_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/ai/mock"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

func newRegistry(t *testing.T, providers ...*mock.MockProvider) *ai.Registry {
	t.Helper()
	reg := ai.NewRegistry(zap.NewNop())
	for i, p := range providers {
		require.NoError(t, reg.Register(p, models.ProviderMock, i+1))
	}
	return reg
}

func infoFor(t *testing.T, reg *ai.Registry, name string) models.ProviderInfo {
	t.Helper()
	for _, p := range reg.Status().AllProviders {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("provider %q not registered", name)
	return models.ProviderInfo{}
}

// --- Register ---

func TestRegister_SortsByPriority(t *testing.T) {
	reg := ai.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(mock.NewMockProvider("slow"), models.ProviderOllama, 5))
	require.NoError(t, reg.Register(mock.NewMockProvider("fast"), models.ProviderOpenAI, 1))
	require.NoError(t, reg.Register(mock.NewMockProvider("tie"), models.ProviderGemini, 5))

	status := reg.Status()
	assert.Equal(t, "fast", status.CurrentProvider)
	names := []string{}
	for _, p := range status.AllProviders {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"fast", "slow", "tie"}, names)
	assert.Equal(t, models.ProviderOpenAI, status.AllProviders[0].Type)
	assert.True(t, status.AllProviders[0].IsHealthy)
	assert.Nil(t, status.AllProviders[0].LastChecked)
}

func TestRegister_RejectsDuplicateAndNil(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"))
	assert.Error(t, reg.Register(mock.NewMockProvider("a"), models.ProviderMock, 2))
	assert.Error(t, reg.Register(nil, models.ProviderMock, 2))
}

func TestRegister_PinnedSelectionSurvives(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"), mock.NewMockProvider("b"))
	require.True(t, reg.Switch("b"))

	require.NoError(t, reg.Register(mock.NewMockProvider("c"), models.ProviderMock, 0))
	assert.Equal(t, "b", reg.Status().CurrentProvider)
}

func TestRegister_KeepsFailedOverSelection(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"), mock.NewMockProvider("b"))
	next, ok := reg.FailoverFrom("a")
	require.True(t, ok)
	require.Equal(t, "b", next.Name())

	require.NoError(t, reg.Register(mock.NewMockProvider("c"), models.ProviderMock, 3))
	assert.Equal(t, "b", reg.Status().CurrentProvider)

	// Equal priority is not strictly better.
	require.NoError(t, reg.Register(mock.NewMockProvider("d"), models.ProviderMock, 2))
	assert.Equal(t, "b", reg.Status().CurrentProvider)

	require.NoError(t, reg.Register(mock.NewMockProvider("e"), models.ProviderMock, 0))
	assert.Equal(t, "e", reg.Status().CurrentProvider)
}

// --- Current ---

func TestCurrent_EmptyRegistry(t *testing.T) {
	reg := ai.NewRegistry(nil)
	assert.Nil(t, reg.Current())
	assert.Equal(t, "", reg.Status().CurrentProvider)
}

func TestCurrent_PromotesEligible(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"), mock.NewMockProvider("b"))
	for i := 0; i < ai.MaxErrorCount; i++ {
		reg.MarkTemporarilyFailed("a")
	}

	p := reg.Current()
	require.NotNil(t, p)
	assert.Equal(t, "b", p.Name())
	assert.Equal(t, "b", reg.Status().CurrentProvider)
}

func TestCurrent_NoneEligible(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"))
	for i := 0; i < ai.MaxErrorCount; i++ {
		reg.MarkTemporarilyFailed("a")
	}
	assert.Nil(t, reg.Current())
}

// --- MarkTemporarilyFailed ---

func TestMarkTemporarilyFailed_Threshold(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"))

	reg.MarkTemporarilyFailed("a")
	reg.MarkTemporarilyFailed("a")
	info := infoFor(t, reg, "a")
	assert.Equal(t, 2, info.ErrorCount)
	assert.True(t, info.IsHealthy)

	reg.MarkTemporarilyFailed("a")
	info = infoFor(t, reg, "a")
	assert.Equal(t, 3, info.ErrorCount)
	assert.False(t, info.IsHealthy)

	reg.MarkTemporarilyFailed("unknown")
}

// --- FailoverFrom ---

func TestFailoverFrom_SelectsNextInPriority(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"), mock.NewMockProvider("b"), mock.NewMockProvider("c"))

	next, ok := reg.FailoverFrom("a")
	require.True(t, ok)
	assert.Equal(t, "b", next.Name())
	assert.Equal(t, 1, infoFor(t, reg, "a").ErrorCount)
	assert.Equal(t, "b", reg.Status().CurrentProvider)
}

func TestFailoverFrom_NoneLeft(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"))
	_, ok := reg.FailoverFrom("a")
	assert.False(t, ok)
}

func TestFailoverFrom_ConcurrentCallersMarkOnce(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"), mock.NewMockProvider("b"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, ok := reg.FailoverFrom("a")
			assert.True(t, ok)
			assert.Equal(t, "b", next.Name())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, infoFor(t, reg, "a").ErrorCount)
	assert.Equal(t, "b", reg.Status().CurrentProvider)
}

// Property: a provider with errorCount >= 3 is never chosen as a failover target.
func TestFailoverFrom_NeverSelectsExhaustedProviders(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 2 + rng.Intn(5)
		reg := ai.NewRegistry(zap.NewNop())
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("p%d", i)
			require.NoError(t, reg.Register(mock.NewMockProvider(name), models.ProviderMock, rng.Intn(10)))
			for j := rng.Intn(5); j > 0; j-- {
				reg.MarkTemporarilyFailed(name)
			}
		}

		cur := reg.Current()
		if cur == nil {
			continue
		}
		for hop := 0; hop < n; hop++ {
			next, ok := reg.FailoverFrom(cur.Name())
			if !ok {
				break
			}
			info := infoFor(t, reg, next.Name())
			assert.Less(t, info.ErrorCount, ai.MaxErrorCount)
			assert.True(t, info.IsHealthy)
			cur = next
		}
	}
}

// --- Switch ---

func TestSwitch(t *testing.T) {
	reg := newRegistry(t, mock.NewMockProvider("a"), mock.NewMockProvider("b"))

	assert.True(t, reg.Switch("b"))
	assert.Equal(t, "b", reg.Current().Name())

	assert.False(t, reg.Switch("missing"))

	for i := 0; i < ai.MaxErrorCount; i++ {
		reg.MarkTemporarilyFailed("a")
	}
	assert.False(t, reg.Switch("a"))
	assert.Equal(t, "b", reg.Status().CurrentProvider)
}

// --- RunHealthChecks ---

func TestRunHealthChecks_ResetsAndMarks(t *testing.T) {
	good := mock.NewTextProvider("good", "OK")
	bad := mock.NewFailingProvider("bad", errors.New("connection refused"))
	empty := mock.NewTextProvider("empty", "")
	reg := newRegistry(t, good, bad, empty)

	reg.MarkTemporarilyFailed("good")
	reg.MarkTemporarilyFailed("good")

	reg.RunHealthChecks(context.Background(), time.Second)

	g := infoFor(t, reg, "good")
	assert.True(t, g.IsHealthy)
	assert.Equal(t, 0, g.ErrorCount)
	assert.NotNil(t, g.LastChecked)

	b := infoFor(t, reg, "bad")
	assert.False(t, b.IsHealthy)
	assert.NotNil(t, b.LastChecked)

	e := infoFor(t, reg, "empty")
	assert.False(t, e.IsHealthy)

	require.Equal(t, 1, good.CallCount())
	assert.Equal(t, 5, good.Calls()[0].MaxTokens)
}

func TestRunHealthChecks_RestoresUnhealthyProvider(t *testing.T) {
	p := mock.NewTextProvider("a", "OK")
	reg := newRegistry(t, p)
	for i := 0; i < ai.MaxErrorCount; i++ {
		reg.MarkTemporarilyFailed("a")
	}
	require.Nil(t, reg.Current())

	reg.RunHealthChecks(context.Background(), time.Second)
	require.NotNil(t, reg.Current())
	assert.Equal(t, "a", reg.Current().Name())
}

func TestRunHealthChecks_ProbeTimeout(t *testing.T) {
	reg := newRegistry(t, mock.NewTimeoutProvider("slow"))
	reg.RunHealthChecks(context.Background(), 20*time.Millisecond)
	assert.False(t, infoFor(t, reg, "slow").IsHealthy)
}
