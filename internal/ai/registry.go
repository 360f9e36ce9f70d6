package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// MaxErrorCount is the error count at which a provider stops being eligible.
const MaxErrorCount = 3

type registeredProvider struct {
	client models.AIProvider
	info   models.ProviderInfo
}

func (p *registeredProvider) eligible() bool {
	return p.info.IsHealthy && p.info.ErrorCount < MaxErrorCount
}

// Registry tracks configured providers, their health and the current selection.
// All methods are safe for concurrent use; selection and error-count updates
// happen under one lock.
type Registry struct {
	mu        sync.Mutex
	providers []*registeredProvider
	current   int
	pinned    bool
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates an empty Registry. A nil logger falls back to zap.L().
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.L()
	}
	return &Registry{
		current: -1,
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds a provider. Providers stay sorted by priority (lower first,
// ties in registration order). The first provider becomes current; a later
// one replaces it only with a strictly better priority than the current
// provider and only while no switch has pinned the selection.
func (r *Registry) Register(client models.AIProvider, kind models.ProviderKind, priority int) error {
	if client == nil {
		return fmt.Errorf("register provider: nil client")
	}
	name := client.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.providers {
		if p.info.Name == name {
			return fmt.Errorf("register provider: duplicate name %q", name)
		}
	}

	var (
		currentName     string
		currentPriority int
	)
	if r.current >= 0 {
		currentName = r.providers[r.current].info.Name
		currentPriority = r.providers[r.current].info.Priority
	}

	r.providers = append(r.providers, &registeredProvider{
		client: client,
		info: models.ProviderInfo{
			Name:      name,
			Type:      kind,
			Priority:  priority,
			IsHealthy: true,
		},
	})
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].info.Priority < r.providers[j].info.Priority
	})

	switch {
	case currentName == "":
		r.current = 0
	case !r.pinned && priority < currentPriority:
		r.current = r.indexOf(name)
	default:
		r.current = r.indexOf(currentName)
	}
	return nil
}

// Current returns the current provider if it is eligible, otherwise promotes
// the first eligible provider in priority order. Returns nil if none is eligible.
func (r *Registry) Current() models.AIProvider {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current >= 0 && r.providers[r.current].eligible() {
		return r.providers[r.current].client
	}
	for i, p := range r.providers {
		if p.eligible() {
			r.logger.Info("ai provider selected",
				zap.String("provider", p.info.Name),
				zap.String("reason", "current provider not eligible"))
			r.current = i
			return p.client
		}
	}
	return nil
}

// Status returns a snapshot of all providers and the current selection.
func (r *Registry) Status() models.ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := models.ProviderStatus{AllProviders: make([]models.ProviderInfo, 0, len(r.providers))}
	if r.current >= 0 {
		status.CurrentProvider = r.providers[r.current].info.Name
	}
	for _, p := range r.providers {
		info := p.info
		if info.LastChecked != nil {
			t := *info.LastChecked
			info.LastChecked = &t
		}
		status.AllProviders = append(status.AllProviders, info)
	}
	return status
}

// MarkTemporarilyFailed increments the provider's error count and flags it
// unhealthy once the count reaches MaxErrorCount. Unknown names are ignored.
func (r *Registry) MarkTemporarilyFailed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markFailedLocked(name)
}

func (r *Registry) markFailedLocked(name string) {
	i := r.indexOf(name)
	if i < 0 {
		return
	}
	p := r.providers[i]
	p.info.ErrorCount++
	if p.info.ErrorCount >= MaxErrorCount && p.info.IsHealthy {
		p.info.IsHealthy = false
		r.logger.Warn("ai provider marked unhealthy",
			zap.String("provider", name),
			zap.Int("error_count", p.info.ErrorCount))
	}
}

// FailoverFrom marks failed as failed and makes the first other eligible
// provider current. If a concurrent caller already moved the selection away
// from failed, the mark is skipped and the existing selection is reused when
// it is eligible.
func (r *Registry) FailoverFrom(failed string) (models.AIProvider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current >= 0 && r.providers[r.current].info.Name != failed {
		if cur := r.providers[r.current]; cur.eligible() {
			return cur.client, true
		}
	} else {
		r.markFailedLocked(failed)
	}

	for i, p := range r.providers {
		if p.info.Name == failed || !p.eligible() {
			continue
		}
		from := ""
		if r.current >= 0 {
			from = r.providers[r.current].info.Name
		}
		r.current = i
		r.logger.Info("ai provider switched",
			zap.String("from", from),
			zap.String("to", p.info.Name),
			zap.String("reason", "failover"))
		return p.client, true
	}
	return nil, false
}

// Switch forces name to be current. Returns false if name is unknown or unhealthy.
func (r *Registry) Switch(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(name)
	if i < 0 || !r.providers[i].info.IsHealthy {
		return false
	}
	r.current = i
	r.pinned = true
	r.logger.Info("ai provider switched",
		zap.String("to", name),
		zap.String("reason", "manual"))
	return true
}

// RunHealthChecks probes every provider concurrently with a minimal prompt.
// A successful probe resets the error count; a failed one marks the provider
// unhealthy.
func (r *Registry) RunHealthChecks(ctx context.Context, timeout time.Duration) {
	r.mu.Lock()
	clients := make([]models.AIProvider, len(r.providers))
	for i, p := range r.providers {
		clients[i] = p.client
	}
	r.mu.Unlock()

	results := make([]error, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		g.Go(func() error {
			results[i] = probe(gctx, c, timeout)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	checked := r.now().UTC()
	for i, c := range clients {
		idx := r.indexOf(c.Name())
		if idx < 0 {
			continue
		}
		p := r.providers[idx]
		t := checked
		p.info.LastChecked = &t
		if results[i] != nil {
			p.info.IsHealthy = false
			r.logger.Warn("ai provider health check failed",
				zap.String("provider", p.info.Name),
				zap.Error(results[i]))
			continue
		}
		p.info.IsHealthy = true
		p.info.ErrorCount = 0
	}
}

func probe(ctx context.Context, c models.AIProvider, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.Complete(probeCtx, models.Prompt{
		User:      "Reply with the single word OK.",
		MaxTokens: 5,
	})
	if err != nil {
		return err
	}
	if out == "" {
		return ErrProbeFailed
	}
	return nil
}

func (r *Registry) indexOf(name string) int {
	for i, p := range r.providers {
		if p.info.Name == name {
			return i
		}
	}
	return -1
}
