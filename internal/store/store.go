package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateRule(ctx context.Context, rule *models.BusinessRule) error
	UpdateRule(ctx context.Context, rule *models.BusinessRule) error
	GetRule(ctx context.Context, id uuid.UUID) (*models.BusinessRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]*models.BusinessRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error

	CreateTestResult(ctx context.Context, result *models.TestResult) error
	ListTestResults(ctx context.Context, ruleID uuid.UUID, limit int) ([]*models.TestResult, error)

	CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error
	GetLatestAnalysis(ctx context.Context, fingerprint string) (*models.AnalysisRecord, error)
}

// RuleFilter narrows ListRules. Zero values match everything.
type RuleFilter struct {
	Category    string
	EnabledOnly bool
}
