package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/internal/store"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mdmdedup_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	// A second run finds nothing to apply.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Integration ---

func TestIntegration_RuleLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	energy := rules.EnergyDivisionsRule()
	require.NoError(t, s.CreateRule(ctx, &energy))
	assert.ErrorIs(t, s.CreateRule(ctx, &energy), store.ErrDuplicateKey)

	got, err := s.GetRule(ctx, energy.ID)
	require.NoError(t, err)
	assert.Equal(t, energy.Expression, got.Expression)
	assert.Equal(t, energy.Conditions, got.Conditions)
	assert.Equal(t, energy.Actions, got.Actions)

	got.Enabled = false
	require.NoError(t, s.UpdateRule(ctx, got))
	assert.Equal(t, 2, got.Version)

	enabled, err := s.ListRules(ctx, store.RuleFilter{EnabledOnly: true})
	require.NoError(t, err)
	assert.Empty(t, enabled)

	all, err := s.ListRules(ctx, store.RuleFilter{Category: rules.CategoryBusinessRelationship})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	res := &models.TestResult{ID: uuid.New(), RuleID: energy.ID, Accuracy: 100, Passed: 2, TotalTests: 2,
		CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateTestResult(ctx, res))
	results, err := s.ListTestResults(ctx, energy.ID, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 100.0, results[0].Accuracy, 1e-9)

	require.NoError(t, s.DeleteRule(ctx, energy.ID))
	_, err = s.GetRule(ctx, energy.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIntegration_AnalysisRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	older := &models.AnalysisRecord{ID: uuid.New(), Fingerprint: "fp", Provider: "a",
		Output: models.AnalysisOutput{Recommendation: "old"}, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &models.AnalysisRecord{ID: uuid.New(), Fingerprint: "fp", Provider: "b",
		Output: models.AnalysisOutput{Recommendation: "new"}, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateAnalysisRecord(ctx, older))
	require.NoError(t, s.CreateAnalysisRecord(ctx, newer))

	got, err := s.GetLatestAnalysis(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Output.Recommendation)
}

func TestIntegration_APIKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{ID: uuid.New(), Name: "ci", KeyHash: "hash", KeyPrefix: "md_abcd",
		Scopes: []string{"analyze", "admin"}, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "md_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, []string{"analyze", "admin"}, keys[0].Scopes)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	listed, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)
	keys, err = s.GetAPIKeyByPrefix(ctx, "md_abcd")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
