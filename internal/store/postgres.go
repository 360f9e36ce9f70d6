package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new PostgresStore over a pool or any DB.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()
	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Business Rules ---

const ruleColumns = `id, name, description, category, priority, enabled, version, logic, expression,
	conditions, actions, test_cases, created_at, updated_at`

// ruleJSON holds the JSONB-encoded parts of a rule.
type ruleJSON struct {
	conditions, actions, testCases []byte
}

func encodeRule(r *models.BusinessRule) (ruleJSON, error) {
	var (
		enc ruleJSON
		err error
	)
	if enc.conditions, err = json.Marshal(nonNil(r.Conditions)); err != nil {
		return enc, fmt.Errorf("encode conditions: %w", err)
	}
	if enc.actions, err = json.Marshal(nonNil(r.Actions)); err != nil {
		return enc, fmt.Errorf("encode actions: %w", err)
	}
	if enc.testCases, err = json.Marshal(nonNil(r.TestCases)); err != nil {
		return enc, fmt.Errorf("encode test cases: %w", err)
	}
	return enc, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanRule(row pgx.Row) (*models.BusinessRule, error) {
	var (
		r     models.BusinessRule
		logic string
		enc   ruleJSON
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Category, &r.Priority, &r.Enabled,
		&r.Version, &logic, &r.Expression, &enc.conditions, &enc.actions, &enc.testCases,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Logic = models.Logic(logic)
	if err := json.Unmarshal(enc.conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal(enc.actions, &r.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	if err := json.Unmarshal(enc.testCases, &r.TestCases); err != nil {
		return nil, fmt.Errorf("decode test cases: %w", err)
	}
	return &r, nil
}

// CreateRule inserts a rule. A zero ID is replaced with a new one and a
// zero version starts at 1.
func (s *PostgresStore) CreateRule(ctx context.Context, rule *models.BusinessRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Version <= 0 {
		rule.Version = 1
	}
	if rule.Logic == "" {
		rule.Logic = models.LogicAnd
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	enc, err := encodeRule(rule)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO business_rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rule.ID, rule.Name, rule.Description, rule.Category, rule.Priority, rule.Enabled,
		rule.Version, string(rule.Logic), rule.Expression, enc.conditions, enc.actions, enc.testCases,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// UpdateRule replaces a rule's definition and bumps its version. The new
// version is written back into rule.
func (s *PostgresStore) UpdateRule(ctx context.Context, rule *models.BusinessRule) error {
	enc, err := encodeRule(rule)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if rule.Logic == "" {
		rule.Logic = models.LogicAnd
	}
	err = s.db.QueryRow(ctx,
		`UPDATE business_rules SET name = $2, description = $3, category = $4, priority = $5,
		   enabled = $6, logic = $7, expression = $8, conditions = $9, actions = $10,
		   test_cases = $11, version = version + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING version, updated_at`,
		rule.ID, rule.Name, rule.Description, rule.Category, rule.Priority, rule.Enabled,
		string(rule.Logic), rule.Expression, enc.conditions, enc.actions, enc.testCases,
	).Scan(&rule.Version, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRule(ctx context.Context, id uuid.UUID) (*models.BusinessRule, error) {
	r, err := scanRule(s.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM business_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

// ListRules returns rules in application order: ascending priority, then name.
func (s *PostgresStore) ListRules(ctx context.Context, filter RuleFilter) ([]*models.BusinessRule, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.EnabledOnly {
		conditions = append(conditions, "enabled")
	}

	query := `SELECT ` + ruleColumns + ` FROM business_rules`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY priority ASC, name ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	out := []*models.BusinessRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM business_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Rule Test Results ---

func (s *PostgresStore) CreateTestResult(ctx context.Context, result *models.TestResult) error {
	results, err := json.Marshal(nonNil(result.Results))
	if err != nil {
		return fmt.Errorf("encode test case results: %w", err)
	}
	suggested, err := json.Marshal(nonNil(result.SuggestedTests))
	if err != nil {
		return fmt.Errorf("encode suggested tests: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO rule_test_results (id, rule_id, accuracy, passed, failed, total_tests,
		   avg_execution_time_ms, results, suggested_tests, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		result.ID, result.RuleID, result.Accuracy, result.Passed, result.Failed, result.TotalTests,
		result.AvgExecutionTimeMs, results, suggested, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("create test result: %w", err)
	}
	return nil
}

// ListTestResults returns the newest results for a rule first. limit is
// clamped to 1..100 and defaults to 20.
func (s *PostgresStore) ListTestResults(ctx context.Context, ruleID uuid.UUID, limit int) ([]*models.TestResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, rule_id, accuracy, passed, failed, total_tests, avg_execution_time_ms,
		   results, suggested_tests, created_at
		 FROM rule_test_results WHERE rule_id = $1 ORDER BY created_at DESC LIMIT $2`, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	defer rows.Close()

	out := []*models.TestResult{}
	for rows.Next() {
		var (
			r                  models.TestResult
			results, suggested []byte
		)
		if err := rows.Scan(&r.ID, &r.RuleID, &r.Accuracy, &r.Passed, &r.Failed, &r.TotalTests,
			&r.AvgExecutionTimeMs, &results, &suggested, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan test result: %w", err)
		}
		if err := json.Unmarshal(results, &r.Results); err != nil {
			return nil, fmt.Errorf("decode test case results: %w", err)
		}
		if err := json.Unmarshal(suggested, &r.SuggestedTests); err != nil {
			return nil, fmt.Errorf("decode suggested tests: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- Analysis Records ---

func (s *PostgresStore) CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	output, err := json.Marshal(rec.Output)
	if err != nil {
		return fmt.Errorf("encode analysis output: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO analysis_records (id, fingerprint, provider, fuzzy_score, output, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Fingerprint, rec.Provider, rec.FuzzyScore, output, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analysis record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatestAnalysis(ctx context.Context, fingerprint string) (*models.AnalysisRecord, error) {
	var (
		rec    models.AnalysisRecord
		output []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, fingerprint, provider, fuzzy_score, output, created_at
		 FROM analysis_records WHERE fingerprint = $1 ORDER BY created_at DESC LIMIT 1`, fingerprint,
	).Scan(&rec.ID, &rec.Fingerprint, &rec.Provider, &rec.FuzzyScore, &output, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest analysis: %w", err)
	}
	if err := json.Unmarshal(output, &rec.Output); err != nil {
		return nil, fmt.Errorf("decode analysis output: %w", err)
	}
	return &rec, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
