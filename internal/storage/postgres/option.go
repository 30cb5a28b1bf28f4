package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"post_notifier/internal/domain"
)

// OptionStore persists the rule list as a single options row. An earlier
// deployment stored the same shape under a different key; Rules falls back
// to it when the primary key is empty. The fallback is a read-time shim,
// not a migration: SaveRules always writes the primary key.
type OptionStore struct {
	db        *sqlx.DB
	key       string
	legacyKey string
}

func NewOptionStore(db *sqlx.DB, key, legacyKey string) *OptionStore {
	return &OptionStore{db: db, key: key, legacyKey: legacyKey}
}

func (s *OptionStore) Rules(ctx context.Context) ([]domain.Rule, error) {
	rules, err := s.rulesByKey(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		return rules, nil
	}
	return s.rulesByKey(ctx, s.legacyKey)
}

func (s *OptionStore) SaveRules(ctx context.Context, rules []domain.Rule) error {
	value, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	query := `
		INSERT INTO options (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`

	if _, err := s.db.ExecContext(ctx, query, s.key, value); err != nil {
		return fmt.Errorf("save rules option: %w", err)
	}
	return nil
}

func (s *OptionStore) rulesByKey(ctx context.Context, key string) ([]domain.Rule, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, "SELECT value FROM options WHERE name = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read option %q: %w", key, err)
	}

	var rules []domain.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode option %q: %w", key, err)
	}
	return rules, nil
}
