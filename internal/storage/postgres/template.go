package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"post_notifier/internal/domain"
)

type TemplateStore struct {
	db *sqlx.DB
}

func NewTemplateStore(db *sqlx.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Template returns nil without error when the id does not resolve; the
// caller degrades to default rendering rather than failing the dispatch.
func (s *TemplateStore) Template(ctx context.Context, id int64) (*domain.EmailTemplate, error) {
	var tmpl domain.EmailTemplate
	err := s.db.GetContext(ctx, &tmpl,
		"SELECT id, subject, body FROM email_templates WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select template: %w", err)
	}
	return &tmpl, nil
}
