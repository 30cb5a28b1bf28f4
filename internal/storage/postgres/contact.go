package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"post_notifier/internal/domain"
)

// ContactStore reads the CRM contact list. The CRM owns these tables; this
// store never writes them.
type ContactStore struct {
	db *sqlx.DB
}

func NewContactStore(db *sqlx.DB) *ContactStore {
	return &ContactStore{db: db}
}

// ByTags returns subscribed contacts holding at least one of the given
// tags, de-duplicated by contact id. The limit caps the batch; callers are
// expected to log when the cap is hit.
func (s *ContactStore) ByTags(ctx context.Context, tagIDs []int64, limit int) ([]domain.Contact, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT c.id, c.email, c.first_name, c.hash, c.status
		FROM contacts c
		INNER JOIN contact_tags ct ON ct.contact_id = c.id
		WHERE ct.tag_id = ANY($1) AND c.status = $2
		ORDER BY c.id
		LIMIT $3`

	var contacts []domain.Contact
	err := s.db.SelectContext(ctx, &contacts, query,
		pq.Array(tagIDs), domain.ContactStatusSubscribed, limit)
	if err != nil {
		return nil, fmt.Errorf("select contacts by tags: %w", err)
	}
	return contacts, nil
}

// Ping reports whether the CRM contact tables are reachable. The admin API
// uses it to surface the CRM-inactive warning.
func (s *ContactStore) Ping(ctx context.Context) error {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM contacts"); err != nil {
		return fmt.Errorf("crm contacts unavailable: %w", err)
	}
	return nil
}
