package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"post_notifier/internal/domain"
)

const sentMetaKey = "notification_sent_at"

// PostStore reads CMS post data. Everything here is read-only except the
// sent marker row in post_meta.
type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// Post returns the post with its category set. Categories are read in a
// separate query against the assignment table so the set is current even
// when terms were saved in the same request that triggered the event.
func (s *PostStore) Post(ctx context.Context, id int64) (*domain.Post, error) {
	var row struct {
		ID       int64          `db:"id"`
		Type     string         `db:"type"`
		Status   string         `db:"status"`
		Title    string         `db:"title"`
		Content  string         `db:"content"`
		Excerpt  sql.NullString `db:"excerpt"`
		URL      string         `db:"url"`
		ImageURL sql.NullString `db:"image_url"`
	}

	query := `
		SELECT id, type, status, title, content, excerpt, url, image_url
		FROM posts
		WHERE id = $1`

	err := s.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select post: %w", err)
	}

	var categoryIDs []int64
	err = s.db.SelectContext(ctx, &categoryIDs,
		"SELECT category_id FROM post_categories WHERE post_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("select post categories: %w", err)
	}

	return &domain.Post{
		ID:          row.ID,
		Type:        row.Type,
		Status:      row.Status,
		Title:       row.Title,
		Content:     row.Content,
		Excerpt:     row.Excerpt.String,
		URL:         row.URL,
		ImageURL:    row.ImageURL.String,
		CategoryIDs: categoryIDs,
	}, nil
}

func (s *PostStore) CategoryNames(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var names []string
	err := s.db.SelectContext(ctx, &names,
		"SELECT name FROM categories WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select category names: %w", err)
	}
	return names, nil
}

func (s *PostStore) AlreadySent(ctx context.Context, postID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM post_meta WHERE post_id = $1 AND meta_key = $2)",
		postID, sentMetaKey)
	if err != nil {
		return false, fmt.Errorf("check sent marker: %w", err)
	}
	return exists, nil
}

// TryMarkSent is the atomic check-and-set behind the duplicate-send guard.
// The primary key on (post_id, meta_key) makes the insert race-safe: of two
// concurrent dispatches exactly one sees rows affected.
func (s *PostStore) TryMarkSent(ctx context.Context, postID int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO post_meta (post_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, meta_key) DO NOTHING`,
		postID, sentMetaKey, at.Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert sent marker: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
