//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"post_notifier/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_options.up.sql"),
			filepath.Join(migrationsPath, "002_create_content.up.sql"),
			filepath.Join(migrationsPath, "003_create_crm.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM options")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM post_meta")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM post_categories")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM posts")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM categories")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM contact_tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM contacts")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM email_templates")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

const (
	primaryKey = "post_notification_rules"
	legacyKey  = "reading_program_rules"
)

func (s *PostgresIntegrationSuite) optionStore() *OptionStore {
	return NewOptionStore(s.db, primaryKey, legacyKey)
}

func (s *PostgresIntegrationSuite) TestOptionStore_SaveAndLoad() {
	store := s.optionStore()

	rules := []domain.Rule{
		{CategoryID: 5, TagID: 12, TemplateID: 99},
		{CategoryID: 6, TagID: 13},
	}
	s.Require().NoError(store.SaveRules(s.ctx, rules))

	got, err := store.Rules(s.ctx)
	s.NoError(err)
	s.Equal(rules, got)
}

func (s *PostgresIntegrationSuite) TestOptionStore_LegacyFallback() {
	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO options (name, value) VALUES ($1, $2)",
		legacyKey, `[{"category_id":5,"tag_id":12}]`)
	s.Require().NoError(err)

	got, err := s.optionStore().Rules(s.ctx)
	s.NoError(err)
	s.Equal([]domain.Rule{{CategoryID: 5, TagID: 12}}, got)
}

func (s *PostgresIntegrationSuite) TestOptionStore_PrimaryBeatsLegacy() {
	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO options (name, value) VALUES ($1, $2), ($3, $4)",
		primaryKey, `[{"category_id":1,"tag_id":2}]`,
		legacyKey, `[{"category_id":5,"tag_id":12}]`)
	s.Require().NoError(err)

	got, err := s.optionStore().Rules(s.ctx)
	s.NoError(err)
	s.Equal([]domain.Rule{{CategoryID: 1, TagID: 2}}, got)
}

func (s *PostgresIntegrationSuite) TestOptionStore_BothKeysEmpty() {
	got, err := s.optionStore().Rules(s.ctx)
	s.NoError(err)
	s.Empty(got)
}

func (s *PostgresIntegrationSuite) seedPost(id int64, categoryIDs ...int64) {
	_, err := s.db.ExecContext(s.ctx, `
		INSERT INTO posts (id, type, status, title, content, excerpt, url)
		VALUES ($1, 'post', 'publish', 'Week 1', 'In the beginning.', 'Genesis 1-3', 'https://example.com/week-1')`,
		id)
	s.Require().NoError(err)

	for _, cid := range categoryIDs {
		_, err := s.db.ExecContext(s.ctx,
			"INSERT INTO categories (id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			cid, "Category "+string(rune('0'+cid)))
		s.Require().NoError(err)
		_, err = s.db.ExecContext(s.ctx,
			"INSERT INTO post_categories (post_id, category_id) VALUES ($1, $2)", id, cid)
		s.Require().NoError(err)
	}
}

func (s *PostgresIntegrationSuite) TestPostStore_PostWithCategories() {
	s.seedPost(42, 5, 6)

	post, err := NewPostStore(s.db).Post(s.ctx, 42)
	s.NoError(err)
	s.Require().NotNil(post)
	s.Equal("Week 1", post.Title)
	s.Equal("publish", post.Status)
	s.ElementsMatch([]int64{5, 6}, post.CategoryIDs)
}

func (s *PostgresIntegrationSuite) TestPostStore_PostNotFound() {
	post, err := NewPostStore(s.db).Post(s.ctx, 404)
	s.NoError(err)
	s.Nil(post)
}

func (s *PostgresIntegrationSuite) TestPostStore_CategoryNames() {
	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO categories (id, name) VALUES (5, 'Reading Plan'), (6, 'Devotional')")
	s.Require().NoError(err)

	names, err := NewPostStore(s.db).CategoryNames(s.ctx, []int64{5, 6})
	s.NoError(err)
	s.Equal([]string{"Reading Plan", "Devotional"}, names)
}

func (s *PostgresIntegrationSuite) TestPostStore_SentMarkerCheckAndSet() {
	store := NewPostStore(s.db)
	now := time.Now().UTC()

	sent, err := store.AlreadySent(s.ctx, 42)
	s.NoError(err)
	s.False(sent)

	won, err := store.TryMarkSent(s.ctx, 42, now)
	s.NoError(err)
	s.True(won)

	sent, err = store.AlreadySent(s.ctx, 42)
	s.NoError(err)
	s.True(sent)

	// Second dispatch loses the race.
	won, err = store.TryMarkSent(s.ctx, 42, now)
	s.NoError(err)
	s.False(won)
}

func (s *PostgresIntegrationSuite) seedContact(id int64, email, status string, tagIDs ...int64) {
	_, err := s.db.ExecContext(s.ctx, `
		INSERT INTO contacts (id, email, first_name, hash, status)
		VALUES ($1, $2, 'Ana', 'hash', $3)`,
		id, email, status)
	s.Require().NoError(err)

	for _, tid := range tagIDs {
		_, err := s.db.ExecContext(s.ctx,
			"INSERT INTO tags (id, title) VALUES ($1, 'tag') ON CONFLICT DO NOTHING", tid)
		s.Require().NoError(err)
		_, err = s.db.ExecContext(s.ctx,
			"INSERT INTO contact_tags (contact_id, tag_id) VALUES ($1, $2)", id, tid)
		s.Require().NoError(err)
	}
}

func (s *PostgresIntegrationSuite) TestContactStore_ByTags_DeduplicatesAcrossTags() {
	s.seedContact(1, "a@example.com", "subscribed", 12, 13)
	s.seedContact(2, "b@example.com", "subscribed", 13)

	contacts, err := NewContactStore(s.db).ByTags(s.ctx, []int64{12, 13}, 100)
	s.NoError(err)
	s.Len(contacts, 2)
}

func (s *PostgresIntegrationSuite) TestContactStore_ByTags_FiltersUnsubscribed() {
	s.seedContact(1, "a@example.com", "subscribed", 12)
	s.seedContact(2, "b@example.com", "unsubscribed", 12)

	contacts, err := NewContactStore(s.db).ByTags(s.ctx, []int64{12}, 100)
	s.NoError(err)
	s.Require().Len(contacts, 1)
	s.Equal("a@example.com", contacts[0].Email)
}

func (s *PostgresIntegrationSuite) TestContactStore_ByTags_AppliesLimit() {
	s.seedContact(1, "a@example.com", "subscribed", 12)
	s.seedContact(2, "b@example.com", "subscribed", 12)
	s.seedContact(3, "c@example.com", "subscribed", 12)

	contacts, err := NewContactStore(s.db).ByTags(s.ctx, []int64{12}, 2)
	s.NoError(err)
	s.Len(contacts, 2)
}

func (s *PostgresIntegrationSuite) TestContactStore_ByTags_EmptyTagSet() {
	contacts, err := NewContactStore(s.db).ByTags(s.ctx, nil, 100)
	s.NoError(err)
	s.Empty(contacts)
}

func (s *PostgresIntegrationSuite) TestContactStore_Ping() {
	s.NoError(NewContactStore(s.db).Ping(s.ctx))
}

func (s *PostgresIntegrationSuite) TestTemplateStore_Fetch() {
	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO email_templates (id, subject, body) VALUES (99, '{{post_title}}', 'Read: {{post_link}}')")
	s.Require().NoError(err)

	tmpl, err := NewTemplateStore(s.db).Template(s.ctx, 99)
	s.NoError(err)
	s.Require().NotNil(tmpl)
	s.Equal("{{post_title}}", tmpl.Subject)
	s.Equal("Read: {{post_link}}", tmpl.Body)
}

func (s *PostgresIntegrationSuite) TestTemplateStore_NotFound() {
	tmpl, err := NewTemplateStore(s.db).Template(s.ctx, 404)
	s.NoError(err)
	s.Nil(tmpl)
}
