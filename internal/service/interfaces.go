package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"post_notifier/internal/domain"
)

type RuleStore interface {
	Rules(ctx context.Context) ([]domain.Rule, error)
	SaveRules(ctx context.Context, rules []domain.Rule) error
}

type PostStore interface {
	// Post returns the post with its category set read fresh, or nil when
	// no such post exists.
	Post(ctx context.Context, id int64) (*domain.Post, error)
	CategoryNames(ctx context.Context, ids []int64) ([]string, error)
	AlreadySent(ctx context.Context, postID int64) (bool, error)
	// TryMarkSent records the sent marker and reports whether this caller
	// set it. A false return means another dispatch got there first.
	TryMarkSent(ctx context.Context, postID int64, at time.Time) (bool, error)
}

type ContactStore interface {
	ByTags(ctx context.Context, tagIDs []int64, limit int) ([]domain.Contact, error)
}

type TemplateStore interface {
	// Template returns nil without error when the id resolves to nothing.
	Template(ctx context.Context, id int64) (*domain.EmailTemplate, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string, html bool) error
}
