package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"post_notifier/internal/config"
	"post_notifier/internal/domain"
	"post_notifier/internal/render"
)

// NotificationService reacts to post-publish events: it matches the post's
// categories against the configured rules, renders a message and sends one
// email per subscribed contact holding a target tag.
//
// Re-dispatch for an already-processed post is prevented by the per-post
// sent marker. The marker is set with an atomic check-and-set once a
// non-empty match is found and before any mail goes out; it is never rolled
// back, so a post that was edited or re-published later stays silent. That
// is a policy, not a bug.
type NotificationService struct {
	rules     RuleStore
	posts     PostStore
	contacts  ContactStore
	templates TemplateStore
	mailer    Mailer
	logger    *slog.Logger
	config    config.NotifierConfig
}

func NewNotificationService(
	rules RuleStore,
	posts PostStore,
	contacts ContactStore,
	templates TemplateStore,
	mailer Mailer,
	logger *slog.Logger,
	cfg config.NotifierConfig,
) *NotificationService {
	return &NotificationService{
		rules:     rules,
		posts:     posts,
		contacts:  contacts,
		templates: templates,
		mailer:    mailer,
		logger:    logger,
		config:    cfg,
	}
}

// HandlePublish processes one lifecycle event. Precondition failures (wrong
// transition, unknown post, wrong type, already sent, no rules, no match)
// are silent no-ops returning (nil, nil); only infrastructure failures
// surface as errors.
func (s *NotificationService) HandlePublish(ctx context.Context, event domain.PublishEvent) (*domain.DispatchStats, error) {
	startTime := time.Now()
	logger := s.logger.With("post_id", event.PostID, "origin", event.Origin)

	if event.NewStatus != domain.StatusPublish || event.OldStatus == domain.StatusPublish {
		logger.Debug("skipping event, not a publish transition",
			"new_status", event.NewStatus,
			"old_status", event.OldStatus,
		)
		return nil, nil
	}

	sent, err := s.posts.AlreadySent(ctx, event.PostID)
	if err != nil {
		return nil, fmt.Errorf("check sent marker: %w", err)
	}
	if sent {
		logger.Debug("skipping event, notification already sent")
		return nil, nil
	}

	post, err := s.posts.Post(ctx, event.PostID)
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if post == nil {
		logger.Debug("skipping event, post not found")
		return nil, nil
	}
	if post.Type != domain.PostTypePost || post.Status != domain.StatusPublish {
		logger.Debug("skipping event, wrong post type or status",
			"type", post.Type,
			"status", post.Status,
		)
		return nil, nil
	}

	rules, err := s.rules.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		logger.Debug("skipping event, no rules configured")
		return nil, nil
	}

	match := MatchRules(rules, post.CategoryIDs)
	if match.Empty() {
		logger.Debug("skipping event, no matching rule", "categories", post.CategoryIDs)
		return nil, nil
	}

	won, err := s.posts.TryMarkSent(ctx, post.ID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark sent: %w", err)
	}
	if !won {
		logger.Info("skipping event, another dispatch already claimed this post")
		return nil, nil
	}

	msg, err := s.renderSkeleton(ctx, post, match, logger)
	if err != nil {
		return nil, err
	}

	contacts, err := s.contacts.ByTags(ctx, match.TagIDs, s.config.ContactLimit)
	if err != nil {
		return nil, fmt.Errorf("resolve contacts: %w", err)
	}
	if len(contacts) == s.config.ContactLimit {
		logger.Warn("contact batch limit reached, recipients beyond it are dropped",
			"limit", s.config.ContactLimit,
		)
	}

	stats := &domain.DispatchStats{
		PostID:   post.ID,
		Tags:     len(match.TagIDs),
		Contacts: len(contacts),
	}

	for _, contact := range contacts {
		if contact.Email == "" {
			stats.Skipped++
			continue
		}

		final := render.Personalize(msg, contact.FirstName, s.unsubscribeURL(contact))
		if err := s.mailer.Send(ctx, contact.Email, final.Subject, final.Body, final.HTML); err != nil {
			logger.Warn("send failed, continuing with remaining contacts",
				"contact_id", contact.ID,
				"error", err,
			)
			stats.Errors++
			continue
		}
		stats.Sent++
	}

	stats.Duration = time.Since(startTime)

	logger.Info("dispatch completed",
		"tags", stats.Tags,
		"contacts", stats.Contacts,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// renderSkeleton builds the per-post message shared by all recipients. A
// configured template that cannot be resolved degrades to the default
// rendering instead of failing the dispatch.
func (s *NotificationService) renderSkeleton(ctx context.Context, post *domain.Post, match Match, logger *slog.Logger) (render.Message, error) {
	if match.TemplateID != 0 {
		tmpl, err := s.templates.Template(ctx, match.TemplateID)
		if err != nil {
			return render.Message{}, fmt.Errorf("load template: %w", err)
		}
		if tmpl != nil {
			return render.FromTemplate(post, tmpl, s.config.SiteName), nil
		}
		logger.Warn("template not found, falling back to default message",
			"template_id", match.TemplateID,
		)
	}

	names, err := s.posts.CategoryNames(ctx, match.CategoryIDs)
	if err != nil {
		return render.Message{}, fmt.Errorf("load category names: %w", err)
	}
	return render.Default(post, names, s.config.SiteName), nil
}

func (s *NotificationService) unsubscribeURL(contact domain.Contact) string {
	return fmt.Sprintf("%s/?crm=manage_subscription&contact_hash=%s&contact_id=%d",
		strings.TrimSuffix(s.config.SiteURL, "/"),
		url.QueryEscape(contact.Hash),
		contact.ID,
	)
}
