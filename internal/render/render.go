// Package render builds notification subjects and bodies. A render pass
// produces a per-post skeleton shared by every recipient; contact-specific
// tokens are resolved later by Personalize.
package render

import (
	"strings"

	"post_notifier/internal/domain"
)

const (
	TokenFirstName      = "{{first_name}}"
	TokenUnsubscribeURL = "{{unsubscribe_url}}"

	defaultFirstName   = "Reader"
	defaultSubjectName = "Update"
	excerptWordLimit   = 20
)

type Message struct {
	Subject string
	Body    string
	HTML    bool
}

// FromTemplate renders a CRM template by literal substitution over a fixed
// token table, applied to both subject and body. Unknown tokens in the
// template are left as-is and no escaping is performed; template authors
// are trusted.
func FromTemplate(post *domain.Post, tmpl *domain.EmailTemplate, siteName string) Message {
	tokens := []struct {
		token string
		value string
	}{
		{"{{post_title}}", post.Title},
		{"{{post_url}}", post.URL},
		{"{{post_link}}", post.URL},
		{"{{post_excerpt}}", excerptOf(post)},
		{"{{post_content}}", post.Content},
		{"{{featured_image}}", post.ImageURL},
	}

	subject := tmpl.Subject
	body := tmpl.Body
	for _, t := range tokens {
		subject = strings.ReplaceAll(subject, t.token, t.value)
		body = strings.ReplaceAll(body, t.token, t.value)
	}

	msg := Message{Subject: subject, Body: body, HTML: true}
	return appendFooter(msg, siteName)
}

// Default composes the built-in plain-text message used when no template is
// configured or the configured one cannot be resolved. categoryNames are the
// display names of the categories that matched a rule; they are deduplicated
// here and joined with "&" for the subject line.
func Default(post *domain.Post, categoryNames []string, siteName string) Message {
	name := joinNames(categoryNames)
	if name == "" {
		name = defaultSubjectName
	}

	var b strings.Builder
	b.WriteString("Hi " + TokenFirstName + ",\n\n")
	b.WriteString("A new post has been published: " + post.Title + "\n")
	b.WriteString("Read it here: " + post.URL + "\n\n")
	b.WriteString(excerptOf(post) + "\n")

	msg := Message{
		Subject: "New " + name + ": " + post.Title,
		Body:    b.String(),
	}
	return appendFooter(msg, siteName)
}

// Personalize resolves the contact-specific tokens into a final message.
func Personalize(msg Message, firstName, unsubscribeURL string) Message {
	if firstName == "" {
		firstName = defaultFirstName
	}
	msg.Subject = strings.ReplaceAll(msg.Subject, TokenFirstName, firstName)
	msg.Body = strings.ReplaceAll(msg.Body, TokenFirstName, firstName)
	msg.Body = strings.ReplaceAll(msg.Body, TokenUnsubscribeURL, unsubscribeURL)
	return msg
}

// appendFooter adds the compliance footer unless the body already carries
// an unsubscribe token of its own.
func appendFooter(msg Message, siteName string) Message {
	if strings.Contains(msg.Body, TokenUnsubscribeURL) {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg.Body)
	if msg.HTML {
		b.WriteString("\n<hr>\n<p>You are receiving this because you signed up for ")
		b.WriteString(siteName)
		b.WriteString(" updates.<br>\n")
		b.WriteString(`<a href="` + TokenUnsubscribeURL + `">Manage Subscription</a></p>`)
		b.WriteString("\n")
	} else {
		b.WriteString("\n----------------\n")
		b.WriteString("You are receiving this because you signed up for ")
		b.WriteString(siteName)
		b.WriteString(" updates.\n")
		b.WriteString("Manage Subscription: " + TokenUnsubscribeURL + "\n")
	}
	msg.Body = b.String()
	return msg
}

func joinNames(names []string) string {
	seen := make(map[string]struct{}, len(names))
	var kept []string
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		kept = append(kept, n)
	}
	return strings.Join(kept, " & ")
}

func excerptOf(post *domain.Post) string {
	if post.Excerpt != "" {
		return post.Excerpt
	}
	return trimWords(post.Content, excerptWordLimit)
}

func trimWords(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:limit], " ") + "…"
}
