package domain

const (
	PostTypePost  = "post"
	StatusPublish = "publish"
)

type Post struct {
	ID          int64
	Type        string
	Status      string
	Title       string
	Content     string
	Excerpt     string
	URL         string
	ImageURL    string
	CategoryIDs []int64
}

type Category struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// EmailTemplate is a CRM-managed message template. Subject holds the
// template post's excerpt field, Body its content.
type EmailTemplate struct {
	ID      int64  `db:"id"`
	Subject string `db:"subject"`
	Body    string `db:"body"`
}

// PublishEvent is one CMS lifecycle notification. The same logical publish
// can arrive more than once (REST insert and status transition both fire).
type PublishEvent struct {
	PostID    int64  `json:"post_id"`
	NewStatus string `json:"new_status"`
	OldStatus string `json:"old_status"`
	Origin    string `json:"origin"`
}
