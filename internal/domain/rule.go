package domain

// Rule maps one post category to one CRM tag, optionally naming a CRM
// template to use for the message body.
type Rule struct {
	CategoryID int64 `json:"category_id"`
	TagID      int64 `json:"tag_id"`
	TemplateID int64 `json:"template_id,omitempty"`
}

// Valid reports whether the rule can participate in matching. Rules with
// an unset category or tag are inert and skipped, not errors.
func (r Rule) Valid() bool {
	return r.CategoryID != 0 && r.TagID != 0
}
