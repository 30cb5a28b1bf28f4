package service

import "post_notifier/internal/domain"

// Match is the outcome of evaluating the rule list against a post's
// category set.
type Match struct {
	TagIDs      []int64
	CategoryIDs []int64
	TemplateID  int64
}

// Empty reports whether no rule matched.
func (m Match) Empty() bool {
	return len(m.TagIDs) == 0
}

// MatchRules evaluates every rule against the post's current categories.
// Inert rules (unset category or tag) are skipped. Tag and category IDs are
// deduplicated; the first matching rule that names a template wins template
// selection and later matches never override it.
func MatchRules(rules []domain.Rule, categoryIDs []int64) Match {
	inCategories := make(map[int64]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		inCategories[id] = struct{}{}
	}

	var m Match
	seenTags := make(map[int64]struct{})
	seenCategories := make(map[int64]struct{})

	for _, rule := range rules {
		if !rule.Valid() {
			continue
		}
		if _, ok := inCategories[rule.CategoryID]; !ok {
			continue
		}

		if _, ok := seenTags[rule.TagID]; !ok {
			seenTags[rule.TagID] = struct{}{}
			m.TagIDs = append(m.TagIDs, rule.TagID)
		}
		if _, ok := seenCategories[rule.CategoryID]; !ok {
			seenCategories[rule.CategoryID] = struct{}{}
			m.CategoryIDs = append(m.CategoryIDs, rule.CategoryID)
		}
		if m.TemplateID == 0 && rule.TemplateID != 0 {
			m.TemplateID = rule.TemplateID
		}
	}

	return m
}
