package domain

import (
	"fmt"
	"regexp"
)

// maxTopicSlugLength bounds topic slugs so they stay usable as directory
// names and event keys.
const maxTopicSlugLength = 64

// topicSlugPattern matches lowercase alphanumeric runs separated by single
// hyphens or underscores. No leading, trailing, or doubled separators.
var topicSlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// ValidateTopicSlug checks that a topic slug is usable as a stable key for
// registry entries and checkpoint files. Slugs are lowercase alphanumeric
// with single hyphen or underscore separators, at most 64 characters.
func ValidateTopicSlug(slug string) error {
	if slug == "" {
		return NewValidationError("topic_slug", "must not be empty")
	}
	if len(slug) > maxTopicSlugLength {
		return NewValidationError("topic_slug", fmt.Sprintf("must be at most %d characters", maxTopicSlugLength))
	}
	if !topicSlugPattern.MatchString(slug) {
		return NewValidationError("topic_slug", "must be lowercase alphanumeric with single '-' or '_' separators")
	}
	return nil
}
