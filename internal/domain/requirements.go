package domain

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ExtractionRequirement describes one field the extraction stage must pull
// out of a paper (e.g. "sample_size", "model_architecture").
type ExtractionRequirement struct {
	// Name is the field name, unique within a requirement set.
	Name string `json:"name"`

	// Description tells the extractor what the field means.
	Description string `json:"description,omitempty"`

	// Format is the expected value format ("number", "string", "list", ...).
	Format string `json:"format,omitempty"`

	// Required marks fields the extractor must not omit.
	Required bool `json:"required"`
}

// EmptyRequirementsHash is the fixed hash recorded when a paper is registered
// with no extraction requirements at all.
var EmptyRequirementsHash = hashRequirementsCanonical("requirements:empty")

// ComputeRequirementsHash computes a stable hash over a requirement set.
// The hash is order-independent and ignores case and surrounding whitespace
// in names, descriptions and formats, so it only changes when the
// requirements meaningfully change. An empty or nil set hashes to
// EmptyRequirementsHash.
func ComputeRequirementsHash(reqs []ExtractionRequirement) string {
	if len(reqs) == 0 {
		return EmptyRequirementsHash
	}

	lines := make([]string, 0, len(reqs))
	for _, r := range reqs {
		lines = append(lines, strings.Join([]string{
			canonicalField(r.Name),
			canonicalField(r.Description),
			canonicalField(r.Format),
			strconv.FormatBool(r.Required),
		}, "|"))
	}
	sort.Strings(lines)

	return hashRequirementsCanonical(strings.Join(lines, "\n"))
}

// canonicalField lowercases and trims a requirement field for hashing.
func canonicalField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// hashRequirementsCanonical hashes the canonical requirement representation.
func hashRequirementsCanonical(canonical string) string {
	hash := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", hash)
}
