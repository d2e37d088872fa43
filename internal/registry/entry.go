// Package registry implements the global paper identity registry: a durable
// map from canonical paper identity to registry entries, with DOI and
// provider-id secondary indices, three-tier identity resolution, and the
// work-determination state machine that drives the processing pipeline.
package registry

import (
	"time"

	"github.com/google/uuid"

	"github.com/litforge/paper-corpus-service/internal/domain"
)

// Entry is the registry record for one uniquely identified paper. One entry
// exists per logical paper no matter how many sources or topics reference it.
type Entry struct {
	// PaperID is the system-assigned canonical identity. Immutable once
	// created and never equal to any source-provided id.
	PaperID string `json:"paper_id"`

	// Identifiers maps provider name to the validated provider-specific id.
	Identifiers map[domain.Provider]string `json:"identifiers"`

	// TitleNormalized is the lowercase, punctuation-stripped title computed
	// once at creation. Used only as a matching fallback.
	TitleNormalized string `json:"title_normalized"`

	// ExtractionTargetHash fingerprints the requirements the paper was last
	// processed against. A mismatch on a later run triggers a backfill.
	ExtractionTargetHash string `json:"extraction_target_hash"`

	// TopicAffiliations is the set of topic slugs this paper belongs to.
	TopicAffiliations []string `json:"topic_affiliations"`

	// ProcessedAt is the time of the last full processing or backfill.
	ProcessedAt time.Time `json:"processed_at"`

	// PDFPath and MarkdownPath reference externally produced artifacts,
	// reused on backfill so the paper is not downloaded again.
	PDFPath      string `json:"pdf_path,omitempty"`
	MarkdownPath string `json:"markdown_path,omitempty"`

	// MetadataSnapshot is the last-known descriptive metadata for the paper,
	// refreshed on every registration.
	MetadataSnapshot *domain.Paper `json:"metadata_snapshot"`
}

// newEntry constructs a registry entry for a paper seen for the first time.
// Identifier and topic validation happens here so malformed input is
// rejected before it reaches storage.
func newEntry(paper *domain.Paper, topicSlug string, requirements []domain.ExtractionRequirement, pdfPath, markdownPath string) (*Entry, error) {
	if err := domain.ValidateTopicSlug(topicSlug); err != nil {
		return nil, err
	}

	identifiers, err := domain.BuildIdentifiers(paper)
	if err != nil {
		return nil, err
	}

	snapshot := *paper
	return &Entry{
		PaperID:              uuid.New().String(),
		Identifiers:          identifiers,
		TitleNormalized:      domain.NormalizeTitle(paper.Title),
		ExtractionTargetHash: domain.ComputeRequirementsHash(requirements),
		TopicAffiliations:    []string{topicSlug},
		ProcessedAt:          time.Now().UTC(),
		PDFPath:              pdfPath,
		MarkdownPath:         markdownPath,
		MetadataSnapshot:     &snapshot,
	}, nil
}

// HasTopic returns true if the entry is already affiliated with the topic.
func (e *Entry) HasTopic(topicSlug string) bool {
	for _, t := range e.TopicAffiliations {
		if t == topicSlug {
			return true
		}
	}
	return false
}

// addTopic adds a topic affiliation. Returns false if already present.
func (e *Entry) addTopic(topicSlug string) bool {
	if e.HasTopic(topicSlug) {
		return false
	}
	e.TopicAffiliations = append(e.TopicAffiliations, topicSlug)
	return true
}

// applyRegistration refreshes the entry on a backfill or full reprocess:
// new requirements hash, new timestamp, fresh metadata snapshot, topic
// added, and artifact paths adopted when the caller produced new ones.
func (e *Entry) applyRegistration(paper *domain.Paper, topicSlug string, requirements []domain.ExtractionRequirement, pdfPath, markdownPath string) {
	e.ExtractionTargetHash = domain.ComputeRequirementsHash(requirements)
	e.ProcessedAt = time.Now().UTC()

	snapshot := *paper
	e.MetadataSnapshot = &snapshot

	e.addTopic(topicSlug)

	if pdfPath != "" {
		e.PDFPath = pdfPath
	}
	if markdownPath != "" {
		e.MarkdownPath = markdownPath
	}
}

// Clone returns a deep copy of the entry. Public store methods hand out
// clones so callers can never mutate persisted state behind the store's
// back.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	clone := *e

	clone.Identifiers = make(map[domain.Provider]string, len(e.Identifiers))
	for k, v := range e.Identifiers {
		clone.Identifiers[k] = v
	}

	clone.TopicAffiliations = append([]string(nil), e.TopicAffiliations...)

	if e.MetadataSnapshot != nil {
		snapshot := *e.MetadataSnapshot
		clone.MetadataSnapshot = &snapshot
	}

	return &clone
}
