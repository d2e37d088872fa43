// Package filter orders papers by relevance to the batch query. It only
// orders: no paper is ever dropped, papers matching nothing sink to the
// tail in their original relative order.
package filter

import (
	"sort"
	"strings"

	"github.com/litforge/paper-corpus-service/internal/domain"
)

// Per-hit weights. A query term found in the title counts more than one
// found only in the abstract.
const (
	titleWeight    = 2.0
	abstractWeight = 1.0
)

// Ranker scores papers against a free-text query using normalized word
// matching. It is stateless and safe for concurrent use.
type Ranker struct{}

// NewRanker creates a new Ranker.
func NewRanker() *Ranker {
	return &Ranker{}
}

// Rank returns the papers ordered by descending relevance to the query.
// The sort is stable, so equal scores keep their input order, and the
// input slice is left untouched. An empty query returns the input order.
func (r *Ranker) Rank(papers []*domain.Paper, query string) []*domain.Paper {
	ranked := make([]*domain.Paper, len(papers))
	copy(ranked, papers)

	terms := queryTerms(query)
	if len(terms) == 0 || len(ranked) < 2 {
		return ranked
	}

	scores := make(map[*domain.Paper]float64, len(ranked))
	for _, p := range ranked {
		scores[p] = score(p, terms)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})

	return ranked
}

// Score computes the relevance of a single paper to the query. Exposed for
// observability; Rank is the primary entry point.
func (r *Ranker) Score(paper *domain.Paper, query string) float64 {
	return score(paper, queryTerms(query))
}

// score sums per-term weights over the paper's title and abstract words.
func score(p *domain.Paper, terms []string) float64 {
	if p == nil {
		return 0
	}

	titleWords := wordSet(p.Title)
	abstractWords := wordSet(p.Abstract)

	total := 0.0
	for _, term := range terms {
		if _, ok := titleWords[term]; ok {
			total += titleWeight
		}
		if _, ok := abstractWords[term]; ok {
			total += abstractWeight
		}
	}

	return total
}

// queryTerms normalizes the query the same way titles are normalized and
// splits it into distinct words. Single-character words carry no signal
// and are dropped.
func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string

	for _, w := range strings.Fields(domain.NormalizeTitle(query)) {
		if len(w) < 2 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}

	return terms
}

// wordSet returns the distinct normalized words of a text.
func wordSet(text string) map[string]struct{} {
	words := strings.Fields(domain.NormalizeTitle(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
