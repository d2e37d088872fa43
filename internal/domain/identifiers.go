package domain

import (
	"regexp"
	"strings"
)

// Provider names an identifier namespace. The registry stores one id per
// provider and indexes entries under "<provider>:<id>" keys.
type Provider string

const (
	ProviderDOI             Provider = "doi"
	ProviderArXiv           Provider = "arxiv"
	ProviderPubMed          Provider = "pubmed"
	ProviderPMC             Provider = "pmc"
	ProviderSemanticScholar Provider = "semantic_scholar"
	ProviderOpenAlex        Provider = "openalex"
	ProviderScopus          Provider = "scopus"

	// ProviderSource is the bucket for source ids whose provider cannot be
	// inferred from their shape. They still index exactly, just untyped.
	ProviderSource Provider = "source"
)

// Identifier shape patterns, one per provider.
var (
	// doiPattern matches DOIs: "10.1145/1234567.1234568".
	doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

	// arxivPattern matches modern arXiv ids: "2301.07041", "arXiv:2301.07041",
	// "2301.07041v2". The optional prefix is stripped on normalization.
	arxivPattern = regexp.MustCompile(`^(?:arXiv:)?(\d{4}\.\d{4,5}(?:v\d+)?)$`)

	// pmcPattern matches PubMed Central ids: "PMC8675309".
	pmcPattern = regexp.MustCompile(`^PMC\d+$`)

	// pubmedPattern matches PubMed ids, which are plain integers.
	pubmedPattern = regexp.MustCompile(`^\d{1,9}$`)

	// semanticScholarPattern matches Semantic Scholar paper SHAs.
	semanticScholarPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

	// openalexPattern matches OpenAlex work ids: "W2741809807".
	openalexPattern = regexp.MustCompile(`^W\d+$`)

	// scopusPattern matches Scopus EIDs: "2-s2.0-85051234567".
	scopusPattern = regexp.MustCompile(`^2-s2\.0-\d+$`)
)

// InferProvider determines the identifier provider from the shape of a
// source id and returns the provider together with the normalized id.
// Unrecognized shapes fall back to ProviderSource with the id as given.
func InferProvider(sourceID string) (Provider, string) {
	sourceID = strings.TrimSpace(sourceID)

	if doiPattern.MatchString(sourceID) {
		return ProviderDOI, strings.ToLower(sourceID)
	}

	if m := arxivPattern.FindStringSubmatch(sourceID); m != nil {
		return ProviderArXiv, m[1]
	}

	if pmcPattern.MatchString(sourceID) {
		return ProviderPMC, sourceID
	}

	if openalexPattern.MatchString(sourceID) {
		return ProviderOpenAlex, sourceID
	}

	if scopusPattern.MatchString(sourceID) {
		return ProviderScopus, sourceID
	}

	if semanticScholarPattern.MatchString(strings.ToLower(sourceID)) {
		return ProviderSemanticScholar, strings.ToLower(sourceID)
	}

	if pubmedPattern.MatchString(sourceID) {
		return ProviderPubMed, sourceID
	}

	return ProviderSource, sourceID
}

// ValidateIdentifier checks an identifier value against its provider's
// expected shape. ProviderSource values are accepted as long as they are
// non-blank; everything else must match the provider pattern.
func ValidateIdentifier(provider Provider, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return NewIdentifierError(provider, value, "identifier is blank")
	}

	switch provider {
	case ProviderDOI:
		if !doiPattern.MatchString(value) {
			return NewIdentifierError(provider, value, "does not match DOI format 10.NNNN/suffix")
		}
	case ProviderArXiv:
		if !arxivPattern.MatchString(value) {
			return NewIdentifierError(provider, value, "does not match arXiv id format")
		}
	case ProviderPMC:
		if !pmcPattern.MatchString(value) {
			return NewIdentifierError(provider, value, "does not match PMC id format")
		}
	case ProviderPubMed:
		if !pubmedPattern.MatchString(value) {
			return NewIdentifierError(provider, value, "does not match PubMed id format")
		}
	case ProviderSemanticScholar:
		if !semanticScholarPattern.MatchString(strings.ToLower(value)) {
			return NewIdentifierError(provider, value, "does not match Semantic Scholar SHA format")
		}
	case ProviderOpenAlex:
		if !openalexPattern.MatchString(value) {
			return NewIdentifierError(provider, value, "does not match OpenAlex work id format")
		}
	case ProviderScopus:
		if !scopusPattern.MatchString(value) {
			return NewIdentifierError(provider, value, "does not match Scopus EID format")
		}
	case ProviderSource:
		// Opaque bucket, non-blank is enough.
	default:
		return NewIdentifierError(provider, value, "unknown provider")
	}

	return nil
}

// BuildIdentifiers derives the validated provider→id map for a discovered
// paper from its DOI and source id. Blank values are dropped; malformed
// values are rejected with an IdentifierError so bad input never reaches
// storage.
func BuildIdentifiers(p *Paper) (map[Provider]string, error) {
	ids := make(map[Provider]string)

	if doi := strings.TrimSpace(p.DOI); doi != "" {
		doi = strings.ToLower(doi)
		if err := ValidateIdentifier(ProviderDOI, doi); err != nil {
			return nil, err
		}
		ids[ProviderDOI] = doi
	}

	if sid := strings.TrimSpace(p.SourceID); sid != "" {
		provider, normalized := InferProvider(sid)
		if err := ValidateIdentifier(provider, normalized); err != nil {
			return nil, err
		}
		// A DOI-shaped source id must not clobber an explicit DOI.
		if _, exists := ids[provider]; !exists {
			ids[provider] = normalized
		}
	}

	return ids, nil
}

// ProviderKey returns the index key for a provider/id pair.
func ProviderKey(provider Provider, id string) string {
	return string(provider) + ":" + id
}
