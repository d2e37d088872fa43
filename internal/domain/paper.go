package domain

import (
	"strings"
)

// Author represents a paper author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// Paper represents a paper as discovered from an external source, before it
// has a registry identity. The registry assigns the durable paper id; the
// fields here are whatever the discovery source reported.
type Paper struct {
	// SourceID is the provider-native identifier reported by the discovery
	// source (an arXiv id, a PubMed id, a Semantic Scholar SHA, ...).
	SourceID string `json:"source_id"`

	// DOI is the paper's DOI when the source reported one.
	DOI string `json:"doi,omitempty"`

	Title           string     `json:"title"`
	Abstract        string     `json:"abstract,omitempty"`
	Authors         []Author   `json:"authors,omitempty"`
	PublicationYear int        `json:"publication_year,omitempty"`
	Venue           string     `json:"venue,omitempty"`
	Source          SourceType `json:"source,omitempty"`

	// PDFURL is the open-access PDF location, when one is known.
	PDFURL     string `json:"pdf_url,omitempty"`
	OpenAccess bool   `json:"open_access"`

	// RawMetadata is the source's record as received, kept for snapshots.
	RawMetadata map[string]interface{} `json:"raw_metadata,omitempty"`
}

// PrimaryIdentifier returns the strongest available identity key for the
// paper, in "provider:id" form. Priority: DOI, then the source id under its
// inferred provider. Returns empty string when the paper has no identifier.
func (p *Paper) PrimaryIdentifier() string {
	if doi := strings.TrimSpace(p.DOI); doi != "" {
		return string(ProviderDOI) + ":" + strings.ToLower(doi)
	}

	if sid := strings.TrimSpace(p.SourceID); sid != "" {
		provider, normalized := InferProvider(sid)
		return string(provider) + ":" + normalized
	}

	return ""
}

// HasIdentifier returns true if the paper has at least one identifier.
func (p *Paper) HasIdentifier() bool {
	return strings.TrimSpace(p.DOI) != "" || strings.TrimSpace(p.SourceID) != ""
}

// HasPDF returns true if the paper exposes an open-access PDF location.
func (p *Paper) HasPDF() bool {
	return strings.TrimSpace(p.PDFURL) != ""
}
