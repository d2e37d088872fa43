package registry

import (
	"time"

	"github.com/litforge/paper-corpus-service/internal/domain"
)

// stateVersion is the on-disk format version of the registry file.
const stateVersion = 1

// State is the full persisted registry. Both indices are always exactly
// derivable from Entries; every index value must resolve to an existing
// Entries key.
type State struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Entries maps paper_id to its registry entry.
	Entries map[string]*Entry `json:"entries"`

	// DOIIndex maps a lowercase DOI to a paper_id.
	DOIIndex map[string]string `json:"doi_index"`

	// ProviderIDIndex maps "provider:id" keys to a paper_id.
	ProviderIDIndex map[string]string `json:"provider_id_index"`
}

// newState returns a fresh empty registry state.
func newState() *State {
	now := time.Now().UTC()
	return &State{
		Version:         stateVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
		Entries:         make(map[string]*Entry),
		DOIIndex:        make(map[string]string),
		ProviderIDIndex: make(map[string]string),
	}
}

// normalize repairs nil maps after decoding a hand-edited or pre-1 file so
// the rest of the store never nil-checks.
func (s *State) normalize() {
	if s.Version == 0 {
		s.Version = stateVersion
	}
	if s.Entries == nil {
		s.Entries = make(map[string]*Entry)
	}
	if s.DOIIndex == nil {
		s.DOIIndex = make(map[string]string)
	}
	if s.ProviderIDIndex == nil {
		s.ProviderIDIndex = make(map[string]string)
	}
}

// indexEntry adds the entry's identifiers to both secondary indices.
// Safe to call repeatedly for the same entry.
func (s *State) indexEntry(e *Entry) {
	for provider, id := range e.Identifiers {
		s.ProviderIDIndex[domain.ProviderKey(provider, id)] = e.PaperID
		if provider == domain.ProviderDOI {
			s.DOIIndex[id] = e.PaperID
		}
	}
}

// upsertEntry stores the entry and refreshes the indices for it.
func (s *State) upsertEntry(e *Entry) {
	s.Entries[e.PaperID] = e
	s.indexEntry(e)
	s.UpdatedAt = time.Now().UTC()
}
