package dedup

import (
	"sort"
	"strings"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// CriticIndex records which critic identities are known at each outlet and
// collapses truncated bylines onto them. The collapse is outlet-scoped: a
// bare "jesse" at one outlet never resolves to a "jesse-green" who writes for
// a different outlet.
type CriticIndex struct {
	byOutlet map[string]map[string][]string
}

// NewCriticIndex creates an empty index.
func NewCriticIndex() *CriticIndex {
	return &CriticIndex{byOutlet: make(map[string]map[string][]string)}
}

// Add registers a canonical critic ID as writing for an outlet.
func (ix *CriticIndex) Add(outletID, criticID string) {
	if criticID == "" || criticID == model.UnknownID {
		return
	}
	critics, ok := ix.byOutlet[outletID]
	if !ok {
		critics = make(map[string][]string)
		ix.byOutlet[outletID] = critics
	}
	critics[criticID] = strings.Split(criticID, "-")
}

// Resolve returns the known critic at outletID of which criticID is a strict
// token prefix ("jesse" -> "jesse-green"). When no known name, or more than
// one, has that prefix the input is returned unchanged: an ambiguous
// truncation is left for a person to resolve.
func (ix *CriticIndex) Resolve(outletID, criticID string) string {
	if criticID == "" || criticID == model.UnknownID {
		return criticID
	}
	tokens := strings.Split(criticID, "-")

	var matches []string
	for known, knownTokens := range ix.byOutlet[outletID] {
		if known != criticID && isStrictTokenPrefix(tokens, knownTokens) {
			matches = append(matches, known)
		}
	}
	if len(matches) != 1 {
		return criticID
	}
	return matches[0]
}

// Critics returns the known critic IDs at an outlet, sorted.
func (ix *CriticIndex) Critics(outletID string) []string {
	out := make([]string, 0, len(ix.byOutlet[outletID]))
	for id := range ix.byOutlet[outletID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func isStrictTokenPrefix(prefix, full []string) bool {
	if len(prefix) >= len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}
