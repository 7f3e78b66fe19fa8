// Package dedup builds canonical review identities and merges records that
// different sources reported for the same review.
package dedup

import (
	"strings"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/normalize"
)

// KeySeparator joins the outlet and critic halves of a key.
const KeySeparator = "|"

// GenerateKey normalizes both halves and joins them with KeySeparator. Any
// two spellings of the same outlet+critic pair produce the same key.
func GenerateKey(n *normalize.Normalizer, outletRaw, criticRaw string) string {
	return n.Outlet(outletRaw) + KeySeparator + n.Critic(criticRaw)
}

// SplitKey reverses GenerateKey.
func SplitKey(key string) (outletID, criticID string) {
	outletID, criticID, _ = strings.Cut(key, KeySeparator)
	return outletID, criticID
}

// recordKey prefers raw names and falls back to already-canonical ids.
func recordKey(n *normalize.Normalizer, r *model.Review) string {
	outlet := r.OutletName
	if outlet == "" {
		outlet = r.OutletID
	}
	critic := r.CriticName
	if critic == "" {
		critic = r.CriticID
	}
	return GenerateKey(n, outlet, critic)
}

// AreIdentical reports whether two records describe the same review: same
// show and identical normalized keys.
func AreIdentical(n *normalize.Normalizer, a, b *model.Review) bool {
	if a.ShowID != b.ShowID {
		return false
	}
	return recordKey(n, a) == recordKey(n, b)
}
