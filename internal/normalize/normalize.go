// Package normalize maps free-text outlet and critic names to stable
// canonical identifiers.
//
// Identity collapsing is exact: two spellings share an identity only when an
// alias table entry says so. There is deliberately no edit-distance or
// similarity matching in this package.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// Normalizer resolves outlet and critic names against an AliasTable.
// The zero value is not usable; construct with New.
type Normalizer struct {
	aliases *AliasTable
}

// New creates a Normalizer backed by the given alias table. A nil table
// falls back to the embedded default.
func New(aliases *AliasTable) *Normalizer {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Normalizer{aliases: aliases}
}

// Aliases returns the table this normalizer resolves against.
func (n *Normalizer) Aliases() *AliasTable { return n.aliases }

// Outlet returns the canonical outlet identifier for raw. Known aliases
// resolve through the table; an outlet string with a critic's byline glued to
// it is split first; anything else is slugified. Empty or one-character
// input yields model.UnknownID.
func (n *Normalizer) Outlet(raw string) string {
	if tooShort(raw) {
		return model.UnknownID
	}
	if id, ok := n.aliases.lookupOutlet(raw); ok {
		return id
	}
	if outlet, _, ok := n.SplitOutletCritic(raw); ok {
		if id, ok := n.aliases.lookupOutlet(outlet); ok {
			return id
		}
	}
	return Slugify(raw)
}

// Critic returns the canonical critic identifier for raw.
func (n *Normalizer) Critic(raw string) string {
	if tooShort(raw) {
		return model.UnknownID
	}
	raw = stripBylinePrefix(raw)
	if id, ok := n.aliases.lookupCritic(raw); ok {
		return id
	}
	return Slugify(raw)
}

// OutletTier returns the credibility tier of a canonical outlet ID.
// Outlets missing from the table get model.LowestTier.
func (n *Normalizer) OutletTier(id string) int {
	if o, ok := n.aliases.Outlet(id); ok {
		return o.Tier
	}
	return model.LowestTier
}

var (
	// gluedNameRe matches "New York TimesBen Brantley": a lowercase letter or
	// period immediately followed by a capitalized 2-3 word name.
	gluedNameRe = regexp.MustCompile(`^(.*[\p{Ll}.])(\p{Lu}[\p{Ll}']+(?:[ -]\p{Lu}[\p{L}'.]*){1,2})$`)
	// nameTokenRe matches one capitalized name token ("Frank", "O'Hara", "J.").
	nameTokenRe = regexp.MustCompile(`^\p{Lu}[\p{L}'.\-]*$`)
	bylineRe    = regexp.MustCompile(`(?i)^\s*(?:by|reviewed by|review by)\s+`)
)

// SplitOutletCritic detects an outlet string that has a critic's name
// concatenated onto it by an upstream source, such as
// "New York TimesBen Brantley" or "Variety Frank Rizzo". It only splits
// when the leading part resolves to a known outlet and the trailing part is
// name-shaped, so genuine outlet names are never truncated.
func (n *Normalizer) SplitOutletCritic(raw string) (outlet, critic string, ok bool) {
	raw = strings.TrimSpace(raw)
	if _, known := n.aliases.lookupOutlet(raw); known {
		return "", "", false
	}

	if m := gluedNameRe.FindStringSubmatch(raw); m != nil {
		if _, known := n.aliases.lookupOutlet(m[1]); known {
			return strings.TrimSpace(m[1]), m[2], true
		}
	}

	tokens := strings.Fields(raw)
	// Try the longest outlet prefix first, leaving a 2-3 token name.
	for nameLen := 2; nameLen <= 3 && nameLen < len(tokens); nameLen++ {
		prefix := strings.Join(tokens[:len(tokens)-nameLen], " ")
		name := tokens[len(tokens)-nameLen:]
		if !nameShaped(name) {
			continue
		}
		if _, known := n.aliases.lookupOutlet(prefix); known {
			return prefix, strings.Join(name, " "), true
		}
	}
	return "", "", false
}

func nameShaped(tokens []string) bool {
	for _, t := range tokens {
		if !nameTokenRe.MatchString(t) {
			return false
		}
	}
	return true
}

func stripBylinePrefix(raw string) string {
	return bylineRe.ReplaceAllString(raw, "")
}

func tooShort(raw string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(raw)) < minNameLen
}
