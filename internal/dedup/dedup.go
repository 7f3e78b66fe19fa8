package dedup

import (
	"sort"

	"go.uber.org/zap"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/normalize"
)

// MergeCandidate records two source records that resolved to one review.
type MergeCandidate struct {
	Key     model.ReviewKey `json:"key"`
	Sources []string        `json:"sources"`
	// Truncated is set when the critic identity was collapsed by the
	// outlet-scoped prefix rule rather than by the alias table.
	Truncated bool `json:"truncated,omitempty"`
}

// Result is the output of Resolve.
type Result struct {
	Reviews    []model.Review   `json:"reviews"`
	Candidates []MergeCandidate `json:"candidates,omitempty"`
	Notes      []string         `json:"notes,omitempty"`
}

// Deduplicator canonicalizes and merges raw per-source review records.
type Deduplicator struct {
	norm  *normalize.Normalizer
	index *CriticIndex
}

// New creates a Deduplicator. known seeds the outlet-scoped critic index
// with reviews already in the corpus.
func New(n *normalize.Normalizer, known []model.Review) *Deduplicator {
	d := &Deduplicator{norm: n, index: NewCriticIndex()}
	for i := range known {
		d.index.Add(known[i].OutletID, known[i].CriticID)
	}
	return d
}

// Canonicalize fills OutletID and CriticID from the record's raw names. When
// the critic is missing but the outlet string has a byline glued to it, the
// byline is recovered from the outlet.
func (d *Deduplicator) Canonicalize(r *model.Review) {
	outletRaw := r.OutletName
	if outletRaw == "" {
		outletRaw = r.OutletID
	}
	criticRaw := r.CriticName
	if criticRaw == "" {
		criticRaw = r.CriticID
	}

	if outlet, critic, ok := d.norm.SplitOutletCritic(outletRaw); ok {
		outletRaw = outlet
		r.OutletName = outlet
		if criticRaw == "" {
			criticRaw = critic
			r.CriticName = critic
		}
	}

	r.OutletID = d.norm.Outlet(outletRaw)
	r.CriticID = d.norm.Critic(criticRaw)
}

// Resolve canonicalizes every record, collapses truncated bylines onto known
// critics at the same outlet and merges records sharing a key within a show.
// Output order is stable: by show, outlet, critic.
func (d *Deduplicator) Resolve(records []model.Review) Result {
	canon := make([]model.Review, len(records))
	for i := range records {
		canon[i] = records[i]
		d.Canonicalize(&canon[i])
		d.index.Add(canon[i].OutletID, canon[i].CriticID)
	}

	merged := make(map[model.ReviewKey]*model.Review)
	sources := make(map[model.ReviewKey][]string)
	truncated := make(map[model.ReviewKey]bool)
	counts := make(map[model.ReviewKey]int)
	var order []model.ReviewKey
	var mergeNotes []string

	for i := range canon {
		r := canon[i]
		if full := d.index.Resolve(r.OutletID, r.CriticID); full != r.CriticID {
			zap.L().Debug("dedup: collapsed truncated byline",
				zap.String("show", r.ShowID),
				zap.String("outlet", r.OutletID),
				zap.String("from", r.CriticID),
				zap.String("to", full),
			)
			r.CriticID = full
			truncated[r.Key()] = true
		}

		key := r.Key()
		counts[key]++
		sources[key] = append(sources[key], r.Sources...)
		if existing, ok := merged[key]; ok {
			m, notes := Merge(*existing, r)
			merged[key] = &m
			mergeNotes = append(mergeNotes, notes...)
			continue
		}
		rc := r
		merged[key] = &rc
		order = append(order, key)
	}

	sort.Slice(order, func(i, j int) bool { return order[i].String() < order[j].String() })

	res := Result{Reviews: make([]model.Review, 0, len(order)), Notes: mergeNotes}
	for _, key := range order {
		res.Reviews = append(res.Reviews, *merged[key])
		if counts[key] > 1 || truncated[key] {
			res.Candidates = append(res.Candidates, MergeCandidate{
				Key:       key,
				Sources:   union(nil, sources[key]),
				Truncated: truncated[key],
			})
		}
	}
	return res
}
