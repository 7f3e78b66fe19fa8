package corroborate

import (
	"fmt"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
)

// Verdict is the combined corroboration and guard outcome for one change.
type Verdict struct {
	Change        model.Change     `json:"change"`
	Corroboration Corroboration    `json:"corroboration"`
	Weight        float64          `json:"weight"`
	Confidence    model.Confidence `json:"confidence"`
	Guard         GuardDecision    `json:"guard"`
	Apply         bool             `json:"apply"`
	Notes         []string         `json:"notes,omitempty"`
}

// Conflict returns the reporting form of the verdict.
func (v *Verdict) Conflict() model.Conflict {
	return model.Conflict{
		Change:        v.Change,
		Supporting:    v.Corroboration.Supporting,
		Contradicting: v.Corroboration.Contradicting,
		Severity:      v.Guard.Severity,
	}
}

// Validator evaluates proposed field changes.
type Validator struct {
	cfg   config.CorroborationConfig
	guard *Guardian
}

// NewValidator creates a Validator.
func NewValidator(cfg config.CorroborationConfig) *Validator {
	return &Validator{cfg: cfg, guard: NewGuardian(cfg)}
}

// Weight returns the credibility weight of a change: its own weight when
// set, otherwise the configured weight of its source type.
func (v *Validator) Weight(c model.Change) float64 {
	if c.Weight > 0 {
		return c.Weight
	}
	return v.cfg.Weights[string(c.SourceType)]
}

// Evaluate corroborates change against observations and checks it against
// the stored record. A change is applied when the guardian allows it, its
// confidence is not flagged, and it either carries enough source weight on
// its own or has at least one supporting observation.
func (v *Validator) Evaluate(change model.Change, record *model.FieldRecord, observations []model.Observation) Verdict {
	if change.Kind == "" && record != nil {
		change.Kind = record.Kind
	}

	weight := v.Weight(change)
	original := change.Confidence
	if original == "" {
		original = weightConfidence(weight)
	}

	corr := FindCorroboration(change, observations, v.cfg.Tolerance)
	conf := CalculateConfidence(original, len(corr.Supporting), len(corr.Contradicting))
	guard := v.guard.Check(change, record)

	verdict := Verdict{
		Change:        change,
		Corroboration: corr,
		Weight:        weight,
		Confidence:    conf,
		Guard:         guard,
	}
	if guard.Note != "" {
		verdict.Notes = append(verdict.Notes, guard.Note)
	}

	switch {
	case !guard.Allowed:
	case conf == model.ConfidenceFlagged:
		verdict.Notes = append(verdict.Notes, fmt.Sprintf("flagged: %d contradicting vs %d supporting observations",
			len(corr.Contradicting), len(corr.Supporting)))
	case weight < v.cfg.MinWeight && len(corr.Supporting) == 0:
		verdict.Notes = append(verdict.Notes, fmt.Sprintf("held: source weight %.2f below %.2f with no corroboration",
			weight, v.cfg.MinWeight))
	default:
		verdict.Apply = true
	}
	return verdict
}

func weightConfidence(w float64) model.Confidence {
	switch {
	case w >= 0.9:
		return model.ConfidenceHigh
	case w >= 0.6:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
