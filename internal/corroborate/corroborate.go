// Package corroborate weighs independently sourced observations of a show
// field against a proposed change and guards manually verified fields
// against large unreviewed edits.
package corroborate

import (
	"math"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
)

// epsilon absorbs float rounding so a value exactly on the tolerance
// boundary counts as supporting.
const epsilon = 1e-9

// DefaultConfig returns the corroboration defaults.
func DefaultConfig() config.CorroborationConfig {
	return config.CorroborationConfig{
		Tolerance: 0.10,
		Relative:  config.SeverityCutoffs{Medium: 0.05, High: 0.15, Critical: 0.50},
		Points:    config.SeverityCutoffs{Medium: 2, High: 5, Critical: 10},
		Weights: map[string]float64{
			string(model.SourceTypeManual):     1.0,
			string(model.SourceTypeOfficial):   0.95,
			string(model.SourceTypeTrade):      0.8,
			string(model.SourceTypeAggregator): 0.6,
			string(model.SourceTypeScrape):     0.5,
			string(model.SourceTypeModel):      0.3,
		},
		MinWeight: 0.5,
	}
}

// Corroboration partitions prior observations of a change's show and field.
type Corroboration struct {
	Supporting    []model.Observation `json:"supporting"`
	Contradicting []model.Observation `json:"contradicting"`
}

// FindCorroboration splits observations of the same show and field into
// those within tolerance of the proposed value and those outside it.
// Observations from the change's own source are excluded. Tolerance is
// relative to each observed value and inclusive.
func FindCorroboration(change model.Change, observations []model.Observation, tolerance float64) Corroboration {
	var c Corroboration
	for _, obs := range observations {
		if obs.ShowID != change.ShowID || obs.Field != change.Field {
			continue
		}
		if obs.Source == change.Source {
			continue
		}
		if agrees(change.Kind, change.NewValue, obs.Value, tolerance) {
			c.Supporting = append(c.Supporting, obs)
		} else {
			c.Contradicting = append(c.Contradicting, obs)
		}
	}
	return c
}

func agrees(kind model.FieldKind, proposed, observed model.Value, tolerance float64) bool {
	p, pok := proposed.Float()
	o, ook := observed.Float()
	if (kind == "" || kind.Numeric()) && pok && ook {
		if o == 0 {
			return math.Abs(p) <= epsilon
		}
		return math.Abs(p-o) <= tolerance*math.Abs(o)+epsilon
	}
	return proposed.Normalized() == observed.Normalized()
}

// CalculateConfidence adjusts a change's confidence from its corroboration
// counts: two or more supporting observations give high confidence,
// contradictions outnumbering support give flagged, anything else leaves
// the original unchanged.
func CalculateConfidence(original model.Confidence, supporting, contradicting int) model.Confidence {
	if supporting >= 2 {
		return model.ConfidenceHigh
	}
	if contradicting > supporting {
		return model.ConfidenceFlagged
	}
	return original
}
