package corroborate

import (
	"fmt"
	"math"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
)

// GuardDecision is the guardian's verdict on one change.
type GuardDecision struct {
	Allowed  bool           `json:"allowed"`
	Severity model.Severity `json:"severity"`
	Note     string         `json:"note,omitempty"`
}

// Guardian protects manually verified fields from large edits.
type Guardian struct {
	cfg config.CorroborationConfig
}

// NewGuardian creates a Guardian.
func NewGuardian(cfg config.CorroborationConfig) *Guardian {
	return &Guardian{cfg: cfg}
}

// SeverityOf measures the discrepancy between the stored value and a
// proposed one. Monetary and ratio fields use the relative difference,
// percentage fields the absolute point difference, and any change to a
// boolean or categorical value is critical.
func (g *Guardian) SeverityOf(kind model.FieldKind, old, proposed model.Value) model.Severity {
	if old.IsZero() {
		return model.SeverityLow
	}

	switch kind {
	case model.KindMonetary, model.KindRatio:
		o, ook := old.Float()
		p, pok := proposed.Float()
		if !ook || !pok {
			return model.SeverityCritical
		}
		if o == 0 {
			if p == 0 {
				return model.SeverityLow
			}
			return model.SeverityCritical
		}
		return grade(math.Abs(p-o)/math.Abs(o), g.cfg.Relative)

	case model.KindPercentage:
		o, ook := old.Float()
		p, pok := proposed.Float()
		if !ook || !pok {
			return model.SeverityCritical
		}
		return grade(math.Abs(p-o), g.cfg.Points)

	default:
		if old.Normalized() == proposed.Normalized() {
			return model.SeverityLow
		}
		return model.SeverityCritical
	}
}

func grade(diff float64, cut config.SeverityCutoffs) model.Severity {
	switch {
	case diff >= cut.Critical:
		return model.SeverityCritical
	case diff >= cut.High:
		return model.SeverityHigh
	case diff >= cut.Medium:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// Check decides whether change may be written over record. Unverified or
// missing records always pass. A verified field is blocked only at high or
// critical severity; smaller adjustments pass with a note.
func (g *Guardian) Check(change model.Change, record *model.FieldRecord) GuardDecision {
	if record == nil {
		return GuardDecision{Allowed: true, Severity: model.SeverityLow}
	}
	kind := change.Kind
	if kind == "" {
		kind = record.Kind
	}
	sev := g.SeverityOf(kind, record.Value, change.NewValue)

	if !record.Verified {
		return GuardDecision{Allowed: true, Severity: sev}
	}
	if sev.Blocks() {
		return GuardDecision{
			Allowed:  false,
			Severity: sev,
			Note: fmt.Sprintf("blocked: %s change to verified %s.%s (%s -> %s)",
				sev, change.ShowID, change.Field, record.Value, change.NewValue),
		}
	}
	return GuardDecision{
		Allowed:  true,
		Severity: sev,
		Note: fmt.Sprintf("verified %s.%s adjusted (%s): %s -> %s",
			change.ShowID, change.Field, sev, record.Value, change.NewValue),
	}
}
