package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thomaspryor/broadwayscore/internal/corroborate"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/store"
)

// LoadChanges decodes a list of proposed field changes. The input may be YAML
// or JSON.
func LoadChanges(r io.Reader) ([]model.Change, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read changes")
	}
	var changes []model.Change
	if err := yaml.Unmarshal(data, &changes); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode changes")
	}
	for i, c := range changes {
		if c.ShowID == "" || c.Field == "" {
			return nil, eris.Errorf("pipeline: change %d: show_id and field are required", i)
		}
		if c.NewValue.IsZero() {
			return nil, eris.Errorf("pipeline: change %d (%s.%s): new_value is required", i, c.ShowID, c.Field)
		}
	}
	return changes, nil
}

// ChangeReport summarizes one change-processing run.
type ChangeReport struct {
	RunID    string                `json:"run_id"`
	DryRun   bool                  `json:"dry_run"`
	Verdicts []corroborate.Verdict `json:"verdicts"`
	Applied  int                   `json:"applied"`
	Held     int                   `json:"held"`
	Blocked  int                   `json:"blocked"`
}

// Conflicts returns the changes that were not applied, in reporting form.
func (r *ChangeReport) Conflicts() []model.Conflict {
	var out []model.Conflict
	for i := range r.Verdicts {
		if !r.Verdicts[i].Apply {
			out = append(out, r.Verdicts[i].Conflict())
		}
	}
	return out
}

// ChangeProcessor evaluates proposed changes to numeric show fields and
// writes the ones that pass.
type ChangeProcessor struct {
	store     store.Store
	validator *corroborate.Validator
	now       func() time.Time
}

// NewChangeProcessor creates a ChangeProcessor.
func NewChangeProcessor(st store.Store, v *corroborate.Validator) *ChangeProcessor {
	return &ChangeProcessor{
		store:     st,
		validator: v,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run evaluates each change against the stored field and the observations
// recorded for it. An applied change writes the new value together with an
// observation of itself, so later changes to the same field see it as
// evidence. Changes are processed in order; a later change to the same field
// is evaluated against the value written by an earlier one.
func (p *ChangeProcessor) Run(ctx context.Context, changes []model.Change, dryRun bool) (*ChangeReport, error) {
	rep := &ChangeReport{RunID: uuid.NewString(), DryRun: dryRun}
	log := zap.L().With(zap.String("run_id", rep.RunID))

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: process changes")
		}

		record, err := p.store.GetField(ctx, c.ShowID, c.Field)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load field %s.%s", c.ShowID, c.Field)
		}
		obs, err := p.store.ListObservations(ctx, c.ShowID, c.Field)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load observations %s.%s", c.ShowID, c.Field)
		}
		if c.OldValue.IsZero() && record != nil {
			c.OldValue = record.Value
		}

		v := p.validator.Evaluate(c, record, obs)
		rep.Verdicts = append(rep.Verdicts, v)

		switch {
		case v.Apply:
			rep.Applied++
		case !v.Guard.Allowed:
			rep.Blocked++
			log.Warn("pipeline: change blocked",
				zap.String("change", c.String()),
				zap.String("severity", string(v.Guard.Severity)),
				zap.Strings("notes", v.Notes),
			)
			continue
		default:
			rep.Held++
			log.Info("pipeline: change held", zap.String("change", c.String()), zap.Strings("notes", v.Notes))
			continue
		}

		if dryRun {
			continue
		}
		if err := p.store.ApplyBatch(ctx, p.writeFor(v, record)); err != nil {
			return nil, eris.Wrapf(err, "pipeline: apply change %s", c)
		}
	}

	log.Info("pipeline: changes processed",
		zap.Bool("dry_run", dryRun),
		zap.Int("applied", rep.Applied),
		zap.Int("held", rep.Held),
		zap.Int("blocked", rep.Blocked),
	)
	return rep, nil
}

// writeFor builds the batch recording an applied change. A manual change
// marks the field verified; a verified field stays verified.
func (p *ChangeProcessor) writeFor(v corroborate.Verdict, record *model.FieldRecord) store.Batch {
	now := p.now()
	c := v.Change
	next := model.FieldRecord{
		ShowID:    c.ShowID,
		Field:     c.Field,
		Kind:      c.Kind,
		Value:     c.NewValue,
		Verified:  c.SourceType == model.SourceTypeManual,
		Source:    c.Source,
		UpdatedAt: now,
	}
	if record != nil && record.Verified {
		next.Verified = true
	}
	return store.Batch{
		Fields: []model.FieldRecord{next},
		Observations: []model.Observation{{
			ShowID:     c.ShowID,
			Field:      c.Field,
			Value:      c.NewValue,
			Source:     c.Source,
			SourceType: c.SourceType,
			ObservedAt: now,
		}},
	}
}
