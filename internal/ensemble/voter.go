// Package ensemble combines up to three independent model judgments of a
// review into one bucketed score with a confidence level and, when the
// judgments disagree or go missing, a machine-readable review reason.
package ensemble

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
)

// DefaultConfig returns the voter thresholds the corpus was tuned against.
func DefaultConfig() config.EnsembleConfig {
	return config.EnsembleConfig{
		SpreadThreshold: 10,
		DeltaThreshold:  15,
		NeutralScore:    60,
	}
}

// Voter combines model judgments. It is stateless and safe for concurrent use.
type Voter struct {
	cfg config.EnsembleConfig
}

// New creates a Voter with the given thresholds.
func New(cfg config.EnsembleConfig) *Voter {
	return &Voter{cfg: cfg}
}

// Combine merges up to three judgments. Nil, errored or out-of-range slots
// count as missing; the result degrades with the number of valid inputs and
// never returns an error. Which slot a judgment arrives in does not affect
// the outcome.
func (v *Voter) Combine(slots ...*model.ModelScore) model.EnsembleResult {
	var labeled []model.ModelScore
	var valid []model.ModelScore
	for _, s := range slots {
		if s == nil {
			continue
		}
		labeled = append(labeled, *s)
		if s.Valid() {
			valid = append(valid, *s)
		}
	}
	sort.Slice(labeled, func(i, j int) bool { return labeled[i].Model < labeled[j].Model })
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Score != valid[j].Score {
			return valid[i].Score < valid[j].Score
		}
		return valid[i].Model < valid[j].Model
	})

	var res model.EnsembleResult
	switch len(valid) {
	case 0:
		res = v.allFailed(labeled)
	case 1:
		res = v.single(valid[0])
	case 2:
		res = v.pair(valid[0], valid[1])
	default:
		res = v.three(valid[:3])
	}
	res.Models = labeled
	return res
}

func (v *Voter) three(ms []model.ModelScore) model.EnsembleResult {
	groups := make(map[model.Bucket][]model.ModelScore)
	for _, m := range ms {
		groups[m.Bucket] = append(groups[m.Bucket], m)
	}

	switch len(groups) {
	case 1:
		score, tight := v.central(scores(ms))
		conf := model.ConfidenceMedium
		if tight {
			conf = model.ConfidenceHigh
		}
		return model.EnsembleResult{
			Bucket:     ms[0].Bucket,
			Score:      score,
			Confidence: conf,
			Source:     model.EnsembleUnanimous,
		}

	case 2:
		var majority, outlier []model.ModelScore
		for _, g := range groups {
			if len(g) == 2 {
				majority = g
			} else {
				outlier = g
			}
		}
		score, _ := v.central(scores(majority))
		bucket := majority[0].Bucket
		out := outlier[0]
		dist := model.Distance(out.Bucket, bucket)

		res := model.EnsembleResult{
			Bucket:     bucket,
			Score:      score,
			Confidence: model.ConfidenceMedium,
			Source:     model.EnsembleMajority,
			Outlier: &model.Outlier{
				Model:    out.Model,
				Bucket:   out.Bucket,
				Score:    out.Score,
				Distance: dist,
			},
		}
		if dist >= 2 {
			res.NeedsReview = true
			res.Reason = fmt.Sprintf("outlier %s is 2+ buckets (%d) from majority %s: %s",
				out.Model, dist, bucket, describe(ms))
			res.Disagreement = &model.Disagreement{
				Kind:           model.DisagreeOutlier,
				Models:         modelBuckets(ms),
				BucketDistance: dist,
				ScoreDelta:     abs(out.Score - score),
				Severity:       distanceSeverity(dist),
			}
		}
		return res

	default:
		// ms is sorted by score, so the middle element is the median.
		median := ms[1].Score
		dist := model.Distance(ms[0].Bucket, ms[2].Bucket)
		return model.EnsembleResult{
			Bucket:      model.BucketFor(median),
			Score:       median,
			Confidence:  model.ConfidenceLow,
			Source:      model.EnsembleNoConsensus,
			NeedsReview: true,
			Reason:      "no consensus: " + describe(ms),
			Disagreement: &model.Disagreement{
				Kind:           model.DisagreeNoConsensus,
				Models:         modelBuckets(ms),
				BucketDistance: dist,
				ScoreDelta:     ms[2].Score - ms[0].Score,
				Severity:       distanceSeverity(dist),
			},
		}
	}
}

func (v *Voter) pair(a, b model.ModelScore) model.EnsembleResult {
	score := mean([]int{a.Score, b.Score})
	conf := model.MinConfidence(inputConfidence(a), inputConfidence(b))

	if a.Bucket == b.Bucket {
		return model.EnsembleResult{
			Bucket:     a.Bucket,
			Score:      score,
			Confidence: conf,
			Source:     model.EnsembleTwoModel,
		}
	}

	dist := model.Distance(a.Bucket, b.Bucket)
	delta := abs(a.Score - b.Score)
	res := model.EnsembleResult{
		Bucket:     model.BucketFor(score),
		Score:      score,
		Confidence: conf,
		Source:     model.EnsembleTwoModel,
	}
	if dist >= 2 || delta > v.cfg.DeltaThreshold {
		res.Confidence = model.ConfidenceLow
		res.NeedsReview = true
		res.Reason = fmt.Sprintf("two-model split (distance %d, delta %d): %s",
			dist, delta, describe([]model.ModelScore{a, b}))
		sev := distanceSeverity(dist)
		if dist < 2 {
			sev = model.SeverityMedium
		}
		res.Disagreement = &model.Disagreement{
			Kind:           model.DisagreeTwoModel,
			Models:         modelBuckets([]model.ModelScore{a, b}),
			BucketDistance: dist,
			ScoreDelta:     delta,
			Severity:       sev,
		}
	}
	return res
}

func (v *Voter) single(m model.ModelScore) model.EnsembleResult {
	return model.EnsembleResult{
		Bucket:      m.Bucket,
		Score:       m.Score,
		Confidence:  model.ConfidenceLow,
		Source:      model.EnsembleSingleModel,
		NeedsReview: true,
		Reason:      fmt.Sprintf("single model: only %s produced a score", m.Model),
		Disagreement: &model.Disagreement{
			Kind:     model.DisagreeSingleModel,
			Models:   modelBuckets([]model.ModelScore{m}),
			Severity: model.SeverityMedium,
		},
	}
}

func (v *Voter) allFailed(labeled []model.ModelScore) model.EnsembleResult {
	var failed []string
	for _, m := range labeled {
		failed = append(failed, m.Model)
	}
	reason := "all models failed"
	if len(failed) > 0 {
		reason += ": " + strings.Join(failed, ", ")
	}
	return model.EnsembleResult{
		Bucket:      model.BucketFor(v.cfg.NeutralScore),
		Score:       v.cfg.NeutralScore,
		Confidence:  model.ConfidenceLow,
		Source:      model.EnsembleAllFailed,
		NeedsReview: true,
		Reason:      reason,
		Disagreement: &model.Disagreement{
			Kind:     model.DisagreeAllFailed,
			Severity: model.SeverityCritical,
		},
	}
}

// central returns the mean when the spread is within the threshold and the
// median otherwise. tight reports which one was used.
func (v *Voter) central(vals []int) (score int, tight bool) {
	sort.Ints(vals)
	if vals[len(vals)-1]-vals[0] <= v.cfg.SpreadThreshold {
		return mean(vals), true
	}
	return median(vals), false
}

func scores(ms []model.ModelScore) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.Score
	}
	return out
}

func mean(vals []int) int {
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return int(math.Floor(float64(sum)/float64(len(vals)) + 0.5))
}

// median expects sorted input. Even-length input averages the middle pair.
func median(vals []int) int {
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return mean(vals[n/2-1 : n/2+1])
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// inputConfidence treats an unset or unknown model confidence as medium.
func inputConfidence(m model.ModelScore) model.Confidence {
	switch m.Confidence {
	case model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
		return m.Confidence
	default:
		return model.ConfidenceMedium
	}
}

func distanceSeverity(dist int) model.Severity {
	switch {
	case dist >= 3:
		return model.SeverityCritical
	case dist == 2:
		return model.SeverityHigh
	case dist == 1:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func modelBuckets(ms []model.ModelScore) []model.ModelBucket {
	out := make([]model.ModelBucket, len(ms))
	for i, m := range ms {
		out[i] = model.ModelBucket{Model: m.Model, Bucket: m.Bucket, Score: m.Score}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// describe renders "model=bucket(score)" pairs in model order.
func describe(ms []model.ModelScore) string {
	mb := modelBuckets(ms)
	parts := make([]string, len(mb))
	for i, m := range mb {
		parts[i] = fmt.Sprintf("%s=%s(%d)", m.Model, m.Bucket, m.Score)
	}
	return strings.Join(parts, ", ")
}
