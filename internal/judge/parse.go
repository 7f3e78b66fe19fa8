package judge

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/resilience"
)

// ErrMalformed marks a model response that cannot be read as a judgment.
var ErrMalformed = eris.New("judge: malformed response")

type response struct {
	Bucket     string   `json:"bucket"`
	Score      *float64 `json:"score"`
	Confidence string   `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// ParseResponse reads a judgment from raw model output. The output must hold
// a JSON object naming a known bucket and a score in 0-100; anything else is
// a permanent error. A score outside the chosen bucket is clamped into it and
// a missing or unknown confidence is read as medium.
func ParseResponse(judge, raw string) (*model.ModelScore, error) {
	var r response
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &r); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrapf(ErrMalformed, "%s: %v", judge, err))
	}

	bucket, ok := model.ParseBucket(strings.ToLower(strings.TrimSpace(r.Bucket)))
	if !ok {
		return nil, resilience.NewPermanentError(eris.Wrapf(ErrMalformed, "%s: unknown bucket %q", judge, r.Bucket))
	}
	if r.Score == nil {
		return nil, resilience.NewPermanentError(eris.Wrapf(ErrMalformed, "%s: missing score", judge))
	}
	score := int(math.Round(*r.Score))
	if score < 0 || score > 100 {
		return nil, resilience.NewPermanentError(eris.Wrapf(ErrMalformed, "%s: score %d out of range", judge, score))
	}

	conf := model.Confidence(strings.ToLower(strings.TrimSpace(r.Confidence)))
	switch conf {
	case model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
	default:
		conf = model.ConfidenceMedium
	}

	return &model.ModelScore{
		Model:      judge,
		Bucket:     bucket,
		Score:      bucket.Clamp(score),
		Confidence: conf,
		Reasoning:  strings.TrimSpace(r.Reasoning),
	}, nil
}

// cleanJSON strips markdown fences and extracts the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
