package model

// EnsembleSource tags how an ensemble result was reached.
type EnsembleSource string

const (
	EnsembleUnanimous   EnsembleSource = "unanimous"
	EnsembleMajority    EnsembleSource = "majority"
	EnsembleNoConsensus EnsembleSource = "no-consensus"
	EnsembleTwoModel    EnsembleSource = "two-model-fallback"
	EnsembleSingleModel EnsembleSource = "single-model-fallback"
	EnsembleAllFailed   EnsembleSource = "all-failed"
)

// ModelScore is one automated judgment of a review's text.
type ModelScore struct {
	Model      string     `json:"model"`
	Bucket     Bucket     `json:"bucket"`
	Score      int        `json:"score"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Valid reports whether the judgment can take part in a vote.
func (m *ModelScore) Valid() bool {
	if m == nil || m.Error != "" || !m.Bucket.Valid() {
		return false
	}
	lo, hi := m.Bucket.Range()
	return m.Score >= lo && m.Score <= hi
}

// Outlier records the single dissenting model of a 2-of-3 majority.
type Outlier struct {
	Model    string `json:"model"`
	Bucket   Bucket `json:"bucket"`
	Score    int    `json:"score"`
	Distance int    `json:"distance"`
}

// DisagreementKind classifies why an ensemble result needs attention.
type DisagreementKind string

const (
	DisagreeOutlier     DisagreementKind = "outlier"
	DisagreeNoConsensus DisagreementKind = "no-consensus"
	DisagreeTwoModel    DisagreementKind = "two-model-split"
	DisagreeSingleModel DisagreementKind = "single-model"
	DisagreeAllFailed   DisagreementKind = "all-failed"
)

// ModelBucket pairs a model with the bucket it chose.
type ModelBucket struct {
	Model  string `json:"model"`
	Bucket Bucket `json:"bucket"`
	Score  int    `json:"score"`
}

// Disagreement is the machine-readable form of an ensemble review reason.
type Disagreement struct {
	Kind           DisagreementKind `json:"kind"`
	Models         []ModelBucket    `json:"models,omitempty"`
	BucketDistance int              `json:"bucket_distance"`
	ScoreDelta     int              `json:"score_delta"`
	Severity       Severity         `json:"severity"`
}

// EnsembleResult is the combined verdict of up to three model judgments.
type EnsembleResult struct {
	Bucket       Bucket         `json:"bucket"`
	Score        int            `json:"score"`
	Confidence   Confidence     `json:"confidence"`
	Source       EnsembleSource `json:"source"`
	NeedsReview  bool           `json:"needs_review"`
	Reason       string         `json:"reason,omitempty"`
	Models       []ModelScore   `json:"models,omitempty"`
	Outlier      *Outlier       `json:"outlier,omitempty"`
	Disagreement *Disagreement  `json:"disagreement,omitempty"`
}
