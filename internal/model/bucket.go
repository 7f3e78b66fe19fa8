package model

// Bucket is one of five ordered qualitative categories partitioning 0-100.
type Bucket string

const (
	BucketRave     Bucket = "rave"
	BucketPositive Bucket = "positive"
	BucketMixed    Bucket = "mixed"
	BucketNegative Bucket = "negative"
	BucketPan      Bucket = "pan"
)

// Buckets lists every bucket from highest to lowest.
var Buckets = []Bucket{BucketRave, BucketPositive, BucketMixed, BucketNegative, BucketPan}

// bucketRanges holds the inclusive [min, max] score range of each bucket.
var bucketRanges = map[Bucket][2]int{
	BucketRave:     {85, 100},
	BucketPositive: {70, 84},
	BucketMixed:    {55, 69},
	BucketNegative: {35, 54},
	BucketPan:      {0, 34},
}

// BucketFor maps a score to its bucket. Scores outside 0-100 are clamped.
func BucketFor(score int) Bucket {
	switch {
	case score >= 85:
		return BucketRave
	case score >= 70:
		return BucketPositive
	case score >= 55:
		return BucketMixed
	case score >= 35:
		return BucketNegative
	default:
		return BucketPan
	}
}

// ParseBucket converts a label into a Bucket. Unknown labels return false.
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(s)
	_, ok := bucketRanges[b]
	return b, ok
}

// Valid reports whether b is one of the five known buckets.
func (b Bucket) Valid() bool {
	_, ok := bucketRanges[b]
	return ok
}

// Rank returns the ordinal position of the bucket, 4 for rave down to 0 for pan.
// Unknown buckets return -1.
func (b Bucket) Rank() int {
	switch b {
	case BucketRave:
		return 4
	case BucketPositive:
		return 3
	case BucketMixed:
		return 2
	case BucketNegative:
		return 1
	case BucketPan:
		return 0
	default:
		return -1
	}
}

// Range returns the inclusive score range of the bucket.
func (b Bucket) Range() (lo, hi int) {
	r := bucketRanges[b]
	return r[0], r[1]
}

// Clamp forces score into the bucket's sub-range.
func (b Bucket) Clamp(score int) int {
	lo, hi := b.Range()
	if score < lo {
		return lo
	}
	if score > hi {
		return hi
	}
	return score
}

// Direction collapses the bucket onto the three-way aggregator scale.
func (b Bucket) Direction() Direction {
	switch b {
	case BucketRave, BucketPositive:
		return DirectionPositive
	case BucketMixed:
		return DirectionNeutral
	default:
		return DirectionNegative
	}
}

// Distance is the absolute difference in ordinal rank between two buckets.
func Distance(a, b Bucket) int {
	d := a.Rank() - b.Rank()
	if d < 0 {
		return -d
	}
	return d
}

// Direction is the ternary signal reported by aggregator sites.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNeutral  Direction = "neutral"
	DirectionNegative Direction = "negative"
)

// ParseDirection accepts the common aggregator spellings of a ternary signal.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "positive", "up", "thumbs-up", "thumbs_up", "pos", "+":
		return DirectionPositive, true
	case "neutral", "mixed", "meh", "sideways", "0":
		return DirectionNeutral, true
	case "negative", "down", "thumbs-down", "thumbs_down", "neg", "-":
		return DirectionNegative, true
	default:
		return "", false
	}
}

// Confidence is an ordinal trust level attached to a score or value.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
	// ConfidenceFlagged marks a value contradicted by independent observations.
	ConfidenceFlagged Confidence = "flagged"
)

// Rank orders confidences; flagged sorts below low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// MinConfidence returns the weaker of two confidences.
func MinConfidence(a, b Confidence) Confidence {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}
