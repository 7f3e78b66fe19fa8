package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldKind determines how discrepancies on a field are measured.
type FieldKind string

const (
	// KindMonetary fields (grosses, capitalization) compare by relative difference.
	KindMonetary FieldKind = "monetary"
	// KindRatio fields (recoupment multiple, gross potential) compare by relative difference.
	KindRatio FieldKind = "ratio"
	// KindPercentage fields (capacity 0-100) compare by absolute point difference.
	KindPercentage  FieldKind = "percentage"
	KindBoolean     FieldKind = "boolean"
	KindCategorical FieldKind = "categorical"
)

// Numeric reports whether values of this kind are numbers.
func (k FieldKind) Numeric() bool {
	return k == KindMonetary || k == KindRatio || k == KindPercentage
}

// Severity is an ordinal measure of how large a discrepancy is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (low) to 3 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Blocks reports whether the severity is high enough to block a write to a
// verified field.
func (s Severity) Blocks() bool {
	return s.Rank() >= SeverityHigh.Rank()
}

// SourceType classifies where a proposed change or observation came from.
type SourceType string

const (
	SourceTypeManual     SourceType = "manual"
	SourceTypeOfficial   SourceType = "official"
	SourceTypeTrade      SourceType = "trade"
	SourceTypeAggregator SourceType = "aggregator"
	SourceTypeScrape     SourceType = "scrape"
	SourceTypeModel      SourceType = "model"
)

// Value is a field value of any supported kind. Exactly one of Number or Text
// is meaningful, depending on the field kind.
type Value struct {
	Number *float64 `json:"number,omitempty" yaml:"number,omitempty"`
	Text   string   `json:"text,omitempty" yaml:"text,omitempty"`
}

// NumberValue builds a numeric Value.
func NumberValue(f float64) Value {
	return Value{Number: &f}
}

// TextValue builds a boolean or categorical Value.
func TextValue(s string) Value {
	return Value{Text: s}
}

// IsZero reports whether the value carries nothing.
func (v Value) IsZero() bool {
	return v.Number == nil && v.Text == ""
}

// Float returns the numeric value, parsing Text when Number is unset.
func (v Value) Float() (float64, bool) {
	if v.Number != nil {
		return *v.Number, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Normalized returns a comparable lowercase string form of the value.
func (v Value) Normalized() string {
	if v.Number != nil {
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	}
	return strings.ToLower(strings.TrimSpace(v.Text))
}

func (v Value) String() string {
	if v.Number != nil {
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	}
	return v.Text
}

// FieldRecord is the current stored value of one numeric show field.
type FieldRecord struct {
	ShowID    string    `json:"show_id"`
	Field     string    `json:"field"`
	Kind      FieldKind `json:"kind"`
	Value     Value     `json:"value"`
	Verified  bool      `json:"verified"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Observation is an independently sourced claim about a show field.
type Observation struct {
	ShowID     string     `json:"show_id" yaml:"show_id"`
	Field      string     `json:"field" yaml:"field"`
	Value      Value      `json:"value" yaml:"value"`
	Source     string     `json:"source" yaml:"source"`
	SourceType SourceType `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	ObservedAt time.Time  `json:"observed_at" yaml:"observed_at"`
}

// Change is a proposed update to one field of a numeric show record.
type Change struct {
	ShowID     string     `json:"show_id" yaml:"show_id"`
	Field      string     `json:"field" yaml:"field"`
	Kind       FieldKind  `json:"kind" yaml:"kind"`
	OldValue   Value      `json:"old_value" yaml:"old_value"`
	NewValue   Value      `json:"new_value" yaml:"new_value"`
	Source     string     `json:"source" yaml:"source"`
	SourceType SourceType `json:"source_type" yaml:"source_type"`
	Weight     float64    `json:"weight,omitempty" yaml:"weight,omitempty"`
	Confidence Confidence `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s.%s: %s -> %s (%s)", c.ShowID, c.Field, c.OldValue, c.NewValue, c.Source)
}

// Conflict is the evaluated form of a change: what corroborates it, what
// contradicts it and how severe the discrepancy with the stored value is.
type Conflict struct {
	Change        Change        `json:"change"`
	Supporting    []Observation `json:"supporting"`
	Contradicting []Observation `json:"contradicting"`
	Severity      Severity      `json:"severity"`
}
