package model

// Outlet is a publication that publishes reviews.
type Outlet struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Tier    int      `json:"tier" yaml:"tier"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Critic is a person who writes reviews.
type Critic struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// LowestTier is the credibility tier assigned to outlets missing from the
// alias table.
const LowestTier = 3
