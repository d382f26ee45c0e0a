package types

import (
	"fmt"
	"math"
)

// NeutralStrength is the strength assumed for an edge whose strength_score is
// missing. It is never applied to an edge that carries a stored score.
const NeutralStrength = 0.5

// Edge represents a directed, typed, weighted relationship between two
// entities. Several edges of different kinds may connect the same ordered
// pair. Traversal treats an edge as reachable from either endpoint, but Kind
// and StrengthScore stay associated with the stored direction.
type Edge struct {
	// Core identification fields
	ID     string   `json:"id,omitempty" yaml:"id,omitempty"` // Optional store identifier
	Source string   `json:"source" yaml:"source"`             // Source entity ID
	Target string   `json:"target" yaml:"target"`             // Target entity ID
	Kind   EdgeKind `json:"kind" yaml:"kind"`                 // Relationship type

	// Relationship properties
	StrengthScore    *float64 `json:"strength_score,omitempty" yaml:"strength_score,omitempty"`     // [0,1]; nil means unknown
	InteractionCount int      `json:"interaction_count,omitempty" yaml:"interaction_count,omitempty"` // >= 0
	ConfidenceScore  *float64 `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"` // [0,1]; nil means unknown
}

// EffectiveStrength returns the stored strength, or NeutralStrength when the
// edge carries none.
func (e *Edge) EffectiveStrength() float64 {
	if e.StrengthScore == nil {
		return NeutralStrength
	}
	return *e.StrengthScore
}

// Validate checks the score ranges of the edge. It does not check that the
// endpoints exist; that requires the entity set.
func (e *Edge) Validate() error {
	if e.Source == "" || e.Target == "" {
		return fmt.Errorf("edge endpoints are required")
	}
	if e.StrengthScore != nil && !inUnitRange(*e.StrengthScore) {
		return fmt.Errorf("strength_score %v out of range [0,1]", *e.StrengthScore)
	}
	if e.ConfidenceScore != nil && !inUnitRange(*e.ConfidenceScore) {
		return fmt.Errorf("confidence_score %v out of range [0,1]", *e.ConfidenceScore)
	}
	if e.InteractionCount < 0 {
		return fmt.Errorf("interaction_count %d is negative", e.InteractionCount)
	}
	return nil
}

// Score returns a pointer to v, for building edges with literal scores.
func Score(v float64) *float64 {
	return &v
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
