package types

import (
	"fmt"
	"strings"
)

// Strategy names the traversal strategy that produced a path.
type Strategy string

// Traversal strategies, listed in the order they are run when combined.
const (
	StrategyShortest     Strategy = "shortest"
	StrategyStrongest    Strategy = "strongest"
	StrategyHub          Strategy = "hub"
	StrategyOrganization Strategy = "organization"
)

// AllStrategies is every strategy in canonical execution order.
var AllStrategies = []Strategy{
	StrategyShortest,
	StrategyStrongest,
	StrategyHub,
	StrategyOrganization,
}

// ParseStrategy converts a strategy name (case-insensitive, with the aliases
// "bfs", "hub-mediated" and "org") to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shortest", "bfs":
		return StrategyShortest, nil
	case "strongest":
		return StrategyStrongest, nil
	case "hub", "hub-mediated", "hub_mediated":
		return StrategyHub, nil
	case "organization", "org", "org-mediated", "org_mediated":
		return StrategyOrganization, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// PathStep is one traversed edge of a path, oriented in travel direction.
// Forward is false when the stored edge points from To to From.
type PathStep struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Kind     EdgeKind `json:"kind"`
	Strength float64  `json:"strength"`
	Forward  bool     `json:"forward"`
}

// ScoreBreakdown records the factors of the canonical path score.
type ScoreBreakdown struct {
	CumulativeStrength float64 `json:"cumulative_strength"`
	HopDecay           float64 `json:"hop_decay"`
	KindWeight         float64 `json:"kind_weight"`
	SemanticBonus      float64 `json:"semantic_bonus"`
}

// Path is an ordered sequence of entity IDs from a source to a target,
// together with the strategy that produced it and its scoring signals.
type Path struct {
	Nodes              []string       `json:"nodes"`
	Steps              []PathStep     `json:"steps"`
	Strategy           Strategy       `json:"strategy"`
	Via                string         `json:"via,omitempty"` // Hub or organization for mediated paths
	CumulativeStrength float64        `json:"cumulative_strength"`
	Hops               int            `json:"hops"`
	Description        string         `json:"description"`
	Score              float64        `json:"score"`
	Breakdown          ScoreBreakdown `json:"breakdown"`
}

// Source returns the first entity of the path.
func (p *Path) Source() string {
	if len(p.Nodes) == 0 {
		return ""
	}
	return p.Nodes[0]
}

// Target returns the last entity of the path.
func (p *Path) Target() string {
	if len(p.Nodes) == 0 {
		return ""
	}
	return p.Nodes[len(p.Nodes)-1]
}

// Key returns the canonical identity of the path: its ordered entity IDs.
// Two paths are duplicates iff their keys are equal.
func (p *Path) Key() string {
	return strings.Join(p.Nodes, "\x1f")
}

// Intermediates returns the entity IDs strictly between source and target.
func (p *Path) Intermediates() []string {
	if len(p.Nodes) <= 2 {
		return nil
	}
	return p.Nodes[1 : len(p.Nodes)-1]
}

// Clone returns a deep copy of the path.
func (p Path) Clone() Path {
	p.Nodes = append([]string(nil), p.Nodes...)
	p.Steps = append([]PathStep(nil), p.Steps...)
	return p
}

// DescribeHops returns the human-readable description for a hop count.
func DescribeHops(hops int) string {
	switch {
	case hops <= 0:
		return "Same entity"
	case hops == 1:
		return "Direct connection"
	default:
		return fmt.Sprintf("%d degrees of separation", hops)
	}
}
