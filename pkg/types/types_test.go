package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeValidate(t *testing.T) {
	tests := []struct {
		name    string
		edge    Edge
		wantErr bool
	}{
		{"valid", Edge{Source: "a", Target: "b", Kind: KindColleague, StrengthScore: Score(0.7)}, false},
		{"missing strength", Edge{Source: "a", Target: "b"}, false},
		{"missing endpoint", Edge{Source: "a"}, true},
		{"strength above one", Edge{Source: "a", Target: "b", StrengthScore: Score(1.5)}, true},
		{"strength NaN", Edge{Source: "a", Target: "b", StrengthScore: Score(math.NaN())}, true},
		{"confidence negative", Edge{Source: "a", Target: "b", ConfidenceScore: Score(-0.1)}, true},
		{"negative interactions", Edge{Source: "a", Target: "b", InteractionCount: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edge.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEdgeEffectiveStrength(t *testing.T) {
	e := Edge{Source: "a", Target: "b"}
	assert.Equal(t, NeutralStrength, e.EffectiveStrength())

	e.StrengthScore = Score(0)
	assert.Equal(t, 0.0, e.EffectiveStrength(), "a stored zero is not replaced")
}

func TestEntityEnrichment(t *testing.T) {
	e := Entity{ID: "p1", Type: EntityTypePerson}
	assert.False(t, e.HasProfessionalNetwork())
	assert.Nil(t, e.Industries())
	assert.True(t, e.IsPerson())
	assert.False(t, e.IsOrganization())

	e.Enrichment = &Enrichment{LinkedInURL: "https://example.com/in/p1", Industries: []string{"fintech"}}
	assert.True(t, e.HasProfessionalNetwork())
	assert.Equal(t, []string{"fintech"}, e.Industries())
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"shortest":     StrategyShortest,
		"BFS":          StrategyShortest,
		" strongest ":  StrategyStrongest,
		"hub-mediated": StrategyHub,
		"org":          StrategyOrganization,
	}
	for in, want := range tests {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStrategy("teleport")
	assert.Error(t, err)
}

func TestPathHelpers(t *testing.T) {
	p := Path{Nodes: []string{"a", "m", "t"}, Steps: []PathStep{{From: "a", To: "m"}, {From: "m", To: "t"}}}
	assert.Equal(t, "a", p.Source())
	assert.Equal(t, "t", p.Target())
	assert.Equal(t, []string{"m"}, p.Intermediates())

	clone := p.Clone()
	clone.Nodes[1] = "x"
	assert.Equal(t, "m", p.Nodes[1])
	assert.NotEqual(t, p.Key(), clone.Key())

	var empty Path
	assert.Empty(t, empty.Source())
	assert.Nil(t, empty.Intermediates())
}

func TestDescribeHops(t *testing.T) {
	assert.Equal(t, "Same entity", DescribeHops(0))
	assert.Equal(t, "Direct connection", DescribeHops(1))
	assert.Equal(t, "3 degrees of separation", DescribeHops(3))
}

func TestValidKinds(t *testing.T) {
	assert.True(t, IsValidEntityType(EntityTypeFund))
	assert.False(t, IsValidEntityType("planet"))
	assert.True(t, IsValidEdgeKind(KindBoardMember))
	assert.False(t, IsValidEdgeKind("nemesis"))
}
