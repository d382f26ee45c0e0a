// Package scoring implements the one canonical path score used by every call
// site:
//
//	score = cumulativeStrength × decay^(max(hops,1)−1) × kindWeight + semanticBonus
//
// cumulativeStrength is the product of the stored strengths along the path
// (missing strengths were already replaced by types.NeutralStrength when the
// index was built). kindWeight is the arithmetic mean of the per-kind weights
// of the traversed edges. semanticBonus is SemanticWeight × the mean cosine
// similarity, clamped to [0,1], between a query embedding and the embeddings
// of the entities after the source; it is zero when no query is given.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/scrypster/relgraph/pkg/types"
)

// Config holds the tunable scoring parameters.
type Config struct {
	// DecayFactor is the per-extra-hop multiplier, in (0,1).
	DecayFactor float64 `yaml:"decay_factor" json:"decay_factor"`

	// KindWeights maps relationship kinds to weights in [0,1].
	KindWeights map[types.EdgeKind]float64 `yaml:"kind_weights" json:"kind_weights"`

	// DefaultKindWeight applies to kinds missing from KindWeights.
	DefaultKindWeight float64 `yaml:"default_kind_weight" json:"default_kind_weight"`

	// SemanticWeight scales the semantic bonus.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
}

// DefaultKindWeights returns the built-in relationship weight table.
func DefaultKindWeights() map[types.EdgeKind]float64 {
	return map[types.EdgeKind]float64{
		types.KindFounder:            0.95,
		types.KindCoFounder:          0.95,
		types.KindCEO:                0.9,
		types.KindExecutive:          0.85,
		types.KindBoardMember:        0.85,
		types.KindInvestor:           0.8,
		types.KindPartner:            0.8,
		types.KindPortfolioCompanyOf: 0.75,
		types.KindAdvisor:            0.75,
		types.KindEmployee:           0.7,
		types.KindColleague:          0.65,
		types.KindContact:            0.5,
		types.KindOther:              0.4,
	}
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		DecayFactor:       0.8,
		KindWeights:       DefaultKindWeights(),
		DefaultKindWeight: 0.5,
		SemanticWeight:    0.4,
	}
}

// Normalize merges c onto DefaultConfig. A config without a DecayFactor was
// never configured and takes every default; otherwise zero weights are kept,
// so a tuned SemanticWeight of 0 turns the semantic bonus off. Kind weights
// given in c override the defaults one kind at a time.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.DecayFactor == 0 {
		c.DecayFactor = d.DecayFactor
		c.DefaultKindWeight = d.DefaultKindWeight
		c.SemanticWeight = d.SemanticWeight
	}
	for k, w := range c.KindWeights {
		d.KindWeights[k] = w
	}
	c.KindWeights = d.KindWeights
}

// Validate checks that every parameter is in range.
func (c Config) Validate() error {
	if !(c.DecayFactor > 0 && c.DecayFactor < 1) {
		return fmt.Errorf("decay_factor must be in (0,1), got %v", c.DecayFactor)
	}
	if c.DefaultKindWeight < 0 || c.DefaultKindWeight > 1 {
		return fmt.Errorf("default_kind_weight must be in [0,1], got %v", c.DefaultKindWeight)
	}
	if c.SemanticWeight < 0 || c.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be in [0,1], got %v", c.SemanticWeight)
	}
	for k, w := range c.KindWeights {
		if w < 0 || w > 1 || math.IsNaN(w) {
			return fmt.Errorf("kind weight for %q must be in [0,1], got %v", k, w)
		}
	}
	return nil
}

// Semantic carries the optional query context for the semantic bonus.
type Semantic struct {
	// Query is the embedded query text.
	Query []float32

	// Embedding returns the stored embedding of an entity, or nil.
	Embedding func(id string) []float32
}

func (s *Semantic) usable() bool {
	return s != nil && len(s.Query) > 0 && s.Embedding != nil
}

// Scorer applies the canonical score. It is immutable and safe for
// concurrent use.
type Scorer struct {
	cfg Config
}

// New creates a Scorer; unset fields of cfg take their defaults.
func New(cfg Config) *Scorer {
	cfg.Normalize()
	return &Scorer{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// KindWeight returns the weight of a relationship kind.
func (s *Scorer) KindWeight(k types.EdgeKind) float64 {
	if w, ok := s.cfg.KindWeights[k]; ok {
		return w
	}
	return s.cfg.DefaultKindWeight
}

// HopDecay returns decay^(max(hops,1)-1).
func (s *Scorer) HopDecay(hops int) float64 {
	if hops < 1 {
		hops = 1
	}
	return math.Pow(s.cfg.DecayFactor, float64(hops-1))
}

// Score computes the score of p, records it with its breakdown on p, and
// returns it.
func (s *Scorer) Score(p *types.Path, sem *Semantic) float64 {
	strength := p.CumulativeStrength
	kind := 1.0
	if len(p.Steps) > 0 {
		strength = 1.0
		kind = 0
		for _, st := range p.Steps {
			strength *= st.Strength
			kind += s.KindWeight(st.Kind)
		}
		kind /= float64(len(p.Steps))
	}
	hops := p.Hops
	if len(p.Nodes) > 0 {
		hops = len(p.Nodes) - 1
	}
	decay := s.HopDecay(hops)

	bonus := 0.0
	if sem.usable() {
		bonus = s.cfg.SemanticWeight * clamp01(s.meanSimilarity(p, sem))
	}

	p.Breakdown = types.ScoreBreakdown{
		CumulativeStrength: strength,
		HopDecay:           decay,
		KindWeight:         kind,
		SemanticBonus:      bonus,
	}
	p.Score = strength*decay*kind + bonus
	return p.Score
}

func (s *Scorer) meanSimilarity(p *types.Path, sem *Semantic) float64 {
	nodes := p.Nodes
	if len(nodes) > 1 {
		nodes = nodes[1:]
	}
	sum, n := 0.0, 0
	for _, id := range nodes {
		emb := sem.Embedding(id)
		if len(emb) == 0 {
			continue
		}
		sum += CosineSimilarity(sem.Query, emb)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Rank scores every path, removes duplicates (identical node sequences,
// keeping the higher score), sorts by score desc, hops asc, strength desc and
// key asc, and truncates to maxPaths when maxPaths > 0. The input is not
// modified.
func (s *Scorer) Rank(paths []types.Path, maxPaths int, sem *Semantic) []types.Path {
	scored := make([]types.Path, 0, len(paths))
	for _, p := range paths {
		p = p.Clone()
		s.Score(&p, sem)
		scored = append(scored, p)
	}
	out := Dedup(scored, func(p *types.Path) string { return p.Key() })
	SortPaths(out)
	if maxPaths > 0 && len(out) > maxPaths {
		out = out[:maxPaths]
	}
	return out
}

// Dedup keeps, for every key, the highest-scored path. On equal scores the
// earlier path wins. Output preserves first-occurrence order.
func Dedup(paths []types.Path, key func(*types.Path) string) []types.Path {
	best := make(map[string]int, len(paths))
	out := make([]types.Path, 0, len(paths))
	for i := range paths {
		k := key(&paths[i])
		if j, ok := best[k]; ok {
			if paths[i].Score > out[j].Score {
				out[j] = paths[i]
			}
			continue
		}
		best[k] = len(out)
		out = append(out, paths[i])
	}
	return out
}

// SortPaths orders paths by score desc, hops asc, cumulative strength desc,
// then key asc.
func SortPaths(paths []types.Path) {
	sort.SliceStable(paths, func(i, j int) bool {
		return Better(&paths[i], &paths[j])
	})
}

// Better reports whether a ranks before b.
func Better(a, b *types.Path) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Hops != b.Hops {
		return a.Hops < b.Hops
	}
	if a.CumulativeStrength != b.CumulativeStrength {
		return a.CumulativeStrength > b.CumulativeStrength
	}
	return a.Key() < b.Key()
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
