// Package influence computes per-entity connectivity and bounded influence
// scores, and whole-graph summaries, as read-only reductions over a
// network.Index.
package influence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/relgraph/internal/network"
	"github.com/scrypster/relgraph/pkg/types"
)

// Influence term weights and caps. The total is clamped to [0, MaxInfluence].
const (
	internalBonus  = 4.0
	portfolioBonus = 3.0
	pipelineBonus  = 2.0
	flagsCap       = 8.0

	professionalNetworkBonus = 2.0

	connectivityCap = 6.0
	industryCap     = 4.0

	// MaxInfluence is the upper bound of every influence score.
	MaxInfluence = 20.0
)

// Config holds the classification thresholds.
type Config struct {
	// WellConnectedNeighbors is the minimum number of distinct neighbors of a
	// well-connected entity (default: 5).
	WellConnectedNeighbors int `yaml:"well_connected_neighbors" json:"well_connected_neighbors"`

	// InfluentialScore is the minimum influence score of an influential
	// entity (default: 8).
	InfluentialScore float64 `yaml:"influential_score" json:"influential_score"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{WellConnectedNeighbors: 5, InfluentialScore: 8}
}

// Normalize fills unset thresholds with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.WellConnectedNeighbors < 1 {
		c.WellConnectedNeighbors = d.WellConnectedNeighbors
	}
	if c.InfluentialScore <= 0 {
		c.InfluentialScore = d.InfluentialScore
	}
}

// Breakdown lists the capped terms that make up an influence score.
type Breakdown struct {
	Flags                float64 `json:"flags"`
	ProfessionalNetwork  float64 `json:"professional_network"`
	Connectivity         float64 `json:"connectivity"`
	IndustryCoMembership float64 `json:"industry_co_membership"`
}

// ConnectivitySummary describes one entity's position in the network.
type ConnectivitySummary struct {
	EntityID            string           `json:"entity_id"`
	Name                string           `json:"name"`
	Type                types.EntityType `json:"type"`
	OutgoingConnections int              `json:"outgoing_connections"`
	IncomingConnections int              `json:"incoming_connections"`
	TotalConnections    int              `json:"total_connections"`
	UniqueNeighbors     int              `json:"unique_neighbors"`
	InfluenceScore      float64          `json:"influence_score"`
	Breakdown           Breakdown        `json:"breakdown"`
	NetworkDensity      float64          `json:"network_density"`
	IsWellConnected     bool             `json:"is_well_connected"`
	IsInfluential       bool             `json:"is_influential"`
}

// NetworkInsights is the aggregate, snapshot-level report.
type NetworkInsights struct {
	ID                 string                `json:"id"`
	SnapshotVersion    string                `json:"snapshot_version"`
	ComputedAt         time.Time             `json:"computed_at"`
	TotalEntities      int                   `json:"total_entities"`
	TotalConnections   int                   `json:"total_connections"`
	DroppedEdges       int                   `json:"dropped_edges"`
	WellConnectedCount int                   `json:"well_connected_count"`
	InfluentialCount   int                   `json:"influential_count"`
	OverallDensity     float64               `json:"overall_density"`
	AverageDegree      float64               `json:"average_degree"`
	Components         int                   `json:"components"`
	LargestComponent   int                   `json:"largest_component"`
	EntityTypeCounts   map[string]int        `json:"entity_type_counts"`
	TopInfluencers     []ConnectivitySummary `json:"top_influencers"`
}

// Analyzer computes connectivity summaries over one index. Per-entity
// scores are computed once, on first use.
//
// Thread Safety: an Analyzer is safe for concurrent use.
type Analyzer struct {
	index   *network.Index
	version string
	cfg     Config
	logger  *slog.Logger

	once      sync.Once
	summaries []ConnectivitySummary
	ranking   []int32
}

// NewAnalyzer creates an Analyzer for the index of snapshot version.
// A nil logger uses slog.Default().
func NewAnalyzer(index *network.Index, version string, cfg Config, logger *slog.Logger) *Analyzer {
	cfg.Normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		index:   index,
		version: version,
		cfg:     cfg,
		logger:  logger.With("component", "influence"),
	}
}

// Config returns the effective thresholds.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze returns the connectivity summary of id, or false if id is unknown.
func (a *Analyzer) Analyze(id string) (*ConnectivitySummary, bool) {
	i, ok := a.index.Lookup(id)
	if !ok {
		return nil, false
	}
	a.compute()
	s := a.summaries[i]
	return &s, true
}

// InfluenceScore returns the influence score of id, 0 for unknown ids.
func (a *Analyzer) InfluenceScore(id string) float64 {
	i, ok := a.index.Lookup(id)
	if !ok {
		return 0
	}
	a.compute()
	return a.summaries[i].InfluenceScore
}

// IsWellConnected reports whether id has at least WellConnectedNeighbors
// distinct neighbors.
func (a *Analyzer) IsWellConnected(id string) bool {
	return a.index.UniqueNeighbors(id) >= a.cfg.WellConnectedNeighbors
}

// IsInfluential reports whether the influence score of id reaches
// InfluentialScore.
func (a *Analyzer) IsInfluential(id string) bool {
	return a.index.Has(id) && a.InfluenceScore(id) >= a.cfg.InfluentialScore
}

// RankSeeds orders ids by influence score desc, then ID asc. Unknown ids are
// dropped.
func (a *Analyzer) RankSeeds(ids []string) []string {
	a.compute()
	pos := make([]int32, 0, len(ids))
	seen := make(map[int32]bool, len(ids))
	for _, id := range ids {
		if i, ok := a.index.Lookup(id); ok && !seen[i] {
			seen[i] = true
			pos = append(pos, i)
		}
	}
	sort.Slice(pos, func(x, y int) bool {
		sx, sy := a.summaries[pos[x]].InfluenceScore, a.summaries[pos[y]].InfluenceScore
		if sx != sy {
			return sx > sy
		}
		return pos[x] < pos[y]
	})
	out := make([]string, len(pos))
	for k, i := range pos {
		out[k] = a.index.IDAt(i)
	}
	return out
}

// Insights reduces the whole index to a NetworkInsights report with the
// topK most influential entities (default: 10).
func (a *Analyzer) Insights(topK int) NetworkInsights {
	if topK < 1 {
		topK = 10
	}
	a.compute()

	n := a.index.Len()
	ins := NetworkInsights{
		ID:               uuid.New().String(),
		SnapshotVersion:  a.version,
		ComputedAt:       time.Now().UTC(),
		TotalEntities:    n,
		TotalConnections: a.index.EdgeCount(),
		DroppedEdges:     a.index.Diagnostics().DroppedEdges(),
		EntityTypeCounts: make(map[string]int),
		TopInfluencers:   []ConnectivitySummary{},
	}

	for i := range a.summaries {
		s := &a.summaries[i]
		ins.EntityTypeCounts[string(s.Type)]++
		if s.IsWellConnected {
			ins.WellConnectedCount++
		}
		if s.IsInfluential {
			ins.InfluentialCount++
		}
	}
	if n > 1 {
		ins.OverallDensity = float64(a.index.PairCount()) / float64(n*(n-1))
	}
	if n > 0 {
		ins.AverageDegree = 2 * float64(ins.TotalConnections) / float64(n)
	}
	ins.Components, ins.LargestComponent = a.components()

	for k := 0; k < topK && k < len(a.ranking); k++ {
		ins.TopInfluencers = append(ins.TopInfluencers, a.summaries[a.ranking[k]])
	}

	a.logger.Debug("network insights computed",
		"snapshot", a.version,
		"entities", ins.TotalEntities,
		"connections", ins.TotalConnections,
		"dropped_edges", ins.DroppedEdges)
	return ins
}

func (a *Analyzer) compute() {
	a.once.Do(func() {
		n := a.index.Len()
		a.summaries = make([]ConnectivitySummary, n)
		a.ranking = make([]int32, n)
		for i := 0; i < n; i++ {
			a.summaries[i] = a.summarize(int32(i))
			a.ranking[i] = int32(i)
		}
		sort.SliceStable(a.ranking, func(x, y int) bool {
			sx, sy := &a.summaries[a.ranking[x]], &a.summaries[a.ranking[y]]
			if sx.InfluenceScore != sy.InfluenceScore {
				return sx.InfluenceScore > sy.InfluenceScore
			}
			if sx.UniqueNeighbors != sy.UniqueNeighbors {
				return sx.UniqueNeighbors > sy.UniqueNeighbors
			}
			return a.ranking[x] < a.ranking[y]
		})
	})
}

func (a *Analyzer) summarize(i int32) ConnectivitySummary {
	e := a.index.EntityAt(i)
	s := ConnectivitySummary{
		EntityID: e.ID,
		Name:     e.Name,
		Type:     e.Type,
	}

	for _, l := range a.index.Links(i) {
		if l.Outgoing {
			s.OutgoingConnections++
		} else {
			s.IncomingConnections++
		}
	}
	s.TotalConnections = s.OutgoingConnections + s.IncomingConnections
	s.UniqueNeighbors = a.index.UniqueNeighborsAt(i)

	if n := a.index.Len(); n > 1 {
		s.NetworkDensity = float64(s.UniqueNeighbors) / float64(n-1)
	}

	s.Breakdown = a.breakdown(i, e, s.UniqueNeighbors)
	total := s.Breakdown.Flags + s.Breakdown.ProfessionalNetwork + s.Breakdown.Connectivity + s.Breakdown.IndustryCoMembership
	s.InfluenceScore = clamp(total, 0, MaxInfluence)

	s.IsWellConnected = s.UniqueNeighbors >= a.cfg.WellConnectedNeighbors
	s.IsInfluential = s.InfluenceScore >= a.cfg.InfluentialScore
	return s
}

func (a *Analyzer) breakdown(i int32, e *types.Entity, unique int) Breakdown {
	var b Breakdown
	if e.IsInternal {
		b.Flags += internalBonus
	}
	if e.IsPortfolio {
		b.Flags += portfolioBonus
	}
	if e.IsPipeline {
		b.Flags += pipelineBonus
	}
	b.Flags = min(b.Flags, flagsCap)

	if e.HasProfessionalNetwork() {
		b.ProfessionalNetwork = professionalNetworkBonus
	}

	b.Connectivity = min(float64(unique)/2, connectivityCap)
	b.IndustryCoMembership = min(float64(a.sharedIndustryNeighbors(i, e)), industryCap)
	return b
}

// sharedIndustryNeighbors counts distinct neighbors that share at least one
// industry with e.
func (a *Analyzer) sharedIndustryNeighbors(i int32, e *types.Entity) int {
	own := e.Industries()
	if len(own) == 0 {
		return 0
	}
	set := make(map[string]bool, len(own))
	for _, ind := range own {
		set[ind] = true
	}

	count := 0
	prev := int32(-1)
	for _, l := range a.index.Links(i) {
		if l.To == prev {
			continue
		}
		prev = l.To
		for _, ind := range a.index.EntityAt(l.To).Industries() {
			if set[ind] {
				count++
				break
			}
		}
	}
	return count
}

// components counts connected components (edges taken as undirected) and
// the size of the largest one.
func (a *Analyzer) components() (count, largest int) {
	n := a.index.Len()
	seen := make([]bool, n)
	var queue []int32
	for start := 0; start < n; start++ {
		if seen[start] {
			continue
		}
		count++
		size := 0
		seen[start] = true
		queue = append(queue[:0], int32(start))
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			size++
			for _, l := range a.index.Links(u) {
				if !seen[l.To] {
					seen[l.To] = true
					queue = append(queue, l.To)
				}
			}
		}
		if size > largest {
			largest = size
		}
	}
	return count, largest
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
