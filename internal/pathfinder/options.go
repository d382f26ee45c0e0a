package pathfinder

import (
	"time"

	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// Options bounds every traversal strategy.
type Options struct {
	// MaxHops is the maximum path length in edges (default: 4, max: 8).
	MaxHops int

	// MaxPaths caps the paths one strategy returns (default: 10).
	MaxPaths int

	// Timeout is the wall-clock budget of one strategy run (default: 2s).
	Timeout time.Duration

	// MaxNodes and MaxEdges cap the work of one strategy run.
	MaxNodes int
	MaxEdges int

	// HubCandidates is how many hubs the hub-mediated strategy tries (default: 10).
	HubCandidates int

	// HubTypes restricts hub candidates (default: person).
	HubTypes []types.EntityType

	// OrgTypes are the entity types that mediate organization paths
	// (default: organization).
	OrgTypes []types.EntityType
}

// DefaultOptions returns Options with the default bounds.
func DefaultOptions() Options {
	o := Options{}
	o.Normalize()
	return o
}

// Normalize applies defaults and caps.
func (o *Options) Normalize() {
	b := o.bounds()
	o.MaxHops = b.MaxHops
	o.MaxNodes = b.MaxNodes
	o.MaxEdges = b.MaxEdges
	o.Timeout = b.Timeout

	if o.MaxPaths < 1 {
		o.MaxPaths = 10
	}
	if o.HubCandidates < 1 {
		o.HubCandidates = 10
	}
	if len(o.HubTypes) == 0 {
		o.HubTypes = []types.EntityType{types.EntityTypePerson}
	}
	if len(o.OrgTypes) == 0 {
		o.OrgTypes = []types.EntityType{types.EntityTypeOrganization}
	}
}

func (o Options) bounds() storage.GraphBounds {
	b := storage.GraphBounds{
		MaxHops:  o.MaxHops,
		MaxNodes: o.MaxNodes,
		MaxEdges: o.MaxEdges,
		Timeout:  o.Timeout,
	}
	b.Normalize()
	return b
}

func hasType(set []types.EntityType, t types.EntityType) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}
