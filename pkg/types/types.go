// Package types defines the core data structures of the relationship graph:
// entities, typed weighted edges between them, and the introduction paths
// derived from traversing those edges.
package types

// EntityType classifies a node in the relationship graph.
type EntityType string

// EdgeKind is the relationship type carried by an edge.
type EdgeKind string

// Entity type constants. Other values are accepted and treated generically.
const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeFund         EntityType = "fund"
	EntityTypeDeal         EntityType = "deal"
)

// ValidEntityTypes lists the entity types the engine knows about.
var ValidEntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypeOrganization,
	EntityTypeFund,
	EntityTypeDeal,
}

// Relationship kind constants.
const (
	// Leadership and ownership
	KindFounder     EdgeKind = "founder"
	KindCoFounder   EdgeKind = "co_founder"
	KindCEO         EdgeKind = "ceo"
	KindExecutive   EdgeKind = "executive"
	KindBoardMember EdgeKind = "board_member"

	// Capital relationships
	KindInvestor           EdgeKind = "investor"
	KindPortfolioCompanyOf EdgeKind = "portfolio_company_of"

	// Working relationships
	KindPartner   EdgeKind = "partner"
	KindAdvisor   EdgeKind = "advisor"
	KindEmployee  EdgeKind = "employee"
	KindColleague EdgeKind = "colleague"

	// Weak ties
	KindContact EdgeKind = "contact"
	KindOther   EdgeKind = "other"
)

// ValidEdgeKinds lists the relationship kinds the engine has weights for.
var ValidEdgeKinds = []EdgeKind{
	KindFounder, KindCoFounder, KindCEO, KindExecutive, KindBoardMember,
	KindInvestor, KindPortfolioCompanyOf,
	KindPartner, KindAdvisor, KindEmployee, KindColleague,
	KindContact, KindOther,
}

// IsValidEntityType checks if the given entity type is one of ValidEntityTypes.
func IsValidEntityType(entityType EntityType) bool {
	for _, validType := range ValidEntityTypes {
		if validType == entityType {
			return true
		}
	}
	return false
}

// IsValidEdgeKind checks if the given kind is one of ValidEdgeKinds.
func IsValidEdgeKind(kind EdgeKind) bool {
	for _, validKind := range ValidEdgeKinds {
		if validKind == kind {
			return true
		}
	}
	return false
}
