package types

// Entity represents a node in the relationship graph: a person, organization,
// fund or deal. Entities are produced by the ingestion pipeline and are
// immutable for the lifetime of one analysis snapshot.
type Entity struct {
	// Core identification fields
	ID   string     `json:"id" yaml:"id"`     // Stable identifier
	Name string     `json:"name" yaml:"name"` // Display name
	Type EntityType `json:"type" yaml:"type"` // Entity type (see EntityType constants)

	// Relationship flags
	IsInternal  bool `json:"is_internal,omitempty" yaml:"is_internal,omitempty"`   // Internal personnel / trusted seed
	IsPortfolio bool `json:"is_portfolio,omitempty" yaml:"is_portfolio,omitempty"` // Portfolio company or its people
	IsPipeline  bool `json:"is_pipeline,omitempty" yaml:"is_pipeline,omitempty"`   // Deal pipeline member

	// Importance is an externally assigned weight in [0,1].
	Importance float64 `json:"importance,omitempty" yaml:"importance,omitempty"`

	// Embedding for semantic similarity scoring (optional, fixed length per snapshot).
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`

	// Enrichment holds typed optional fields used only for scoring bonuses.
	Enrichment *Enrichment `json:"enrichment,omitempty" yaml:"enrichment,omitempty"`

	// Metadata is passed through untouched; the engine never reads it.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Enrichment contains optional profile data attached by the enrichment
// pipeline. A nil *Enrichment behaves like an empty one.
type Enrichment struct {
	LinkedInURL string   `json:"linkedin_url,omitempty" yaml:"linkedin_url,omitempty"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	Industries  []string `json:"industries,omitempty" yaml:"industries,omitempty"`
}

// HasProfessionalNetwork reports whether the entity has a known professional
// network profile.
func (e *Entity) HasProfessionalNetwork() bool {
	return e.Enrichment != nil && e.Enrichment.LinkedInURL != ""
}

// Industries returns the entity's industries, or nil when not enriched.
func (e *Entity) Industries() []string {
	if e.Enrichment == nil {
		return nil
	}
	return e.Enrichment.Industries
}

// IsPerson reports whether the entity is a person.
func (e *Entity) IsPerson() bool {
	return e.Type == EntityTypePerson
}

// IsOrganization reports whether the entity is an organization.
func (e *Entity) IsOrganization() bool {
	return e.Type == EntityTypeOrganization
}
