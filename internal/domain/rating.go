package domain

import "time"

// EntityType identifies the kind of party a rating is about.
type EntityType string

const (
	EntityTenant   EntityType = "tenant"
	EntityLandlord EntityType = "landlord"
	EntityAgent    EntityType = "agent"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTenant, EntityLandlord, EntityAgent:
		return true
	default:
		return false
	}
}

// Category is a single scored aspect of a rating.
type Category struct {
	Category string `json:"category" validate:"required"`
	Value    int    `json:"value" validate:"min=1,max=5"`
}

// Rating is an immutable assessment left by RatedByRef about RatedEntityRef.
type Rating struct {
	ID             string
	RatedByRef     string
	RatedEntityRef string
	EntityType     EntityType
	Categories     []Category
	Comment        *string
	CreatedAt      time.Time
}

// CloneCategories returns a copy so snapshots never alias the source slice.
func CloneCategories(in []Category) []Category {
	if in == nil {
		return nil
	}
	out := make([]Category, len(in))
	copy(out, in)
	return out
}
