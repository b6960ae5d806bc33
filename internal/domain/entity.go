package domain

import "time"

// EntityType names a queryable kind of record.
type EntityType string

const (
	EntityTypeObservation EntityType = "Observation"
	EntityTypeName        EntityType = "Name"
	EntityTypeLocation    EntityType = "Location"
	EntityTypeImage       EntityType = "Image"
	EntityTypeUser        EntityType = "User"
)

// String implements fmt.Stringer
func (t EntityType) String() string {
	return string(t)
}

// Record is anything that can be passed to an entity-reference parameter in
// place of a bare identifier.
type Record interface {
	RecordID() int64
	RecordType() EntityType
}

// Entity is the materialized form of one query result. Fields holds the
// type-specific columns keyed by column name.
type Entity struct {
	ID         int64          `json:"id"`
	EntityType EntityType     `json:"entity_type"`
	Title      string         `json:"title"`
	Fields     map[string]any `json:"fields,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RecordID implements Record
func (e Entity) RecordID() int64 {
	return e.ID
}

// RecordType implements Record
func (e Entity) RecordType() EntityType {
	return e.EntityType
}

// Observation is a single sighting of an organism.
type Observation struct {
	ID                   int64
	UserID               int64
	NameID               *int64
	LocationID           *int64
	When                 string
	Notes                string
	ThumbImageID         *int64
	Specimen             bool
	IsCollectionLocation bool
	VoteCache            float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (o Observation) RecordID() int64        { return o.ID }
func (o Observation) RecordType() EntityType { return EntityTypeObservation }

// Name is a taxon name.
type Name struct {
	ID         int64
	TextName   string
	SearchName string
	Author     string
	Rank       string
	Deprecated bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (n Name) RecordID() int64        { return n.ID }
func (n Name) RecordType() EntityType { return EntityTypeName }

// Location is a named place with a bounding box.
type Location struct {
	ID        int64
	Name      string
	North     float64
	South     float64
	East      float64
	West      float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l Location) RecordID() int64        { return l.ID }
func (l Location) RecordType() EntityType { return EntityTypeLocation }

// User is a registered contributor.
type User struct {
	ID        int64
	Login     string
	Name      string
	CreatedAt time.Time
}

func (u User) RecordID() int64        { return u.ID }
func (u User) RecordType() EntityType { return EntityTypeUser }
