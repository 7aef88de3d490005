package domain

import "time"

type VenueElementKind string

const (
	VenueElementStage      VenueElementKind = "stage"
	VenueElementDanceFloor VenueElementKind = "dancefloor"
	VenueElementBar        VenueElementKind = "bar"
	VenueElementEntrance   VenueElementKind = "entrance"
	VenueElementOther      VenueElementKind = "other"
)

// VenueElement is a non-table fixture on the venue layout (stage, bar, ...).
type VenueElement struct {
	ID        string           `json:"id"`
	EventID   string           `json:"event_id"`
	Kind      VenueElementKind `json:"kind"`
	Label     string           `json:"label,omitempty"`
	PositionX float64          `json:"position_x"`
	PositionY float64          `json:"position_y"`
	Width     float64          `json:"width"`
	Height    float64          `json:"height"`
	Rotation  float64          `json:"rotation"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
