package domain

import "time"

type TableShape string

const (
	TableShapeRound       TableShape = "round"
	TableShapeRectangular TableShape = "rectangular"
)

// Table is one seating table on the venue layout canvas.
type Table struct {
	ID        string     `json:"id"`
	EventID   string     `json:"event_id"`
	Name      string     `json:"name"`
	Capacity  int        `json:"capacity"`
	Shape     TableShape `json:"shape"`
	PositionX float64    `json:"position_x"`
	PositionY float64    `json:"position_y"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
