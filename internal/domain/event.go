package domain

import "time"

// Event is one wedding record. Its ID is the tenancy boundary for all
// sync traffic: connections subscribe to exactly one event at a time.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CoupleA   string    `json:"couple_a"`
	CoupleB   string    `json:"couple_b"`
	Date      time.Time `json:"date"`
	VenueName string    `json:"venue_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
