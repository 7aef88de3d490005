package domain

import "time"

type RSVPStatus string

const (
	RSVPPending  RSVPStatus = "pending"
	RSVPAccepted RSVPStatus = "accepted"
	RSVPDeclined RSVPStatus = "declined"
)

type Guest struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	Name         string     `json:"name"`
	PhoneNumber  string     `json:"phone_number"`
	RSVPStatus   RSVPStatus `json:"rsvp_status"`
	PartySize    int        `json:"party_size"`
	DietaryNotes string     `json:"dietary_notes,omitempty"`
	TableID      *string    `json:"table_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
