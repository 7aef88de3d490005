package domain

import "time"

type ResolutionStrategy string

// Last-write-wins is the only resolution the server applies. The other
// strategies exist for the resolve_conflict acknowledgement message, where
// a client records how it merged the notification into its own state.
const (
	ResolutionLastWriteWins ResolutionStrategy = "last_write_wins"
	ResolutionKeepLocal     ResolutionStrategy = "keep_local"
	ResolutionKeepRemote    ResolutionStrategy = "keep_remote"
)

// Conflict describes a concurrent modification that was resolved by
// last-write-wins. It is informational: the losing write is already gone
// by the time this is delivered, and no merge is attempted.
type Conflict struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	Entity       EntityKind         `json:"entity"`
	EntityID     string             `json:"entity_id"`
	WinnerUserID string             `json:"winner_user_id,omitempty"`
	WinnerAt     time.Time          `json:"winner_at"`
	LoserAt      time.Time          `json:"loser_at"`
	Resolution   ResolutionStrategy `json:"resolution"`
	DetectedAt   time.Time          `json:"detected_at"`
}
