package watchlist

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one (user, lot) watch pair. Add and remove are idempotent; there
// is no ordering.
type Entry struct {
	UserID    uuid.UUID `json:"user_id"`
	LotID     uuid.UUID `json:"lot_id"`
	CreatedAt time.Time `json:"created_at"`
}
