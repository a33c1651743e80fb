package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EventCounter tracks how many ticket-holders are currently inside the
// venue for one event. Mutated only through the occupancy package.
type EventCounter struct {
	bun.BaseModel `bun:"table:event_counters"`

	EventID   string    `bun:"event_id,pk" json:"event_id"`
	CurrentIn int       `bun:"current_in,notnull" json:"current_in"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}
