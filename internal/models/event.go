package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID       string    `bun:"event_id,pk" json:"event_id"`
	Name          string    `bun:"name,notnull" json:"name"`
	StartDatetime time.Time `bun:"start_datetime,notnull" json:"start_datetime"`
	EndDatetime   time.Time `bun:"end_datetime,notnull" json:"end_datetime"`
	Capacity      int       `bun:"capacity,notnull" json:"capacity"`
	AllowReentry  bool      `bun:"allow_reentry" json:"allow_reentry"`
}

// TicketType carries the optional validity window and usage limit for
// tickets of one tier. Zero values mean "no restriction".
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	TicketTypeID string    `bun:"ticket_type_id,pk" json:"ticket_type_id"`
	EventID      string    `bun:"event_id,notnull" json:"event_id"`
	Name         string    `bun:"name,notnull" json:"name"`
	ValidityFrom time.Time `bun:"validity_from,nullzero" json:"validity_from,omitempty"`
	ValidityTo   time.Time `bun:"validity_to,nullzero" json:"validity_to,omitempty"`
	UsageLimit   int       `bun:"usage_limit" json:"usage_limit"`
}
