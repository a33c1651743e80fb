package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket lifecycle statuses. Admission only ever moves a ticket between
// paid, in and out; everything else is owned by the ticketing subsystem.
const (
	TicketStatusIssued   = "issued"
	TicketStatusReserved = "reserved"
	TicketStatusPaid     = "paid"
	TicketStatusIn       = "in"
	TicketStatusOut      = "out"
	TicketStatusInvalid  = "invalid"
	TicketStatusRefunded = "refunded"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID     string    `bun:"ticket_id,pk" json:"ticket_id"`
	EventID      string    `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID string    `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	UserID       string    `bun:"user_id" json:"user_id"`
	Status       string    `bun:"status,notnull" json:"status"`
	QRNonce      string    `bun:"qr_nonce" json:"-"`
	UsedCount    int       `bun:"used_count" json:"used_count"`
	LastUsedAt   time.Time `bun:"last_used_at,nullzero" json:"last_used_at,omitempty"`
	GateIn       string    `bun:"gate_in" json:"gate_in,omitempty"`
	LastGateOut  string    `bun:"last_gate_out" json:"last_gate_out,omitempty"`
	IssuedAt     time.Time `bun:"issued_at" json:"issued_at"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Admissible reports whether the ticket is in a state the scan pipeline
// can act on at all.
func (t *Ticket) Admissible() bool {
	switch t.Status {
	case TicketStatusPaid, TicketStatusIn, TicketStatusOut:
		return true
	}
	return false
}
