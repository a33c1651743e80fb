package models

import "github.com/uptrace/bun"

const (
	GateStatusActive   = "active"
	GateStatusInactive = "inactive"
)

type Gate struct {
	bun.BaseModel `bun:"table:gates"`

	GateID  string `bun:"gate_id,pk" json:"gate_id"`
	EventID string `bun:"event_id,notnull" json:"event_id"`
	Name    string `bun:"name,notnull" json:"name"`
	Status  string `bun:"status,notnull" json:"status"`
}
