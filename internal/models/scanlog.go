package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ScanTypeEntry = "entry"
	ScanTypeExit  = "exit"
)

// ScanLog is the append-only audit record of one confirm attempt.
// Rows are never updated after insert.
type ScanLog struct {
	bun.BaseModel `bun:"table:scan_logs"`

	ScanLogID string    `bun:"scan_log_id,pk" json:"scan_log_id"`
	TicketID  string    `bun:"ticket_id,notnull" json:"ticket_id"`
	AgentID   string    `bun:"agent_id" json:"agent_id"`
	GateID    string    `bun:"gate_id" json:"gate_id"`
	ScanType  string    `bun:"scan_type,notnull" json:"scan_type"`
	Result    string    `bun:"result,notnull" json:"result"`
	Details   string    `bun:"details" json:"details,omitempty"`
	ScannedAt time.Time `bun:"scanned_at,notnull" json:"scanned_at"`
}
