package db

import (
	"context"
	"database/sql"

	"ms-admission/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error) {
	var ticketType models.TicketType
	err := d.Bun.NewSelect().
		Model(&ticketType).
		Where("ticket_type_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticketType, nil
}

func (d *DB) GetGateByID(ctx context.Context, id string) (*models.Gate, error) {
	var gate models.Gate
	err := d.Bun.NewSelect().
		Model(&gate).
		Where("gate_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &gate, nil
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("user_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveScanOutcome persists the result of one confirm attempt in a
// single transaction: the scan log row always, the ticket mutation only
// when the verdict changed it.
func (d *DB) SaveScanOutcome(ctx context.Context, ticket *models.Ticket, scanLog models.ScanLog, mutateTicket bool) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if mutateTicket {
			_, err := tx.NewUpdate().
				Model(ticket).
				Column("status", "used_count", "last_used_at", "gate_in", "last_gate_out", "updated_at").
				Where("ticket_id = ?", ticket.TicketID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		_, err := tx.NewInsert().Model(&scanLog).Exec(ctx)
		return err
	})
}

// GetScanLogsByTicket returns the audit trail for one ticket, newest first.
func (d *DB) GetScanLogsByTicket(ctx context.Context, ticketID string) ([]models.ScanLog, error) {
	var logs []models.ScanLog
	err := d.Bun.NewSelect().
		Model(&logs).
		Where("ticket_id = ?", ticketID).
		Order("scanned_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
