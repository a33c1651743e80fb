// Package occupancy maintains the live per-event head count. Different
// tickets of one event race on this counter, so every mutation is a
// single conditional UPDATE; the database row is the serialization
// point, not the caller's ticket lock.
package occupancy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-admission/internal/models"

	"github.com/uptrace/bun"
)

type Counter struct {
	Bun *bun.DB
}

func NewCounter(db *bun.DB) *Counter {
	return &Counter{Bun: db}
}

// Ensure creates the counter row for an event if it does not exist yet.
func (c *Counter) Ensure(ctx context.Context, eventID string) error {
	counter := models.EventCounter{
		EventID:   eventID,
		CurrentIn: 0,
		UpdatedAt: time.Now(),
	}
	_, err := c.Bun.NewInsert().
		Model(&counter).
		On("CONFLICT (event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure counter row for event %s: %w", eventID, err)
	}
	return nil
}

// Get returns the number of people currently inside for the event. A
// missing row reads as zero.
func (c *Counter) Get(ctx context.Context, eventID string) (int, error) {
	var counter models.EventCounter
	err := c.Bun.NewSelect().
		Model(&counter).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter for event %s: %w", eventID, err)
	}
	return counter.CurrentIn, nil
}

// TryIncrement admits one person only while current_in < capacity. The
// capacity check and the increment are one statement, so two entries
// racing on the last slot cannot both pass a stale check.
func (c *Counter) TryIncrement(ctx context.Context, eventID string, capacity int) (bool, error) {
	if err := c.Ensure(ctx, eventID); err != nil {
		return false, err
	}

	res, err := c.Bun.NewUpdate().
		Model((*models.EventCounter)(nil)).
		Set("current_in = current_in + 1").
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", eventID).
		Where("current_in < ?", capacity).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to increment counter for event %s: %w", eventID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read increment result: %w", err)
	}
	return affected == 1, nil
}

// Decrement releases one admission, flooring at zero.
func (c *Counter) Decrement(ctx context.Context, eventID string) error {
	_, err := c.Bun.NewUpdate().
		Model((*models.EventCounter)(nil)).
		Set("current_in = current_in - 1").
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", eventID).
		Where("current_in > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to decrement counter for event %s: %w", eventID, err)
	}
	return nil
}
