package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/ridecore/pkg/database"
)

// Outcome is the delivery result for one claimed event.
type Outcome struct {
	ID     uuid.UUID
	Err    error
	GiveUp bool
}

// OutboxRepository persists events and hands undelivered ones to the dispatcher.
type OutboxRepository interface {
	Append(ctx context.Context, events ...Event) error
	AppendTx(ctx context.Context, tx pgx.Tx, events ...Event) error
	// ClaimBatch locks up to limit undelivered events, passes them to deliver and
	// records the outcomes before releasing the locks.
	ClaimBatch(ctx context.Context, limit int, deliver func(events []*Event) []Outcome) (int, error)
}

// Outbox is the Postgres-backed outbox_events table.
type Outbox struct {
	db *pgxpool.Pool
}

func NewOutbox(db *pgxpool.Pool) *Outbox {
	return &Outbox{db: db}
}

// AppendTx writes events inside the caller's transaction, so they become visible only on commit.
func (o *Outbox) AppendTx(ctx context.Context, tx pgx.Tx, events ...Event) error {
	for i := range events {
		ev := &events[i]
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox_events (id, target_kind, target, event, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ev.ID, ev.TargetKind, ev.Target, ev.Name, []byte(ev.Payload), ev.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append outbox event %s: %w", ev.Name, err)
		}
	}
	return nil
}

// Append writes events in their own transaction.
func (o *Outbox) Append(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	return database.WithTx(ctx, o.db, func(tx pgx.Tx) error {
		return o.AppendTx(ctx, tx, events...)
	})
}

func (o *Outbox) ClaimBatch(ctx context.Context, limit int, deliver func(events []*Event) []Outcome) (int, error) {
	claimed := 0
	err := database.WithTx(ctx, o.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, target_kind, target, event, payload, created_at, attempts
			FROM outbox_events
			WHERE dispatched_at IS NULL
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, limit)
		if err != nil {
			return fmt.Errorf("failed to claim outbox events: %w", err)
		}

		var events []*Event
		for rows.Next() {
			ev := &Event{}
			var payload []byte
			if err := rows.Scan(&ev.ID, &ev.TargetKind, &ev.Target, &ev.Name, &payload, &ev.CreatedAt, &ev.Attempts); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan outbox event: %w", err)
			}
			ev.Payload = payload
			events = append(events, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		claimed = len(events)

		for _, out := range deliver(events) {
			if err := recordOutcome(ctx, tx, out); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func recordOutcome(ctx context.Context, tx pgx.Tx, out Outcome) error {
	var err error
	switch {
	case out.Err == nil:
		_, err = tx.Exec(ctx, `
			UPDATE outbox_events SET dispatched_at = NOW(), attempts = attempts + 1, last_error = NULL
			WHERE id = $1`, out.ID)
	case out.GiveUp:
		_, err = tx.Exec(ctx, `
			UPDATE outbox_events SET dispatched_at = NOW(), attempts = attempts + 1, last_error = $2
			WHERE id = $1`, out.ID, out.Err.Error())
	default:
		_, err = tx.Exec(ctx, `
			UPDATE outbox_events SET attempts = attempts + 1, last_error = $2
			WHERE id = $1`, out.ID, out.Err.Error())
	}
	if err != nil {
		return fmt.Errorf("failed to record outbox outcome: %w", err)
	}
	return nil
}
