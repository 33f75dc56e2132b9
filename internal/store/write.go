package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/dispense"
)

// WriteOrder records a frozen order with status pending.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same order
// twice keeps the first row and its status.
func (s *Store) WriteOrder(ctx context.Context, o checkout.Order) error {
	lines, err := marshalLines(o.Lines)
	if err != nil {
		return fmt.Errorf("write order: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, seq, status, lines, total, currency, consent_given, age_verified, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM orders), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		o.ID,
		string(StatusPending),
		lines,
		o.Total.String(),
		o.Currency,
		boolToInt(o.ConsentGiven),
		boolToInt(o.AgeVerified),
		formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write order: %w", err)
	}
	return nil
}

// UpdateOrderStatus moves an order along its lifecycle. Returns ErrNotFound
// for an unknown order and ErrInvalidStatus for a backwards or repeated
// final transition.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, to Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update order status: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var from string
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update order status: %w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if err := checkTransition(Status(from), to); err != nil {
		return fmt.Errorf("update order status %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(to), id); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update order status: commit: %w", err)
	}
	return nil
}

// WritePourResult appends one pour result to an order's log.
// Uses ON CONFLICT(order_id, seq) DO NOTHING for idempotency.
//
// Note: The order must exist (foreign key constraint).
func (s *Store) WritePourResult(ctx context.Context, orderID string, r dispense.Result) error {
	errText := ""
	if r.Err != nil {
		errText = r.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pour_results
		(order_id, seq, beverage_id, unit, attempts, valve_id, sensor_id,
		 target_ml, poured_ml, pulses, elapsed_ns, outcome, aborted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id, seq) DO NOTHING
	`,
		orderID,
		r.Seq,
		r.BeverageID,
		r.Unit,
		r.Attempts,
		r.ValveID,
		r.SensorID,
		r.TargetMl,
		r.PouredMl,
		int64(r.Pulses),
		int64(r.Elapsed),
		string(r.Outcome),
		boolToInt(r.Aborted),
		errText,
	)
	if err != nil {
		return fmt.Errorf("write pour result: %w", err)
	}
	return nil
}
