package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/dispense"
	"github.com/roach88/pourkiosk/internal/pour"
)

// OrderRecord is a logged order with its current status.
type OrderRecord struct {
	Seq    int64  `json:"seq"`
	Status Status `json:"status"`
	checkout.Order
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const orderColumns = `seq, id, status, lines, total, currency, consent_given, age_verified, created_at`

// ReadOrder returns one order. Returns ErrNotFound if it does not exist.
func (s *Store) ReadOrder(ctx context.Context, id string) (OrderRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	rec, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// ReadOrders returns logged orders in insertion order. An empty status
// returns every order.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadOrders(ctx context.Context, status Status) ([]OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY seq ASC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + orderColumns + ` FROM orders WHERE status = ? ORDER BY seq ASC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	records := []OrderRecord{}
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return records, nil
}

func scanOrder(row scanner) (OrderRecord, error) {
	var (
		rec             OrderRecord
		status, lines   string
		total, created  string
		consent, ageChk int
	)
	err := row.Scan(&rec.Seq, &rec.ID, &status, &lines, &total, &rec.Currency, &consent, &ageChk, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OrderRecord{}, err
		}
		return OrderRecord{}, fmt.Errorf("scan order: %w", err)
	}

	rec.Status = Status(status)
	rec.ConsentGiven = consent != 0
	rec.AgeVerified = ageChk != 0
	if rec.Lines, err = unmarshalLines(lines); err != nil {
		return OrderRecord{}, err
	}
	if rec.Total, err = decimal.NewFromString(total); err != nil {
		return OrderRecord{}, fmt.Errorf("parse total %q: %w", total, err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return OrderRecord{}, err
	}
	return rec, nil
}

// ReadPourResults returns the pour log of an order ordered by task seq.
// Recorded errors come back as plain errors carrying the original text.
//
// Returns an empty slice (not nil) if nothing was poured.
func (s *Store) ReadPourResults(ctx context.Context, orderID string) ([]dispense.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, beverage_id, unit, attempts, valve_id, sensor_id,
		       target_ml, poured_ml, pulses, elapsed_ns, outcome, aborted, error
		FROM pour_results
		WHERE order_id = ?
		ORDER BY seq ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query pour results: %w", err)
	}
	defer rows.Close()

	results := []dispense.Result{}
	for rows.Next() {
		var (
			r       dispense.Result
			pulses  int64
			elapsed int64
			outcome string
			aborted int
			errText string
		)
		if err := rows.Scan(&r.Seq, &r.BeverageID, &r.Unit, &r.Attempts, &r.ValveID, &r.SensorID,
			&r.TargetMl, &r.PouredMl, &pulses, &elapsed, &outcome, &aborted, &errText); err != nil {
			return nil, fmt.Errorf("scan pour result: %w", err)
		}
		r.Pulses = uint64(pulses)
		r.Elapsed = time.Duration(elapsed)
		r.Outcome = pour.Outcome(outcome)
		r.Aborted = aborted != 0
		if errText != "" {
			r.Err = errors.New(errText)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pour results: %w", err)
	}
	return results, nil
}
