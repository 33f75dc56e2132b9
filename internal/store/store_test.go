package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pourkiosk/internal/checkout"
	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/dispense"
	"github.com/roach88/pourkiosk/internal/pour"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testOrder(id string) checkout.Order {
	return checkout.Order{
		ID: id,
		Lines: []checkout.Line{
			{BeverageID: "beer", Name: "Beer <draft>", VolumeMl: 500, Quantity: 1, UnitPrice: decimal.RequireFromString("6.00"), Restricted: true},
			{BeverageID: "cola", Name: "Cola", VolumeMl: 300, Quantity: 2, UnitPrice: decimal.RequireFromString("1.50")},
		},
		Total:        decimal.RequireFromString("9.00"),
		Currency:     "EUR",
		ConsentGiven: true,
		AgeVerified:  true,
		CreatedAt:    clock.Epoch.Add(1500 * time.Millisecond),
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"orders", "pour_results"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q not found", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))

	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_orders_status'").Scan(&name)
	assert.NoError(t, err)
}

func TestWriteOrder_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	o := testOrder("order-1")

	require.NoError(t, s.WriteOrder(ctx, o))

	rec, err := s.ReadOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, "EUR", rec.Currency)
	assert.True(t, rec.ConsentGiven)
	assert.True(t, rec.AgeVerified)
	assert.True(t, o.CreatedAt.Equal(rec.CreatedAt))
	assert.True(t, o.Total.Equal(rec.Total))
	require.Len(t, rec.Lines, 2)
	assert.Equal(t, "Beer <draft>", rec.Lines[0].Name)
	assert.True(t, rec.Lines[1].UnitPrice.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, o.Items(), rec.Items())
}

func TestWriteOrder_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteOrder(ctx, testOrder("order-1")))
	require.NoError(t, s.UpdateOrderStatus(ctx, "order-1", StatusProcessing))
	require.NoError(t, s.WriteOrder(ctx, testOrder("order-1")))

	rec, err := s.ReadOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status, "a duplicate write keeps the first row")
}

func TestReadOrder_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadOrder(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateOrderStatus_Lifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteOrder(ctx, testOrder("order-1")))

	require.NoError(t, s.UpdateOrderStatus(ctx, "order-1", StatusProcessing))
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "order-1", StatusPending), ErrInvalidStatus)
	require.NoError(t, s.UpdateOrderStatus(ctx, "order-1", StatusPartial))
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "order-1", StatusCompleted), ErrInvalidStatus)

	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "missing", StatusProcessing), ErrNotFound)
}

func TestReadOrders_FilterAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, s.WriteOrder(ctx, testOrder(id)))
	}
	require.NoError(t, s.UpdateOrderStatus(ctx, "a", StatusFailed))

	all, err := s.ReadOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{all[0].ID, all[1].ID, all[2].ID}, "insertion order, not id order")

	failed, err := s.ReadOrders(ctx, StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].ID)

	none, err := s.ReadOrders(ctx, StatusCompleted)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestPourResults_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteOrder(ctx, testOrder("order-1")))

	results := []dispense.Result{
		{Seq: 1, BeverageID: "beer", Unit: 1, Attempts: 1, Result: pour.Result{
			ValveID: "18", SensorID: "28", TargetMl: 500, PouredMl: 500, Pulses: 3750,
			Elapsed: 17*time.Second + 200*time.Millisecond, Outcome: pour.OutcomeCompleted,
		}},
		{Seq: 2, BeverageID: "cola", Unit: 1, Attempts: 2, Result: pour.Result{
			ValveID: "17", SensorID: "27", TargetMl: 300, Outcome: pour.OutcomeHardwareFault,
			Err: errors.New("IO_FAILED: open pin 17"),
		}},
		{Seq: 3, BeverageID: "cola", Unit: 2, Attempts: 1, Result: pour.Result{
			ValveID: "17", SensorID: "27", TargetMl: 300, Outcome: pour.OutcomeTimedOut, Aborted: true,
		}},
	}
	// Written out of order; read back by seq.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.WritePourResult(ctx, "order-1", results[i]))
	}
	require.NoError(t, s.WritePourResult(ctx, "order-1", results[0]), "duplicate write is ignored")

	got, err := s.ReadPourResults(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].Seq)
	assert.Equal(t, uint64(3750), got[0].Pulses)
	assert.Equal(t, 17*time.Second+200*time.Millisecond, got[0].Elapsed)
	assert.Equal(t, pour.OutcomeCompleted, got[0].Outcome)
	assert.Nil(t, got[0].Err)

	assert.Equal(t, 2, got[1].Attempts)
	require.Error(t, got[1].Err)
	assert.Equal(t, "IO_FAILED: open pin 17", got[1].Err.Error())

	assert.True(t, got[2].Aborted)
	assert.Equal(t, 2, got[2].Unit)
}

func TestPourResults_RequireOrder(t *testing.T) {
	s := createTestStore(t)

	err := s.WritePourResult(context.Background(), "ghost", dispense.Result{Seq: 1})
	assert.Error(t, err, "foreign key rejects results for unknown orders")

	got, err := s.ReadPourResults(context.Background(), "ghost")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusCompleted, StatusFor(dispense.FulfillmentFull))
	assert.Equal(t, StatusPartial, StatusFor(dispense.FulfillmentPartial))
	assert.Equal(t, StatusFailed, StatusFor(dispense.FulfillmentFailed))
}
