package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/clock"
)

var (
	cola = catalog.Beverage{
		ID: "cola", Name: "Cola", Type: catalog.TypeNonAlcoholic,
		Volumes: []int{300, 500}, PricePer100ml: decimal.RequireFromString("0.50"),
		StockMl: 5000, ValveID: "17", SensorID: "27",
	}
	beer = catalog.Beverage{
		ID: "beer", Name: "Beer", Type: catalog.TypeAlcoholic,
		Volumes: []int{300, 500}, PricePer100ml: decimal.RequireFromString("1.20"),
		StockMl: 3000, ValveID: "18", SensorID: "28",
	}
	water = catalog.Beverage{
		ID: "water", Name: "Water", Type: catalog.TypeNonAlcoholic,
		Volumes: []int{300}, PricePer100ml: decimal.RequireFromString("0.30"),
		StockMl: 600, ValveID: "20", SensorID: "30",
	}
)

func newCatalog(t *testing.T) *catalog.Memory {
	t.Helper()
	m, err := catalog.NewMemory(cola, beer, water)
	require.NoError(t, err)
	return m
}

func newSession(t *testing.T, opts ...SessionOption) (*Session, *catalog.Memory) {
	t.Helper()
	cat := newCatalog(t)
	opts = append([]SessionOption{WithIDGenerator(NewFixedGenerator("order-1", "order-2"))}, opts...)
	return NewSession(cat, clock.NewManual(), opts...), cat
}

func cartOf(t *testing.T, add ...func(*Cart) error) Cart {
	t.Helper()
	var c Cart
	for _, fn := range add {
		require.NoError(t, fn(&c))
	}
	return c
}

func item(b catalog.Beverage, ml, qty int) func(*Cart) error {
	return func(c *Cart) error { return c.Add(b, ml, qty, DefaultPolicy()) }
}
