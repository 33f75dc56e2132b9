package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/pourkiosk/internal/hw"
)

// Type is the beverage category.
type Type string

const (
	TypeAlcoholic    Type = "alcoholic"
	TypeNonAlcoholic Type = "non-alcoholic"
	TypeHot          Type = "hot"
)

// Valid reports whether t is a known category.
func (t Type) Valid() bool {
	switch t {
	case TypeAlcoholic, TypeNonAlcoholic, TypeHot:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// Beverage is one product on sale.
type Beverage struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          Type            `json:"type"`
	Volumes       []int           `json:"volumes"`
	PricePer100ml decimal.Decimal `json:"price_per_100ml"`
	StockMl       int             `json:"stock_ml"`
	ValveID       string          `json:"valve_id,omitempty"`
	SensorID      string          `json:"sensor_id,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
}

// Restricted reports whether selling the beverage requires consent and age
// verification.
func (b Beverage) Restricted() bool {
	return b.Type == TypeAlcoholic
}

// AllowsVolume reports whether ml is one of the beverage's serving sizes.
func (b Beverage) AllowsVolume(ml int) bool {
	return slices.Contains(b.Volumes, ml)
}

// UnitPrice returns the price of one serving of ml millilitres.
func (b Beverage) UnitPrice(ml int) decimal.Decimal {
	return b.PricePer100ml.Mul(decimal.NewFromInt(int64(ml))).Div(hundred).Round(2)
}

// Configured reports whether the beverage is wired to a valve and a sensor.
func (b Beverage) Configured() bool {
	return b.ValveID != "" && b.SensorID != ""
}

// Line returns the hardware line of the beverage.
func (b Beverage) Line() hw.Line {
	return hw.Line{ValveID: b.ValveID, SensorID: b.SensorID}
}

// Validate checks the static fields of a beverage.
func (b Beverage) Validate() error {
	switch {
	case b.ID == "":
		return errors.New("beverage id is required")
	case b.Name == "":
		return fmt.Errorf("beverage %s: name is required", b.ID)
	case !b.Type.Valid():
		return fmt.Errorf("beverage %s: unknown type %q", b.ID, b.Type)
	case len(b.Volumes) == 0:
		return fmt.Errorf("beverage %s: at least one volume is required", b.ID)
	case b.PricePer100ml.IsNegative():
		return fmt.Errorf("beverage %s: negative price", b.ID)
	case b.StockMl < 0:
		return fmt.Errorf("beverage %s: negative stock", b.ID)
	case (b.ValveID == "") != (b.SensorID == ""):
		return fmt.Errorf("beverage %s: valve and sensor must be configured together", b.ID)
	}
	for _, v := range b.Volumes {
		if v <= 0 {
			return fmt.Errorf("beverage %s: invalid volume %d", b.ID, v)
		}
	}
	return nil
}

// ErrNotFound is returned for unknown beverage IDs.
var ErrNotFound = errors.New("beverage not found")

// ErrInsufficientStock is returned when a withdrawal exceeds the stock.
var ErrInsufficientStock = errors.New("insufficient stock")

// Catalog is the beverage provider consumed by the kiosk core.
type Catalog interface {
	// Beverage returns one beverage, including out-of-stock ones.
	Beverage(ctx context.Context, id string) (Beverage, error)

	// Beverages lists the beverages that are in stock, sorted by ID.
	Beverages(ctx context.Context) ([]Beverage, error)

	// Withdraw decrements the stock of a beverage by ml.
	Withdraw(ctx context.Context, id string, ml int) error
}

// Memory is an in-process Catalog.
//
// Thread-safety: All methods are safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	beverages map[string]Beverage
}

// NewMemory creates a catalog holding the given beverages.
func NewMemory(beverages ...Beverage) (*Memory, error) {
	m := &Memory{beverages: make(map[string]Beverage, len(beverages))}
	for _, b := range beverages {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.beverages[b.ID]; dup {
			return nil, fmt.Errorf("duplicate beverage id %s", b.ID)
		}
		b.Volumes = slices.Clone(b.Volumes)
		m.beverages[b.ID] = b
	}
	return m, nil
}

// Beverage returns the beverage with the given id.
func (m *Memory) Beverage(_ context.Context, id string) (Beverage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.beverages[id]
	if !ok {
		return Beverage{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.Volumes = slices.Clone(b.Volumes)
	return b, nil
}

// Beverages lists in-stock beverages sorted by ID.
func (m *Memory) Beverages(_ context.Context) ([]Beverage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Beverage, 0, len(m.beverages))
	for _, b := range m.beverages {
		if b.StockMl <= 0 {
			continue
		}
		b.Volumes = slices.Clone(b.Volumes)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Withdraw decrements stock.
func (m *Memory) Withdraw(_ context.Context, id string, ml int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beverages[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if ml > b.StockMl {
		return fmt.Errorf("%w: %s has %d ml, %d ml requested", ErrInsufficientStock, id, b.StockMl, ml)
	}
	b.StockMl -= ml
	m.beverages[id] = b
	return nil
}

// Lines returns the hardware lines of every configured beverage, sorted by
// valve ID. Used to build the hardware backend at start-up.
func (m *Memory) Lines() []hw.Line {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var lines []hw.Line
	for _, b := range m.beverages {
		if b.Configured() {
			lines = append(lines, b.Line())
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ValveID < lines[j].ValveID })
	return lines
}
