package checkout

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/roach88/pourkiosk/internal/catalog"
)

// DefaultMaxItems caps the number of units in one cart.
const DefaultMaxItems = 4

// Policy holds the kiosk-wide rules applied to cart mutations.
type Policy struct {
	// MaxItems caps the total units in the cart. Zero means unlimited.
	MaxItems int

	// EnableAlcohol allows restricted beverages to be added.
	EnableAlcohol bool
}

// DefaultPolicy returns the factory kiosk rules.
func DefaultPolicy() Policy {
	return Policy{MaxItems: DefaultMaxItems, EnableAlcohol: true}
}

// Line is one cart entry. There is at most one line per
// (BeverageID, VolumeMl) pair.
type Line struct {
	BeverageID string          `json:"beverage_id" yaml:"beverage_id"`
	Name       string          `json:"name" yaml:"name"`
	VolumeMl   int             `json:"volume_ml" yaml:"volume_ml"`
	Quantity   int             `json:"quantity" yaml:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" yaml:"unit_price"`
	Restricted bool            `json:"restricted" yaml:"restricted"`
}

// Subtotal returns UnitPrice times Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered list of lines. The zero value is an empty cart.
//
// Cart methods with a value receiver never mutate; the pointer receiver
// methods are the only mutations, and the Session guards them.
type Cart struct {
	lines []Line
}

// NewCart builds a cart from lines, merging duplicates. Lines with a
// non-positive quantity are dropped.
func NewCart(lines ...Line) Cart {
	var c Cart
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := c.index(l.BeverageID, l.VolumeMl); i >= 0 {
			c.lines[i].Quantity += l.Quantity
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c
}

// Lines returns a copy of the lines in insertion order.
func (c Cart) Lines() []Line {
	return slices.Clone(c.lines)
}

// Len returns the number of lines.
func (c Cart) Len() int { return len(c.lines) }

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool { return len(c.lines) == 0 }

// Units returns the total quantity across lines.
func (c Cart) Units() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// HasRestricted reports whether any line needs the consent and age gates.
func (c Cart) HasRestricted() bool {
	return slices.ContainsFunc(c.lines, func(l Line) bool { return l.Restricted })
}

// Total returns the sum of line subtotals.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Line returns the line for a (beverage, volume) pair.
func (c Cart) Line(beverageID string, volumeMl int) (Line, bool) {
	i := c.index(beverageID, volumeMl)
	if i < 0 {
		return Line{}, false
	}
	return c.lines[i], true
}

// Clone returns an independent copy.
func (c Cart) Clone() Cart {
	return Cart{lines: slices.Clone(c.lines)}
}

// WithoutRestricted returns a copy with every restricted line removed.
func (c Cart) WithoutRestricted() Cart {
	out := Cart{lines: make([]Line, 0, len(c.lines))}
	for _, l := range c.lines {
		if !l.Restricted {
			out.lines = append(out.lines, l)
		}
	}
	return out
}

func (c Cart) index(beverageID string, volumeMl int) int {
	return slices.IndexFunc(c.lines, func(l Line) bool {
		return l.BeverageID == beverageID && l.VolumeMl == volumeMl
	})
}

// requestedMl returns the liquid the cart already needs from a beverage.
func (c Cart) requestedMl(beverageID string) int {
	ml := 0
	for _, l := range c.lines {
		if l.BeverageID == beverageID {
			ml += l.VolumeMl * l.Quantity
		}
	}
	return ml
}

// Add adds qty units of b at volumeMl, merging into an existing line.
func (c *Cart) Add(b catalog.Beverage, volumeMl, qty int, p Policy) error {
	if qty <= 0 {
		return cartError(ErrCodeInvalidQuantity, b.ID, "quantity must be positive, got %d", qty)
	}
	current := 0
	if l, ok := c.Line(b.ID, volumeMl); ok {
		current = l.Quantity
	}
	return c.set(b, volumeMl, current+qty, p)
}

// SetQuantity sets the quantity of the (b, volumeMl) line. Zero removes it.
func (c *Cart) SetQuantity(b catalog.Beverage, volumeMl, qty int, p Policy) error {
	switch {
	case qty < 0:
		return cartError(ErrCodeInvalidQuantity, b.ID, "quantity must not be negative, got %d", qty)
	case qty == 0:
		c.Remove(b.ID, volumeMl)
		return nil
	}
	return c.set(b, volumeMl, qty, p)
}

func (c *Cart) set(b catalog.Beverage, volumeMl, qty int, p Policy) error {
	if !b.AllowsVolume(volumeMl) {
		return cartError(ErrCodeInvalidVolume, b.ID, "%d ml is not offered, choose one of %v", volumeMl, b.Volumes)
	}
	if b.Restricted() && !p.EnableAlcohol {
		return cartError(ErrCodeAlcoholDisabled, b.ID, "alcoholic beverages are disabled on this kiosk")
	}

	current := 0
	i := c.index(b.ID, volumeMl)
	if i >= 0 {
		current = c.lines[i].Quantity
	}
	if p.MaxItems > 0 && c.Units()-current+qty > p.MaxItems {
		return cartError(ErrCodeTooManyItems, b.ID, "cart is limited to %d items", p.MaxItems)
	}
	if need := c.requestedMl(b.ID) - current*volumeMl + qty*volumeMl; need > b.StockMl {
		return cartError(ErrCodeInsufficientStock, b.ID, "%d ml requested, %d ml in stock", need, b.StockMl)
	}

	if i >= 0 {
		c.lines[i].Quantity = qty
		return nil
	}
	c.lines = append(c.lines, Line{
		BeverageID: b.ID,
		Name:       b.Name,
		VolumeMl:   volumeMl,
		Quantity:   qty,
		UnitPrice:  b.UnitPrice(volumeMl),
		Restricted: b.Restricted(),
	})
	return nil
}

// Remove deletes the (beverageID, volumeMl) line. Reports whether a line was
// removed.
func (c *Cart) Remove(beverageID string, volumeMl int) bool {
	i := c.index(beverageID, volumeMl)
	if i < 0 {
		return false
	}
	c.lines = slices.Delete(c.lines, i, i+1)
	return true
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
}
