package checkout

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/pourkiosk/internal/dispense"
)

// Order is the immutable snapshot of a cart taken when payment settles.
// Later cart mutations never reach it.
type Order struct {
	ID           string          `json:"id"`
	Lines        []Line          `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	ConsentGiven bool            `json:"consent_given"`
	AgeVerified  bool            `json:"age_verified"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Items converts the order lines into dispense items, in cart order.
func (o Order) Items() []dispense.OrderItem {
	items := make([]dispense.OrderItem, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = dispense.OrderItem{BeverageID: l.BeverageID, VolumeMl: l.VolumeMl, Quantity: l.Quantity}
	}
	return items
}

// Units returns the total quantity across lines.
func (o Order) Units() int {
	return dispense.Units(o.Items())
}

func (o Order) clone() Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}
