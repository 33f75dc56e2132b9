package dispense

import (
	"fmt"

	"github.com/roach88/pourkiosk/internal/pour"
)

// OrderItem is one line of a frozen order.
type OrderItem struct {
	BeverageID string `json:"beverage_id" yaml:"beverage_id"`
	VolumeMl   int    `json:"volume_ml" yaml:"volume_ml"`
	Quantity   int    `json:"quantity" yaml:"quantity"`
}

// Units returns the total number of pour tasks the items expand into.
func Units(items []OrderItem) int {
	n := 0
	for _, it := range items {
		if it.Quantity > 0 {
			n += it.Quantity
		}
	}
	return n
}

// Result is the outcome of one pour task within an order.
type Result struct {
	// Seq is the 1-based position of the task in the order.
	Seq        int    `json:"seq"`
	BeverageID string `json:"beverage_id"`
	// Unit is the 1-based unit index within its item.
	Unit int `json:"unit"`
	// Attempts counts pours issued for this task (more than one only with
	// fault retries enabled).
	Attempts int `json:"attempts"`

	pour.Result
}

// String renders the result for logs and traces.
func (r Result) String() string {
	return fmt.Sprintf("#%d %s unit=%d target=%.1fml poured=%.1fml outcome=%s",
		r.Seq, r.BeverageID, r.Unit, r.TargetMl, r.PouredMl, r.Outcome)
}

// Fulfillment is the order-level verdict.
type Fulfillment string

const (
	// FulfillmentFull means every unit completed.
	FulfillmentFull Fulfillment = "full"

	// FulfillmentPartial means at least one unit fell short but not every
	// unit failed in hardware.
	FulfillmentPartial Fulfillment = "partial"

	// FulfillmentFailed means every unit ended in a hardware fault. The
	// order needs staff intervention.
	FulfillmentFailed Fulfillment = "failed"
)

// Report summarises the results of one order.
type Report struct {
	Fulfillment Fulfillment `json:"fulfillment"`
	Units       int         `json:"units"`
	Delivered   int         `json:"delivered"`
	RequestedMl float64     `json:"requested_ml"`
	PouredMl    float64     `json:"poured_ml"`
	// Shortfalls lists every result that was not Completed, in order.
	Shortfalls []Result `json:"shortfalls,omitempty"`
}

// NeedsStaff reports whether the order failed outright.
func (r Report) NeedsStaff() bool {
	return r.Fulfillment == FulfillmentFailed
}

// Summarize classifies a result list.
func Summarize(results []Result) Report {
	rep := Report{Fulfillment: FulfillmentFull, Units: len(results)}
	faults := 0
	for _, r := range results {
		rep.RequestedMl += r.TargetMl
		rep.PouredMl += r.PouredMl
		if r.Outcome == pour.OutcomeCompleted {
			rep.Delivered++
			continue
		}
		if r.Outcome == pour.OutcomeHardwareFault {
			faults++
		}
		rep.Shortfalls = append(rep.Shortfalls, r)
	}
	switch {
	case len(results) > 0 && faults == len(results):
		rep.Fulfillment = FulfillmentFailed
	case rep.Delivered < len(results):
		rep.Fulfillment = FulfillmentPartial
	}
	return rep
}
