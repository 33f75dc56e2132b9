// Package harness runs end-to-end kiosk scenarios against the simulated
// hardware backend.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: cola_two_units
//	description: "Two colas pour in order and the order completes"
//	catalog: catalog.yaml        # relative to the scenario; seed beverages if empty
//	setup:
//	  enable_alcohol: true
//	  fault_retries: 0
//	  approve_age: true
//	  approve_payment: true
//	  lines:
//	    - valve: "17"
//	      fail_open: 1             # also: fail_close, fail_read, flow_rate, supply_ml
//	      estop_on_open: true      # press the emergency stop once this valve opens
//	steps:
//	  - cmd: add
//	    beverage_id: cola
//	    volume_ml: 300
//	    quantity: 2
//	    expect:
//	      state: selecting
//	  - cmd: pay
//	    expect:
//	      error: INVALID_TRIGGER
//	assertions:
//	  - type: final_state
//	    state: completed
//	  - type: order_status
//	    order: order-1
//	    status: completed
//
// Besides the kiosk commands, steps accept the operator commands
// emergency_stop and resume.
//
// # Assertion Types
//
//   - final_state: the session ends in State
//   - order_status: the stored order has Status
//   - pour_outcomes: the stored pour results of Order have exactly Outcomes
//   - stock: the catalog has StockMl left of Beverage
//   - trace_contains: some trace line contains Text
//   - trace_order: trace lines containing Texts appear in that order
//   - trace_count: the trace has Count lines of Kind
//
// # Deterministic Testing
//
// Every scenario runs on a manual clock starting at clock.Epoch, with order
// IDs order-1, order-2, ... and a fresh in-memory SQLite store. Pours finish
// without sleeping and the trace is identical on every run, which is what
// RunWithGolden compares against testdata/golden.
package harness
