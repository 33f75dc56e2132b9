// Package catalog provides the beverages a kiosk can sell and the
// valve/sensor pin mapping of each one.
//
// The catalog is an external collaborator of the dispensing core: the cart
// reads prices, allowed volumes and stock from it, and the dispense scheduler
// resolves each beverage to its hardware line. A beverage without a
// valve/sensor mapping is listed but cannot be poured.
package catalog
