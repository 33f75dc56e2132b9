// Package config loads the kiosk configuration from YAML or CUE.
//
// Every field has a factory default, so an empty file (or no file) yields a
// working simulated kiosk. The hardware backend is chosen here, once, and
// injected into everything else.
package config
