// Package actuator abstracts the directly wired relay outputs (light,
// circulation pump, fan, heater) behind an idempotent on/off contract.
// A real GPIO driver is selected when the hardware is present and a
// no-op driver otherwise, so callers never branch on availability.
package actuator

import (
	"reefcontrol/internal/logger"
)

// Relay is one switched output. Set is idempotent and the last
// commanded level is observable for tests.
type Relay interface {
	Set(on bool) error
	On() bool
}

// Bank groups the four relay channels the controller drives.
type Bank struct {
	Light  Relay
	Pump   Relay
	Fan    Relay
	Heater Relay
}

// Pins maps the relay channels to BCM pin numbers.
type Pins struct {
	Light  int
	Pump   int
	Fan    int
	Heater int
}

// DefaultPins matches the tank's wiring.
var DefaultPins = Pins{Light: 27, Pump: 22, Fan: 23, Heater: 24}

// Detect returns a GPIO-backed bank when the host exposes the pins and
// falls back to no-op relays otherwise. The fallback is logged once;
// every Relay in the returned bank is non-nil either way.
func Detect(log *logger.Logger, pins Pins) *Bank {
	bank, err := newGPIOBank(pins)
	if err != nil {
		log.Infow("gpio_unavailable_using_noop", "err", err)
		return NewNoopBank()
	}
	log.Infow("gpio_relays_ready",
		"light", pins.Light, "pump", pins.Pump, "fan", pins.Fan, "heater", pins.Heater)
	return bank
}
