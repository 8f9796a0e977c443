package actuator

import "sync"

// NoopRelay tracks the commanded state without touching hardware.
type NoopRelay struct {
	mu sync.Mutex
	on bool
}

// Set records the requested level.
func (r *NoopRelay) Set(on bool) error {
	r.mu.Lock()
	r.on = on
	r.mu.Unlock()
	return nil
}

// On returns the last commanded level.
func (r *NoopRelay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// NewNoopBank returns a bank of recording no-op relays, used when no
// relay hardware is present and as a test double.
func NewNoopBank() *Bank {
	return &Bank{
		Light:  &NoopRelay{},
		Pump:   &NoopRelay{},
		Fan:    &NoopRelay{},
		Heater: &NoopRelay{},
	}
}
