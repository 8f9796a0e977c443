package controller

import (
	"sync"

	"reefcontrol/internal/models"
)

// store guards the single DeviceState record. All reads go through
// snapshot (deep copy) and all writes through mutate; nothing else may
// touch the record.
type store struct {
	mu sync.RWMutex
	st models.DeviceState
}

func newStore() *store {
	return &store{st: models.NewDeviceState()}
}

func (s *store) snapshot() models.DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Clone()
}

func (s *store) mutate(fn func(st *models.DeviceState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}
