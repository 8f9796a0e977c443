package controller

import (
	"sync"
	"time"

	"reefcontrol/internal/models"
	"reefcontrol/internal/protocol"
)

// reply is the decoded terminal line that resolves a pending command.
type reply struct {
	ok  bool
	err *models.DeviceError
}

// cmdSync keeps at most one command in flight: sendMu serializes
// callers, pending is the single-slot reply channel armed before the
// write. Non-terminal lines never touch it.
type cmdSync struct {
	sendMu  sync.Mutex
	slotMu  sync.Mutex
	pending chan reply
}

func newCmdSync() *cmdSync {
	return &cmdSync{}
}

// arm installs a fresh single-slot channel for the next terminal reply.
func (s *cmdSync) arm() chan reply {
	ch := make(chan reply, 1)
	s.slotMu.Lock()
	s.pending = ch
	s.slotMu.Unlock()
	return ch
}

// clear drops the pending slot if it is still the given channel, so a
// late reply after a timeout cannot resolve the next command.
func (s *cmdSync) clear(ch chan reply) {
	s.slotMu.Lock()
	if s.pending == ch {
		s.pending = nil
	}
	s.slotMu.Unlock()
}

// deliver hands a terminal reply to the waiting sender, reporting
// false when no command is outstanding.
func (s *cmdSync) deliver(r reply) bool {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.pending == nil {
		return false
	}
	s.pending <- r
	s.pending = nil
	return true
}

// send writes one command and blocks for its terminal reply. Exactly
// one command is outstanding at a time; concurrent callers queue on
// the mutex, not on the wire.
func (c *Controller) send(cmd string, timeout time.Duration) error {
	c.sync.sendMu.Lock()
	defer c.sync.sendMu.Unlock()

	if !c.tr.Connected() {
		return ErrNotConnected
	}

	ch := c.sync.arm()
	c.log.Debugw("tx", "cmd", cmd)
	if err := c.tr.WriteLine(cmd); err != nil {
		c.sync.clear(ch)
		return &ConnectionError{Port: c.tr.Port(), Err: err}
	}

	select {
	case r := <-ch:
		if r.ok {
			c.st.mutate(func(st *models.DeviceState) { st.LastError = nil })
			return nil
		}
		c.st.mutate(func(st *models.DeviceState) { st.LastError = r.err })
		return &CommandError{Cmd: cmd, Code: r.err.Code, Message: r.err.Message}
	case <-time.After(timeout):
		c.sync.clear(ch)
		return &CommandError{Cmd: cmd, Timeout: true}
	}
}

// sendQuery writes a fire-and-forget query; the board answers with a
// report line, not a terminal reply, so nothing waits.
func (c *Controller) sendQuery(query string) error {
	if !c.tr.Connected() {
		return ErrNotConnected
	}
	return c.tr.WriteLine(query)
}

// checkInterlock refuses pump work while protect mode is armed and the
// low-level switch reads low.
func (c *Controller) checkInterlock(op string) error {
	st := c.st.snapshot()
	if st.Protect && protocol.LevelIsLow(st.Level.Low) {
		return &SafetyInterlockError{Op: op}
	}
	return nil
}
