package controller

import (
	"sync"
	"time"
)

// delayQueue runs named one-shot actions after a delay. Scheduling a
// key again replaces the pending timer, so "auto motor off" and "pump
// resume" stay cancellable and observable instead of being anonymous
// fire-and-forget goroutines.
type delayQueue struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDelayQueue() *delayQueue {
	return &delayQueue{timers: map[string]*time.Timer{}}
}

// Schedule arms fn to run after d, replacing any pending task with the
// same key.
func (q *delayQueue) Schedule(key string, d time.Duration, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.timers[key]; ok {
		t.Stop()
	}
	q.timers[key] = time.AfterFunc(d, func() {
		q.mu.Lock()
		delete(q.timers, key)
		q.mu.Unlock()
		fn()
	})
}

// Cancel stops a pending task, reporting whether one existed.
func (q *delayQueue) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.timers[key]
	if ok {
		t.Stop()
		delete(q.timers, key)
	}
	return ok
}

// StopAll cancels every pending task (process shutdown).
func (q *delayQueue) StopAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for k, t := range q.timers {
		t.Stop()
		delete(q.timers, k)
	}
}

// Len reports the number of pending tasks.
func (q *delayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}
