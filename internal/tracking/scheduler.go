package tracking

import (
	"sync"
	"time"
)

// Duty is one recurring job on the cooperative queue.
type Duty struct {
	Name     string
	Interval time.Duration
	Run      func()
}

// Scheduler runs duties on the controller's single event queue. A duty
// re-arms itself for its next tick only after it has completed, so duties
// never run concurrently and a slow duty cannot pile up behind itself.
// Stop disarms every duty together; a timer that fires after Stop is
// discarded.
type Scheduler struct {
	submit func(func())

	mu      sync.Mutex
	stopped bool
	timers  map[string]*time.Timer
}

func NewScheduler(submit func(func())) *Scheduler {
	return &Scheduler{
		submit: submit,
		timers: map[string]*time.Timer{},
	}
}

func (s *Scheduler) Arm(duty Duty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timers[duty.Name] = time.AfterFunc(duty.Interval, func() {
		s.submit(func() {
			if s.isStopped() {
				return
			}
			duty.Run()
			s.Arm(duty)
		})
	})
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
