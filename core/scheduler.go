package core

// Timer is a single scheduled callback, sorted into a Scheduler's pending
// list by WakeTime. Handler returns SF_RESCHEDULE to requeue itself (after
// mutating WakeTime) or SF_DONE to be dropped.
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is a cooperative, sorted-linked-list timer queue driven by a
// Clock, for periodic maintenance work that isn't on the hot step path.
// The firmware owns a single one, whose only timer is the status-LED
// heartbeat in targets/rp2350/main.go. Dispatch is cheap to call every
// loop iteration — it's a no-op when nothing is due.
type Scheduler struct {
	clock     Clock
	timerList *Timer
}

// NewScheduler creates an empty Scheduler driven by clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Schedule inserts t into the pending list in WakeTime order.
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	s.insertLocked(t)
}

func (s *Scheduler) insertLocked(t *Timer) {
	if s.timerList == nil || t.WakeTime < s.timerList.WakeTime {
		t.Next = s.timerList
		s.timerList = t
		return
	}
	current := s.timerList
	for current.Next != nil && current.Next.WakeTime < t.WakeTime {
		current = current.Next
	}
	t.Next = current.Next
	current.Next = t
}

// Dispatch runs every handler whose WakeTime has passed, using the
// Scheduler's Clock for "now". Handlers requesting SF_RESCHEDULE are
// reinserted immediately, so a handler must advance WakeTime itself before
// returning SF_RESCHEDULE or it will spin.
func (s *Scheduler) Dispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	now := s.clock.MicroNow()
	for s.timerList != nil && s.timerList.WakeTime <= now {
		t := s.timerList
		s.timerList = t.Next
		t.Next = nil

		result := t.Handler(t)
		if result == SF_RESCHEDULE {
			s.insertLocked(t)
		}
	}
}
