package meter

import (
	"sync"
	"time"
)

// LongTaskSnapshot is one consistent read of a long-task timer.
type LongTaskSnapshot struct {
	ActiveTasks int
	Duration    time.Duration
}

// LongTaskTimer tracks tasks that outlive publish cycles. Active count
// and accumulated duration are never reset by the publish path; a task
// only leaves the timer when its handle is stopped.
type LongTaskTimer struct {
	id  ID
	now func() time.Time

	mu     sync.Mutex
	nextID int64
	active map[int64]time.Time
}

// LongTask is the handle for one in-flight task.
type LongTask struct {
	timer *LongTaskTimer
	id    int64
}

func NewLongTaskTimer(id ID) *LongTaskTimer {
	return &LongTaskTimer{
		id:     id,
		now:    time.Now,
		active: make(map[int64]time.Time),
	}
}

func (ltt *LongTaskTimer) ID() ID {
	return ltt.id
}

func (ltt *LongTaskTimer) Start() *LongTask {
	ltt.mu.Lock()
	defer ltt.mu.Unlock()

	ltt.nextID++
	ltt.active[ltt.nextID] = ltt.now()
	return &LongTask{timer: ltt, id: ltt.nextID}
}

// Stop removes the task from the timer and returns its total duration.
func (lt *LongTask) Stop() time.Duration {
	ltt := lt.timer
	ltt.mu.Lock()
	defer ltt.mu.Unlock()

	start, ok := ltt.active[lt.id]
	if !ok {
		return 0
	}
	delete(ltt.active, lt.id)
	return ltt.now().Sub(start)
}

// Snapshot reads the active-task count and the summed duration-so-far
// of all active tasks in one critical section.
func (ltt *LongTaskTimer) Snapshot() LongTaskSnapshot {
	ltt.mu.Lock()
	defer ltt.mu.Unlock()

	now := ltt.now()
	var total time.Duration
	for _, start := range ltt.active {
		total += now.Sub(start)
	}
	return LongTaskSnapshot{ActiveTasks: len(ltt.active), Duration: total}
}

func (ltt *LongTaskTimer) Measure() []Measurement {
	snapshot := ltt.Snapshot()
	return []Measurement{
		{Statistic: "active_tasks", Value: float64(snapshot.ActiveTasks)},
		{Statistic: "duration", Value: float64(snapshot.Duration)},
	}
}
