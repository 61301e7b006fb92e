package transform

import (
	"testing"
	"time"
)

func TestIntervalTracker(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	tracker := NewIntervalTracker(func() time.Time { return now })

	t.Run("elapsed is stable within a cycle", func(t *testing.T) {
		now = now.Add(5 * time.Second)
		first := tracker.Elapsed()

		// Wall clock keeps moving; the cycle time does not.
		now = now.Add(3 * time.Second)
		second := tracker.Elapsed()

		if first != 5*time.Second {
			t.Errorf("expected elapsed 5s, got %v", first)
		}
		if second != first {
			t.Errorf("expected stable elapsed within one cycle, got %v then %v", first, second)
		}
	})

	t.Run("timestamp matches the frozen cycle time", func(t *testing.T) {
		ts := tracker.Timestamp()
		if ts != tracker.CycleTime().UnixMilli() {
			t.Errorf("expected timestamp to equal the cycle time")
		}

		now = now.Add(time.Hour)
		if tracker.Timestamp() != ts {
			t.Errorf("expected timestamp to stay frozen until tick")
		}
	})

	t.Run("tick advances the window", func(t *testing.T) {
		before := tracker.CycleTime()
		tracker.Tick()

		now = now.Add(7 * time.Second)
		if got := tracker.Elapsed(); got != now.Sub(before) {
			t.Errorf("expected elapsed %v after tick, got %v", now.Sub(before), got)
		}
	})
}
