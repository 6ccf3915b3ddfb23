package dailylog

import "testing"

func TestDayOf(t *testing.T) {
	if DayOf(0) != 0 {
		t.Fatalf("DayOf(0) = %d, want 0", DayOf(0))
	}
	if DayOf(dayMillis) != 1 {
		t.Fatalf("DayOf(dayMillis) = %d, want 1", DayOf(dayMillis))
	}
	if DayOf(dayMillis+1) != 1 {
		t.Fatalf("DayOf(dayMillis+1) = %d, want 1", DayOf(dayMillis+1))
	}
}
