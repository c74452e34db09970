package calendar

import (
	"testing"
	"time"
)

func defaultCalendar(t *testing.T) *BusinessCalendar {
	t.Helper()
	cal, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cal
}

func TestIsOpen(t *testing.T) {
	t.Parallel()
	cal := defaultCalendar(t)
	loc := cal.Location()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday morning", time.Date(2026, 3, 2, 9, 0, 0, 0, loc), true},
		{"monday lunch", time.Date(2026, 3, 2, 12, 30, 0, 0, loc), true},
		{"monday before open", time.Date(2026, 3, 2, 7, 59, 0, 0, loc), false},
		{"monday at close", time.Date(2026, 3, 2, 17, 0, 0, 0, loc), false},
		{"saturday", time.Date(2026, 3, 7, 10, 0, 0, 0, loc), false},
		{"sunday", time.Date(2026, 3, 8, 10, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsOpen(tt.at); got != tt.want {
				t.Fatalf("IsOpen(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestSlotStartsExcludeLunch(t *testing.T) {
	t.Parallel()
	cal := defaultCalendar(t)
	loc := cal.Location()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	starts := cal.SlotStarts(day)

	// 8:00-17:00 in 30-minute slots is 18, minus the two lunch slots.
	if len(starts) != 16 {
		t.Fatalf("got %d slot starts, want 16", len(starts))
	}
	for _, s := range starts {
		min := s.Hour()*60 + s.Minute()
		if min >= 12*60 && min < 13*60 {
			t.Fatalf("slot start %s falls inside lunch", s)
		}
	}
	if !starts[0].Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, loc)) {
		t.Fatalf("first slot = %s, want 08:00", starts[0])
	}
	if !starts[len(starts)-1].Equal(time.Date(2026, 3, 2, 16, 30, 0, 0, loc)) {
		t.Fatalf("last slot = %s, want 16:30", starts[len(starts)-1])
	}
}

func TestBusinessDaysSkipWeekends(t *testing.T) {
	t.Parallel()
	cal := defaultCalendar(t)
	loc := cal.Location()

	// Friday, so the run must jump over the weekend.
	friday := time.Date(2026, 3, 6, 14, 0, 0, 0, loc)
	days := cal.BusinessDays(friday, 3)

	if len(days) != 3 {
		t.Fatalf("got %d days, want 3", len(days))
	}
	want := []time.Time{
		time.Date(2026, 3, 6, 0, 0, 0, 0, loc),
		time.Date(2026, 3, 9, 0, 0, 0, 0, loc),
		time.Date(2026, 3, 10, 0, 0, 0, 0, loc),
	}
	for i, d := range days {
		if !d.Equal(want[i]) {
			t.Fatalf("day[%d] = %s, want %s", i, d, want[i])
		}
	}
}

func TestProvidersSorted(t *testing.T) {
	t.Parallel()
	cal := defaultCalendar(t)

	providers := cal.Providers()
	for i := 1; i < len(providers); i++ {
		if providers[i-1].Name >= providers[i].Name {
			t.Fatalf("providers not sorted: %q before %q", providers[i-1].Name, providers[i].Name)
		}
	}
	if !cal.HasProvider(providers[0].Name) {
		t.Fatalf("HasProvider(%q) = false", providers[0].Name)
	}
	if cal.HasProvider("Dr. Nobody") {
		t.Fatal("HasProvider matched an unknown name")
	}
}

func TestLinesDefaultEmpty(t *testing.T) {
	t.Parallel()
	cal := defaultCalendar(t)
	if got := cal.Line(LineNurse); got != "" {
		t.Fatalf("Line(nurse) = %q, want empty", got)
	}
}

func TestBuildRejectsBadHours(t *testing.T) {
	t.Parallel()
	fc := fileConfig{
		BusinessName: "x",
		Timezone:     "UTC",
		OpenTime:     "17:00",
		CloseTime:    "08:00",
		SlotMinutes:  30,
		Providers:    []Provider{{Name: "Dr. A"}},
	}
	if _, err := build(fc); err == nil {
		t.Fatal("expected error for close before open")
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	min, err := parseHHMM("09:45")
	if err != nil {
		t.Fatalf("parseHHMM error: %v", err)
	}
	if min != 9*60+45 {
		t.Fatalf("parseHHMM = %d, want %d", min, 9*60+45)
	}

	for _, bad := range []string{"24:00", "10:60", "noon", "9"} {
		if _, err := parseHHMM(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
