package calendar

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// LineClass identifies the staff line a call can be routed to.
type LineClass string

const (
	LineNurse      LineClass = "nurse"
	LineFrontDesk  LineClass = "front-desk"
	LineBilling    LineClass = "billing"
	LineAfterHours LineClass = "after-hours"
)

type Provider struct {
	Name      string `yaml:"name"`
	Specialty string `yaml:"specialty"`
}

type fileConfig struct {
	BusinessName string     `yaml:"business_name"`
	Timezone     string     `yaml:"timezone"`
	OpenTime     string     `yaml:"open_time"`  // HH:MM, 24h
	CloseTime    string     `yaml:"close_time"` // HH:MM, 24h
	LunchStart   string     `yaml:"lunch_start"`
	LunchEnd     string     `yaml:"lunch_end"`
	SlotMinutes  int        `yaml:"slot_minutes"`
	Providers    []Provider `yaml:"providers"`
	Lines        struct {
		Nurse      string `yaml:"nurse"`
		FrontDesk  string `yaml:"front_desk"`
		Billing    string `yaml:"billing"`
		AfterHours string `yaml:"after_hours"`
	} `yaml:"lines"`
}

// BusinessCalendar holds the practice's working hours, provider roster and
// staff line numbers. It is the single source of after-hours decisions.
type BusinessCalendar struct {
	businessName string
	loc          *time.Location
	openMin      int // minutes since midnight
	closeMin     int
	lunchStart   int
	lunchEnd     int
	slot         time.Duration
	providers    []Provider
	lines        map[LineClass]string
}

// Load reads the calendar YAML at path. An empty path yields the built-in
// default roster and hours (Mon-Fri 8:00-17:00, 30-minute slots, lunch 12-13).
func Load(path string) (*BusinessCalendar, error) {
	fc := fileConfig{
		BusinessName: "Family Medical Practice",
		Timezone:     "America/New_York",
		OpenTime:     "08:00",
		CloseTime:    "17:00",
		LunchStart:   "12:00",
		LunchEnd:     "13:00",
		SlotMinutes:  30,
		Providers: []Provider{
			{Name: "Dr. Johnson", Specialty: "Internal Medicine"},
			{Name: "Dr. Patel", Specialty: "Pediatrics"},
			{Name: "Dr. Smith", Specialty: "Family Medicine"},
		},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read calendar file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse calendar file: %w", err)
		}
	}

	return build(fc)
}

func build(fc fileConfig) (*BusinessCalendar, error) {
	loc, err := time.LoadLocation(fc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", fc.Timezone, err)
	}

	openMin, err := parseHHMM(fc.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("open_time: %w", err)
	}
	closeMin, err := parseHHMM(fc.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("close_time: %w", err)
	}
	if closeMin <= openMin {
		return nil, fmt.Errorf("close_time %q must be after open_time %q", fc.CloseTime, fc.OpenTime)
	}

	lunchStart, lunchEnd := 0, 0
	if fc.LunchStart != "" && fc.LunchEnd != "" {
		if lunchStart, err = parseHHMM(fc.LunchStart); err != nil {
			return nil, fmt.Errorf("lunch_start: %w", err)
		}
		if lunchEnd, err = parseHHMM(fc.LunchEnd); err != nil {
			return nil, fmt.Errorf("lunch_end: %w", err)
		}
	}

	if fc.SlotMinutes <= 0 {
		fc.SlotMinutes = 30
	}
	if len(fc.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	providers := make([]Provider, len(fc.Providers))
	copy(providers, fc.Providers)
	sort.Slice(providers, func(i, j int) bool { return providers[i].Name < providers[j].Name })

	lines := map[LineClass]string{}
	if fc.Lines.Nurse != "" {
		lines[LineNurse] = fc.Lines.Nurse
	}
	if fc.Lines.FrontDesk != "" {
		lines[LineFrontDesk] = fc.Lines.FrontDesk
	}
	if fc.Lines.Billing != "" {
		lines[LineBilling] = fc.Lines.Billing
	}
	if fc.Lines.AfterHours != "" {
		lines[LineAfterHours] = fc.Lines.AfterHours
	}

	return &BusinessCalendar{
		businessName: fc.BusinessName,
		loc:          loc,
		openMin:      openMin,
		closeMin:     closeMin,
		lunchStart:   lunchStart,
		lunchEnd:     lunchEnd,
		slot:         time.Duration(fc.SlotMinutes) * time.Minute,
		providers:    providers,
		lines:        lines,
	}, nil
}

func parseHHMM(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func (c *BusinessCalendar) BusinessName() string { return c.businessName }

func (c *BusinessCalendar) Location() *time.Location { return c.loc }

func (c *BusinessCalendar) SlotDuration() time.Duration { return c.slot }

// IsOpen reports whether t falls within office hours, Monday through Friday.
// Lunch counts as open: the phones stay staffed.
func (c *BusinessCalendar) IsOpen(t time.Time) bool {
	lt := t.In(c.loc)
	if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	min := lt.Hour()*60 + lt.Minute()
	return min >= c.openMin && min < c.closeMin
}

// Providers returns the roster sorted by name.
func (c *BusinessCalendar) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

func (c *BusinessCalendar) HasProvider(name string) bool {
	for _, p := range c.providers {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Line returns the configured phone number for a staff line, or "" when the
// line has no live target.
func (c *BusinessCalendar) Line(class LineClass) string {
	return c.lines[class]
}

// BusinessDays returns the next n weekdays starting at from (inclusive when
// from itself is a weekday), normalized to midnight in the office timezone.
func (c *BusinessCalendar) BusinessDays(from time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := from.In(c.loc)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
	for len(days) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}

// SlotStarts generates the slot start times for one business day, excluding
// the lunch break. day is normalized to midnight office time by the caller.
func (c *BusinessCalendar) SlotStarts(day time.Time) []time.Time {
	day = day.In(c.loc)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.loc)

	var starts []time.Time
	slotMin := int(c.slot / time.Minute)
	for min := c.openMin; min+slotMin <= c.closeMin; min += slotMin {
		if c.lunchEnd > c.lunchStart && min < c.lunchEnd && min+slotMin > c.lunchStart {
			continue
		}
		starts = append(starts, midnight.Add(time.Duration(min)*time.Minute))
	}
	return starts
}
