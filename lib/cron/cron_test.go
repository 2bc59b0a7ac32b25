// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"strings"
	"testing"
	"time"
)

func mustParse(t *testing.T, expression string) Schedule {
	t.Helper()
	schedule, err := Parse(expression)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expression, err)
	}
	return schedule
}

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestParseValid(t *testing.T) {
	expressions := []string{
		"* * * * *",
		"0 3 * * *",
		"*/15 0-6 1,15 * 1-5",
		"30 3 * * 0",
		"30 3 * * 7",
		"0 0 1 1 *",
		"5,10,15 * * * *",
		"0-30/5 * * * *",
	}
	for _, expression := range expressions {
		t.Run(expression, func(t *testing.T) {
			if _, err := Parse(expression); err != nil {
				t.Errorf("Parse(%q) = %v, want nil", expression, err)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantErr    string
	}{
		{"too_few_fields", "* * * *", "expected 5 fields"},
		{"too_many_fields", "* * * * * *", "expected 5 fields"},
		{"empty", "", "expected 5 fields"},
		{"minute_out_of_range", "60 * * * *", "out of range"},
		{"hour_out_of_range", "* 24 * * *", "out of range"},
		{"day_zero", "* * 0 * *", "out of range"},
		{"day_out_of_range", "* * 32 * *", "out of range"},
		{"month_zero", "* * * 0 *", "out of range"},
		{"month_out_of_range", "* * * 13 *", "out of range"},
		{"dow_out_of_range", "* * * * 8", "out of range"},
		{"zero_step", "*/0 * * * *", "step must be positive"},
		{"bad_range", "5-3 * * * *", "range start 5 > end 3"},
		{"non_numeric", "abc * * * *", "invalid value"},
		{"bad_step_value", "*/x * * * *", "invalid step"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.expression)
			if err == nil {
				t.Fatalf("Parse(%q) = nil, want error containing %q", test.expression, test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Parse(%q) = %q, want error containing %q", test.expression, err, test.wantErr)
			}
		})
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		from       time.Time
		want       time.Time
	}{
		{"every_minute", "* * * * *", utc(2026, 2, 18, 10, 30), utc(2026, 2, 18, 10, 31)},
		{"daily_before", "0 3 * * *", utc(2026, 2, 18, 1, 0), utc(2026, 2, 18, 3, 0)},
		{"daily_after", "0 3 * * *", utc(2026, 2, 18, 8, 0), utc(2026, 2, 19, 3, 0)},
		{"daily_exactly_at", "0 3 * * *", utc(2026, 2, 18, 3, 0), utc(2026, 2, 19, 3, 0)},
		{"quarter_hour", "*/15 * * * *", utc(2026, 2, 18, 10, 14), utc(2026, 2, 18, 10, 15)},
		{"quarter_hour_wrap", "*/15 * * * *", utc(2026, 2, 18, 23, 50), utc(2026, 2, 19, 0, 0)},
		// Feb 17 2026 is a Tuesday, Feb 20 a Friday.
		{"weekday_same_day", "0 9 * * 1-5", utc(2026, 2, 17, 8, 0), utc(2026, 2, 17, 9, 0)},
		{"weekday_skips_weekend", "0 9 * * 1-5", utc(2026, 2, 20, 10, 0), utc(2026, 2, 23, 9, 0)},
		{"first_and_fifteenth", "0 0 1,15 * *", utc(2026, 2, 2, 0, 0), utc(2026, 2, 15, 0, 0)},
		{"month_rollover", "0 0 1,15 * *", utc(2026, 2, 16, 0, 0), utc(2026, 3, 1, 0, 0)},
		{"yearly", "0 0 1 1 *", utc(2026, 3, 15, 12, 0), utc(2027, 1, 1, 0, 0)},
		{"year_rollover", "0 7 * * *", utc(2026, 12, 31, 8, 0), utc(2027, 1, 1, 7, 0)},
		{"short_month_skipped", "0 0 31 * *", utc(2026, 2, 1, 0, 0), utc(2026, 3, 31, 0, 0)},
		// Feb 29 next exists in 2028.
		{"leap_day", "0 0 29 2 *", utc(2026, 1, 1, 0, 0), utc(2028, 2, 29, 0, 0)},
		// Feb 18 2026 is a Wednesday; the next Sunday is Feb 22.
		{"sunday_as_zero", "0 3 * * 0", utc(2026, 2, 18, 0, 0), utc(2026, 2, 22, 3, 0)},
		{"sunday_as_seven", "0 3 * * 7", utc(2026, 2, 18, 0, 0), utc(2026, 2, 22, 3, 0)},
		{"range_step", "0-30/5 * * * *", utc(2026, 2, 18, 10, 7), utc(2026, 2, 18, 10, 10)},
		{"range_step_wrap", "0-30/5 * * * *", utc(2026, 2, 18, 10, 31), utc(2026, 2, 18, 11, 0)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			next, err := mustParse(t, test.expression).Next(test.from)
			if err != nil {
				t.Fatalf("Next(%v): %v", test.from, err)
			}
			if !next.Equal(test.want) {
				t.Errorf("Next(%v) = %v (%v), want %v (%v)",
					test.from, next, next.Weekday(), test.want, test.want.Weekday())
			}
		})
	}
}

func TestNextStrictlyAfter(t *testing.T) {
	schedule := mustParse(t, "30 10 * * *")

	next, err := schedule.Next(utc(2026, 2, 18, 10, 30))
	if err != nil {
		t.Fatal(err)
	}
	if !next.After(utc(2026, 2, 18, 10, 30)) {
		t.Errorf("Next should be strictly after input, got %v", next)
	}
	if want := utc(2026, 2, 19, 10, 30); !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestNextWithSubMinutePrecision(t *testing.T) {
	// Seconds and nanos in the input still land on the next minute
	// boundary.
	schedule := mustParse(t, "0 * * * *")

	from := utc(2026, 2, 18, 10, 59).Add(30 * time.Second)
	next, err := schedule.Next(from)
	if err != nil {
		t.Fatal(err)
	}
	if want := utc(2026, 2, 18, 11, 0); !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestNextImpossibleSchedule(t *testing.T) {
	schedule := mustParse(t, "0 0 31 2 *")

	if _, err := schedule.Next(utc(2026, 1, 1, 0, 0)); err == nil {
		t.Fatal("Next for Feb 31 = nil error, want failure")
	}
}

func TestNextSequence(t *testing.T) {
	schedule := mustParse(t, "0 */6 * * *")

	cursor := utc(2026, 2, 18, 0, 0)
	expected := []time.Time{
		utc(2026, 2, 18, 6, 0),
		utc(2026, 2, 18, 12, 0),
		utc(2026, 2, 18, 18, 0),
		utc(2026, 2, 19, 0, 0),
		utc(2026, 2, 19, 6, 0),
	}

	for i, want := range expected {
		next, err := schedule.Next(cursor)
		if err != nil {
			t.Fatalf("Next #%d from %v: %v", i, cursor, err)
		}
		if !next.Equal(want) {
			t.Errorf("Next #%d = %v, want %v", i, next, want)
		}
		cursor = next
	}
}

func TestParseFieldEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		field string
		min   int
		max   int
		want  []int
	}{
		{"single", "5", 0, 59, []int{5}},
		{"range", "1-3", 0, 59, []int{1, 2, 3}},
		{"list", "1,3,5", 0, 59, []int{1, 3, 5}},
		{"star", "*", 0, 5, []int{0, 1, 2, 3, 4, 5}},
		{"star_step", "*/2", 0, 5, []int{0, 2, 4}},
		{"range_step", "1-10/3", 0, 59, []int{1, 4, 7, 10}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bits, err := parseField(test.field, test.min, test.max)
			if err != nil {
				t.Fatalf("parseField(%q, %d, %d) = %v", test.field, test.min, test.max, err)
			}
			for _, value := range test.want {
				if !bits.has(value) {
					t.Errorf("parseField(%q): missing value %d", test.field, value)
				}
			}
			count := 0
			for value := test.min; value <= test.max; value++ {
				if bits.has(value) {
					count++
				}
			}
			if count != len(test.want) {
				t.Errorf("parseField(%q): got %d values, want %d", test.field, count, len(test.want))
			}
		})
	}
}
