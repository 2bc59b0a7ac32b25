// Copyright 2026 The OpenClaw Keeper Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression. Parse builds one; Next
// computes occurrences.
type Schedule struct {
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64
}

// bitset64 uses a uint64 as a compact set of integers 0-63.
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }
func (b *bitset64) clear(value int)   { *b &^= 1 << uint(value) }

// fieldSpecs names the five fields in expression order with their
// value ranges. Day-of-week admits 7, folded to Sunday after parsing.
var fieldSpecs = [5]struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// Parse parses a standard 5-field cron expression. Returns an error
// if the expression is malformed or contains out-of-range values.
func Parse(expression string) (Schedule, error) {
	parts := strings.Fields(expression)
	if len(parts) != len(fieldSpecs) {
		return Schedule{}, fmt.Errorf("cron: expected %d fields, got %d", len(fieldSpecs), len(parts))
	}

	var sets [len(fieldSpecs)]bitset64
	for i, spec := range fieldSpecs {
		set, err := parseField(parts[i], spec.min, spec.max)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		sets[i] = set
	}

	daysOfWeek := sets[4]
	// Crontab convention: both 0 and 7 mean Sunday.
	if daysOfWeek.has(7) {
		daysOfWeek.set(0)
		daysOfWeek.clear(7)
	}

	return Schedule{
		minutes:     sets[0],
		hours:       sets[1],
		daysOfMonth: sets[2],
		months:      sets[3],
		daysOfWeek:  daysOfWeek,
	}, nil
}

// Next returns the earliest time strictly after t that matches the
// schedule. All computation is in UTC.
//
// Returns an error if no matching time exists within 4 years of t,
// which catches impossible schedules like Feb 31.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	// Start from the next minute after t, with seconds/nanos zeroed.
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)

	// 4 years covers a full leap cycle.
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			// Jump to the first day of the next month.
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			continue
		}

		// Day-of-month and day-of-week are both checked. Classic cron
		// treats two restricted day fields as an OR; here a wildcard
		// field has every bit set, so checking both amounts to AND,
		// and a schedule restricting both must satisfy both.
		if !s.daysOfMonth.has(t.Day()) || !s.daysOfWeek.has(int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}

		if !s.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			continue
		}

		if !s.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// parseField parses one cron field: a comma-separated list of terms
// OR-ed into a single bitset.
func parseField(field string, minimum, maximum int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses a single term: *, */N, V, V-V, V-V/N.
func parseTerm(term string, minimum, maximum int) (bitset64, error) {
	rangeText, stepText, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepText)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepText, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	first, last, err := parseRange(rangeText, minimum, maximum)
	if err != nil {
		return 0, err
	}

	var result bitset64
	for value := first; value <= last; value += step {
		result.set(value)
	}
	return result, nil
}

// parseRange resolves the range part of a term (*, V, or V-V) to
// inclusive bounds within [minimum, maximum].
func parseRange(text string, minimum, maximum int) (first, last int, err error) {
	switch startText, endText, isRange := strings.Cut(text, "-"); {
	case text == "*":
		first, last = minimum, maximum
	case isRange:
		first, err = strconv.Atoi(startText)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range start %q: %w", startText, err)
		}
		last, err = strconv.Atoi(endText)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range end %q: %w", endText, err)
		}
		if first > last {
			return 0, 0, fmt.Errorf("range start %d > end %d", first, last)
		}
	default:
		first, err = strconv.Atoi(text)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid value %q: %w", text, err)
		}
		last = first
	}

	if first < minimum || last > maximum {
		return 0, 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, first, last)
	}
	return first, last, nil
}
