// Package cadence turns the restricted natural-language cadence surface
// accepted in [backup.*].when ("daily 03:15", "weekly mon 09:30",
// "monthly 1 02:30") into a seven-field cron expression (sec min hour dom
// month dow year). Three grammars are tried in order — daily, monthly,
// weekly — each failing silently so the next grammar gets a chance; a raw
// cron expression is accepted as a last-resort fallback so power users can
// bypass the restricted surface entirely.
//
// This package is a direct, idiomatic-Go port of the parsing rules in
// galeone/bacup's backup.rs (parse_daily/parse_monthly/parse_weekly/parse_when).
package cadence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expression is an immutable, parsed seven-field cron expression.
// Field order: sec min hour dom month dow year.
type Expression struct {
	raw string
}

// String returns the seven-field cron string, e.g. "0 15 3 * * * *".
func (e Expression) String() string {
	return e.raw
}

// CronSix returns the first six fields (sec min hour dom month dow),
// dropping the trailing year field. gocron's cron parser has no year
// field, so the scheduler registers jobs with this form.
func (e Expression) CronSix() string {
	fields := strings.Fields(e.raw)
	if len(fields) < 6 {
		return e.raw
	}
	return strings.Join(fields[:6], " ")
}

var hhmmRe = regexp.MustCompile(`(\d{2}):(\d{2})`)

// weekday pairs the short and long lowercase spelling of a weekday with its
// ISO-8601 day-of-week number (Monday=1 .. Sunday=7). Kept as an ordered
// slice (rather than a map) so matching is deterministic — a weekday's short
// form is always a prefix of its long form, so whichever one actually
// appears in the input must be tried in a fixed order, not map order.
type weekday struct {
	short string
	long  string
	iso   int
}

var weekdays = []weekday{
	{"mon", "monday", 1},
	{"tue", "tuesday", 2},
	{"wed", "wednesday", 3},
	{"thu", "thursday", 4},
	{"fri", "friday", 5},
	{"sat", "saturday", 6},
	{"sun", "sunday", 7},
}

// Parse reduces a case-insensitive cadence string to a seven-field cron
// Expression. Daily, monthly, and weekly grammars are tried in order; on
// total failure, input that passes looksLikeCron is returned unchanged so
// operators can supply a cron expression directly. Parse does not check its
// field values; gocron parses the expression when the scheduler registers it.
func Parse(when string) (Expression, error) {
	input := strings.ToLower(when)

	dailyCron, dailyErr := parseDaily(input)
	if dailyErr == nil {
		return Expression{raw: dailyCron}, nil
	}

	monthlyCron, monthlyErr := parseMonthly(input)
	if monthlyErr == nil {
		return Expression{raw: monthlyCron}, nil
	}

	weeklyCron, weeklyErr := parseWeekly(input)
	if weeklyErr == nil {
		return Expression{raw: weeklyCron}, nil
	}

	if looksLikeCron(when) {
		return Expression{raw: when}, nil
	}

	return Expression{}, fmt.Errorf(
		"cadence: unable to parse %q as daily, monthly, or weekly, and it is "+
			"not a valid raw cron expression\n  daily: %v\n  monthly: %v\n  weekly: %v",
		when, dailyErr, monthlyErr, weeklyErr)
}

// looksLikeCron is a coarse check used only to decide whether to attempt the
// raw-passthrough fallback: it must tokenize into exactly seven whitespace
// separated fields, each built from cron-legal characters.
func looksLikeCron(s string) bool {
	fields := strings.Fields(s)
	if len(fields) != 7 {
		return false
	}
	for _, f := range fields {
		for _, r := range f {
			if !strings.ContainsRune("0123456789*/,-", r) {
				return false
			}
		}
	}
	return true
}

// getHoursAndMinutes extracts the first "HH:MM" substring and validates it
// is in range. Returns false if no such substring exists or it is out of range.
func getHoursAndMinutes(s string) (hour, minute int, ok bool) {
	m := hhmmRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// parseDaily accepts "daily HH:MM". Anything left over after removing the
// "daily" keyword and the HH:MM token is a parse error.
func parseDaily(input string) (string, error) {
	const keyword = "daily"
	if !strings.Contains(input, keyword) {
		return "", fmt.Errorf("no %q identifier found", keyword)
	}
	rest := strings.Replace(input, keyword, "", 1)

	hour, minute, ok := getHoursAndMinutes(rest)
	if !ok {
		return "", fmt.Errorf("unable to find a valid HH:MM in %q", rest)
	}

	rest = strings.Replace(rest, fmt.Sprintf("%02d:%02d", hour, minute), "", 1)
	rest = strings.TrimSpace(rest)
	if rest != "" {
		return "", fmt.Errorf("unconsumed input after parsing daily cadence: %q", rest)
	}

	return fmt.Sprintf("0 %d %d * * * *", minute, hour), nil
}

// parseMonthly accepts "monthly D HH:MM" with D in [1,31].
func parseMonthly(input string) (string, error) {
	const keyword = "monthly"
	if !strings.Contains(input, keyword) {
		return "", fmt.Errorf("no %q identifier found", keyword)
	}
	rest := strings.Replace(input, keyword, "", 1)

	hour, minute, ok := getHoursAndMinutes(rest)
	if !ok {
		return "", fmt.Errorf("unable to find a valid HH:MM in %q", rest)
	}
	rest = strings.Replace(rest, fmt.Sprintf("%02d:%02d", hour, minute), "", 1)
	rest = strings.TrimSpace(rest)

	day, err := strconv.Atoi(rest)
	if err != nil {
		return "", fmt.Errorf("unable to parse day-of-month from %q: %w", rest, err)
	}
	if day < 1 || day > 31 {
		return "", fmt.Errorf("day-of-month %d out of range [1,31]", day)
	}

	return fmt.Sprintf("0 %d %d %d * * *", minute, hour, day), nil
}

// parseWeekly accepts "[weekly] <weekday> HH:MM", weekday being the full or
// three-letter English name, case-insensitive.
func parseWeekly(input string) (string, error) {
	for _, d := range weekdays {
		hasShort := strings.Contains(input, d.short)
		hasLong := strings.Contains(input, d.long)
		if !hasShort && !hasLong {
			continue
		}

		token := d.short
		if hasLong {
			token = d.long
		}
		rest := strings.Replace(input, token, "", 1)

		hour, minute, ok := getHoursAndMinutes(rest)
		if !ok {
			return "", fmt.Errorf("unable to find a valid HH:MM in %q", rest)
		}
		rest = strings.Replace(rest, fmt.Sprintf("%02d:%02d", hour, minute), "", 1)
		rest = strings.TrimSpace(rest)
		if rest != "" && rest != "weekly" {
			return "", fmt.Errorf("unconsumed input after parsing weekly cadence: %q", rest)
		}

		return fmt.Sprintf("0 %d %d * * %d *", minute, hour, d.iso), nil
	}
	return "", fmt.Errorf("no weekday identifier found in %q", input)
}
