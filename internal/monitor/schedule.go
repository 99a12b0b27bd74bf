package monitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule decides when the next poll cycle starts.
type Schedule = cron.Schedule

// ParsedSchedule is a poll schedule plus a description of where it came from.
type ParsedSchedule struct {
	Schedule Schedule
	// Every is set for interval schedules.
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
	Raw    string
}

func (p ParsedSchedule) String() string {
	if p.Every > 0 {
		return "every " + p.Every.String()
	}
	return p.Raw
}

var (
	reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

	cronParser = cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
)

// ParseSchedule accepts:
//   - Go duration: "10s", "2m30s"
//   - HH:MM interval: "00:05" (five minutes)
//   - cron: "*/1 * * * *", "*/20 * * * * *", "@every 30s", "@hourly"
//
// The "cron:" prefix forces cron parsing, "every:" and "interval:" force an
// interval. Interval schedules count from the end of the previous cycle.
func ParseSchedule(raw string) (ParsedSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSchedule{}, fmt.Errorf("poll schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	p, err := parseInterval(s)
	if err != nil {
		return ParsedSchedule{}, fmt.Errorf(
			"invalid poll schedule %q (use a duration like '10s', HH:MM like '00:05', or cron like '*/1 * * * *')", raw)
	}
	return p, nil
}

// MustSchedule is ParseSchedule for literals.
func MustSchedule(raw string) ParsedSchedule {
	p, err := ParseSchedule(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func parseCron(expr string) (ParsedSchedule, error) {
	if expr == "" {
		return ParsedSchedule{}, fmt.Errorf("cron expression required")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return ParsedSchedule{}, fmt.Errorf("cron %q: %w", expr, err)
	}
	p := ParsedSchedule{Schedule: sched, Source: "cron", Raw: expr}
	if cd, ok := sched.(cron.ConstantDelaySchedule); ok {
		p.Every = cd.Delay
	}
	return p, nil
}

func parseInterval(v string) (ParsedSchedule, error) {
	if v == "" {
		return ParsedSchedule{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSchedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		src = "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return ParsedSchedule{}, fmt.Errorf("invalid interval %q", v)
		}
	}
	// cron.Every rounds down to whole seconds.
	if d < time.Second {
		return ParsedSchedule{}, fmt.Errorf("interval must be at least 1s, got %s", d)
	}
	return ParsedSchedule{Schedule: cron.Every(d), Every: d.Truncate(time.Second), Source: src, Raw: v}, nil
}
