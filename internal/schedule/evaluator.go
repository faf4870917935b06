// Package schedule evaluates five-field cron expressions against instants
// and generates balanced crontabs for subscriptions. Parsing is delegated
// to robfig/cron; this package adds minute-resolution evaluation and the
// slot balancers.
package schedule

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// balancerMinutes are the minute slots the generators choose from
var balancerMinutes = []int{0, 10, 20, 30, 40, 50}

// Parse validates a five-field cron expression
func Parse(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// FiresAt reports whether expr fires at the exact minute containing t
func FiresAt(expr string, t time.Time) (bool, error) {
	sched, err := Parse(expr)
	if err != nil {
		return false, err
	}
	minute := t.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute), nil
}

// Enumerate returns every instant in [start, end] at which expr fires, at
// one-minute resolution, in order.
func Enumerate(expr string, start, end time.Time) ([]time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	var fires []time.Time
	t := sched.Next(start.Truncate(time.Minute).Add(-time.Second))
	for !t.After(end) {
		fires = append(fires, t)
		t = sched.Next(t)
	}
	return fires, nil
}

// BalancedDailyCron returns the least-loaded (minute, hour-range) slot from
// the template set, given the crontabs already assigned across active
// channels. templates come from CRON_DEFAULT_SELECTION, pipe-separated,
// each with an "M" minute placeholder. Ties break randomly.
func BalancedDailyCron(templates []string, existing []string) string {
	type slot struct {
		expr  string
		count int
	}

	var slots []slot
	for _, tmpl := range templates {
		tmpl = strings.TrimSpace(tmpl)
		if tmpl == "" {
			continue
		}
		for _, minute := range balancerMinutes {
			slots = append(slots, slot{expr: strings.Replace(tmpl, "M", fmt.Sprintf("%d", minute), 1)})
		}
	}
	if len(slots) == 0 {
		return ""
	}

	for _, expr := range existing {
		expr = strings.Join(strings.Fields(expr), " ")
		for i := range slots {
			if slots[i].expr == expr {
				slots[i].count++
			}
		}
	}

	best := slots[0]
	var ties []slot
	for _, s := range slots {
		switch {
		case s.count < best.count:
			best = s
			ties = ties[:0]
			ties = append(ties, s)
		case s.count == best.count:
			ties = append(ties, s)
		}
	}
	if len(ties) > 1 {
		return ties[rand.Intn(len(ties))].expr
	}
	return best.expr
}

// WeeklyCron emits "M H * * d" with a random balancer minute and an hour
// drawn from the allowed list.
func WeeklyCron(dayOfWeek int, hours []int) string {
	minute := balancerMinutes[rand.Intn(len(balancerMinutes))]
	hour := 12
	if len(hours) > 0 {
		hour = hours[rand.Intn(len(hours))]
	}
	return fmt.Sprintf("%d %d * * %d", minute, hour, dayOfWeek%7)
}

// MonthlyCron emits "M H D * *" for the given day of month
func MonthlyCron(dayOfMonth int, hours []int) string {
	minute := balancerMinutes[rand.Intn(len(balancerMinutes))]
	hour := 12
	if len(hours) > 0 {
		hour = hours[rand.Intn(len(hours))]
	}
	return fmt.Sprintf("%d %d %d * *", minute, hour, dayOfMonth)
}

// BiYearlyCron emits a cron firing twice a year, six months apart
func BiYearlyCron(dayOfMonth int, startMonth int, hours []int) string {
	minute := balancerMinutes[rand.Intn(len(balancerMinutes))]
	hour := 12
	if len(hours) > 0 {
		hour = hours[rand.Intn(len(hours))]
	}
	first := ((startMonth-1)%12 + 12) % 12
	second := (first + 6) % 12
	if first > second {
		first, second = second, first
	}
	return fmt.Sprintf("%d %d %d %d,%d *", minute, hour, dayOfMonth, first+1, second+1)
}

// YearlyCron emits "M H D M *" for the given month and day
func YearlyCron(dayOfMonth int, month int, hours []int) string {
	minute := balancerMinutes[rand.Intn(len(balancerMinutes))]
	hour := 12
	if len(hours) > 0 {
		hour = hours[rand.Intn(len(hours))]
	}
	return fmt.Sprintf("%d %d %d %d *", minute, hour, dayOfMonth, month)
}

// NextDayOfWeek maps an upload weekday to the weekday the rebalanced scan
// should run on, the following day.
func NextDayOfWeek(dayOfWeek int) int {
	return (dayOfWeek + 1) % 7
}

// SplitSelection splits a CRON_DEFAULT_SELECTION value into its templates
func SplitSelection(selection string) []string {
	var templates []string
	for _, part := range strings.Split(selection, "|") {
		part = strings.TrimSpace(part)
		if part != "" {
			templates = append(templates, part)
		}
	}
	return templates
}
