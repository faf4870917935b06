package schedule

import (
	"strings"
	"testing"
	"time"
)

func TestFiresAtExactMinute(t *testing.T) {
	fires, err := FiresAt("10 9 * * *", time.Date(2024, 3, 5, 9, 10, 30, 0, time.UTC))
	if err != nil {
		t.Fatalf("FiresAt failed: %v", err)
	}
	if !fires {
		t.Error("Expected fire at 09:10")
	}

	fires, err = FiresAt("10 9 * * *", time.Date(2024, 3, 5, 9, 11, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FiresAt failed: %v", err)
	}
	if fires {
		t.Error("Expected no fire at 09:11")
	}
}

func TestFiresAtInvalidExpression(t *testing.T) {
	if _, err := FiresAt("not a cron", time.Now()); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestEnumerateHourly(t *testing.T) {
	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 5, 5, 0, 0, 0, time.UTC)
	fires, err := Enumerate("0 * * * *", start, end)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if len(fires) != 6 {
		t.Fatalf("Expected 6 fires, got %d", len(fires))
	}
	for i, f := range fires {
		if f.Hour() != i || f.Minute() != 0 {
			t.Errorf("Fire %d at unexpected instant %v", i, f)
		}
	}
}

func TestBalancedDailyCronPicksLeastLoaded(t *testing.T) {
	templates := []string{"M 7-21/4 * * *"}

	// Fill every slot except minute 40 twice
	var existing []string
	for _, m := range []string{"0", "10", "20", "30", "50"} {
		expr := strings.Replace("M 7-21/4 * * *", "M", m, 1)
		existing = append(existing, expr, expr)
	}

	got := BalancedDailyCron(templates, existing)
	if got != "40 7-21/4 * * *" {
		t.Errorf("Expected least-loaded slot 40, got %q", got)
	}
}

func TestBalancedDailyCronEmptyTemplates(t *testing.T) {
	if got := BalancedDailyCron(nil, nil); got != "" {
		t.Errorf("Expected empty result, got %q", got)
	}
}

func TestBalancedDailyCronIsParseable(t *testing.T) {
	got := BalancedDailyCron(SplitSelection("M 7-21/4 * * *|M 6-22/4 * * *"), nil)
	if _, err := Parse(got); err != nil {
		t.Errorf("Generated crontab %q does not parse: %v", got, err)
	}
}

func TestWeeklyCron(t *testing.T) {
	expr := WeeklyCron(3, []int{8, 10, 12})
	sched, err := Parse(expr)
	if err != nil {
		t.Fatalf("WeeklyCron produced invalid expression %q: %v", expr, err)
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 || fields[4] != "3" {
		t.Errorf("Expected day-of-week 3 in %q", expr)
	}
	// Must fire exactly once in any week
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	count := 0
	for next := sched.Next(start); next.Before(start.AddDate(0, 0, 7)); next = sched.Next(next) {
		count++
	}
	if count != 1 {
		t.Errorf("Expected one fire per week, got %d", count)
	}
}

func TestWeeklyCronWrapsDayOfWeek(t *testing.T) {
	expr := WeeklyCron(7, nil)
	fields := strings.Fields(expr)
	if fields[4] != "0" {
		t.Errorf("Day 7 should wrap to 0, got %q", expr)
	}
}

func TestMonthlyCron(t *testing.T) {
	expr := MonthlyCron(15, []int{9})
	if _, err := Parse(expr); err != nil {
		t.Fatalf("MonthlyCron produced invalid expression %q: %v", expr, err)
	}
	fields := strings.Fields(expr)
	if fields[2] != "15" {
		t.Errorf("Expected day-of-month 15 in %q", expr)
	}
}

func TestBiYearlyCronMonthsSixApart(t *testing.T) {
	expr := BiYearlyCron(1, 3, nil)
	fields := strings.Fields(expr)
	if fields[3] != "3,9" {
		t.Errorf("Expected months 3,9 in %q", expr)
	}
	if _, err := Parse(expr); err != nil {
		t.Errorf("BiYearlyCron produced invalid expression %q: %v", expr, err)
	}
}

func TestNextDayOfWeek(t *testing.T) {
	cases := map[int]int{0: 1, 3: 4, 6: 0}
	for in, want := range cases {
		if got := NextDayOfWeek(in); got != want {
			t.Errorf("NextDayOfWeek(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSplitSelection(t *testing.T) {
	got := SplitSelection("M 7-21/4 * * * | M 6-22/4 * * *|")
	if len(got) != 2 {
		t.Fatalf("Expected 2 templates, got %d", len(got))
	}
	if got[0] != "M 7-21/4 * * *" || got[1] != "M 6-22/4 * * *" {
		t.Errorf("Unexpected templates: %v", got)
	}
}
