// Package quota implements the dispatch bookkeeping that caps automated
// downloads per archiver pass and per calendar day.
package quota

import "time"

// DailyCounter reports how many automated downloads completed on a given
// local calendar day. The entity store satisfies this.
type DailyCounter interface {
	CountArchivedOn(day time.Time) (int, error)
}

// Accountant tracks the budget of one archiver pass. It is not safe for
// concurrent use; each pass constructs its own.
type Accountant struct {
	counter DailyCounter

	dailyLimit         int
	perTaskLimit       int
	durationLimitSplit int

	taskCount int
	perTask   int
}

// NewAccountant starts the bookkeeping for one archiver pass
func NewAccountant(counter DailyCounter, dailyLimit, perTaskLimit, durationLimitSplit int) *Accountant {
	return &Accountant{
		counter:            counter,
		dailyLimit:         dailyLimit,
		perTaskLimit:       perTaskLimit,
		durationLimitSplit: durationLimitSplit,
		perTask:            perTaskLimit,
	}
}

// DailyLimitReached reports whether today's calendar-day cap is exhausted
func (a *Accountant) DailyLimitReached(now time.Time) (bool, error) {
	count, err := a.counter.CountArchivedOn(now)
	if err != nil {
		return false, err
	}
	return count >= a.dailyLimit, nil
}

// TaskBudgetExhausted reports whether this pass may dispatch another video
func (a *Accountant) TaskBudgetExhausted() bool {
	return a.taskCount >= a.perTask
}

// RecordDispatch counts one successful dispatch. A video at or past the
// duration split halves the remaining per-task budget.
func (a *Accountant) RecordDispatch(durationSeconds int) {
	a.taskCount++
	if a.durationLimitSplit > 0 && durationSeconds >= a.durationLimitSplit {
		a.perTask /= 2
	}
}

// Dispatched returns the count of dispatches recorded this pass
func (a *Accountant) Dispatched() int {
	return a.taskCount
}

// Remaining returns the per-task budget still available
func (a *Accountant) Remaining() int {
	remaining := a.perTask - a.taskCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
