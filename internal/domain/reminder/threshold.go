package reminder

import "time"

// Threshold is a percentage of an exam's total duration at which a reminder
// wave is triggered.
type Threshold struct {
	Percent int
	Label   string
}

// DefaultThresholds returns the reminder thresholds in ascending order.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Percent: 50, Label: "الأول (50%)"},
		{Percent: 70, Label: "الثاني (70%)"},
		{Percent: 90, Label: "الأخير (90%)"},
	}
}

const hoursPerDay = 24

// ElapsedPercent returns how much of the exam's lifetime has passed as a
// percentage of its duration. A zero-value creation time or a non-positive
// duration yields 0, which keeps such exams out of threshold selection.
func ElapsedPercent(createdAt time.Time, durationDays int, now time.Time) float64 {
	if createdAt.IsZero() || durationDays <= 0 {
		return 0
	}
	total := time.Duration(durationDays) * hoursPerDay * time.Hour
	elapsed := now.UTC().Sub(createdAt.UTC())
	return elapsed.Seconds() / total.Seconds() * 100
}

// NextDue selects the smallest threshold whose percentage has been reached and
// that has no ledger entry yet. Thresholds must be given in ascending order,
// which guarantees they fire in order and at most one fires per pass even when
// elapsed time has jumped past several of them between polls. Returns nil when
// nothing is due.
func NextDue(createdAt time.Time, durationDays int, now time.Time, thresholds []Threshold, sent func(percent int) (bool, error)) (*Threshold, error) {
	if createdAt.IsZero() || durationDays <= 0 {
		return nil, nil
	}
	elapsed := ElapsedPercent(createdAt, durationDays, now)
	for _, t := range thresholds {
		if elapsed < float64(t.Percent) {
			break
		}
		already, err := sent(t.Percent)
		if err != nil {
			return nil, err
		}
		if !already {
			due := t
			return &due, nil
		}
	}
	return nil, nil
}

// HoursRemaining returns the whole hours left until the exam expires, clamped
// to zero. A zero-value creation time falls back to the full duration.
func HoursRemaining(createdAt time.Time, durationDays int, now time.Time) int {
	if createdAt.IsZero() {
		return durationDays * hoursPerDay
	}
	end := createdAt.UTC().Add(time.Duration(durationDays) * hoursPerDay * time.Hour)
	remaining := end.Sub(now.UTC())
	if remaining < 0 {
		return 0
	}
	return int(remaining.Hours())
}
