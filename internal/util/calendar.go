package util

import "time"

// SessionWindow returns the calendar start date that covers at least n
// weekday sessions ending at end (inclusive). Exchange holidays are not
// modelled, so a pad of extra days is added on top to absorb them.
func SessionWindow(end time.Time, n, pad int) time.Time {
	if n < 1 {
		n = 1
	}
	day := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	counted := 0
	for {
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			counted++
			if counted == n {
				break
			}
		}
		day = day.AddDate(0, 0, -1)
	}
	return day.AddDate(0, 0, -pad)
}
