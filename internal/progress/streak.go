package progress

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// daysBetween is ceil(|a-b| / 24h). Two timestamps on the same UTC calendar day count as 0.
func daysBetween(a, b time.Time) int {
	if sameDay(a, b) {
		return 0
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(math.Ceil(float64(d) / float64(day)))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// nextStreak applies one login at `at` to a streak last touched at `last`.
func nextStreak(current int, last, at time.Time) int {
	switch days := daysBetween(at, last); {
	case days == 0:
		return current
	case days == 1:
		return current + 1
	default:
		return 1
	}
}
