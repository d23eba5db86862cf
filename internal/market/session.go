package market

import "time"

var newYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// Exchange returns the US equity exchange timezone.
func Exchange() *time.Location { return newYork }

// SessionOpen returns 09:30 exchange time on t's exchange-local date.
func SessionOpen(t time.Time) time.Time {
	et := t.In(newYork)
	y, m, d := et.Date()
	return time.Date(y, m, d, 9, 30, 0, 0, newYork)
}

// MinutesSinceOpen is negative before the bell.
func MinutesSinceOpen(t time.Time) float64 {
	return t.Sub(SessionOpen(t)).Minutes()
}

// InRegularSession reports whether t falls in 09:30-16:00 exchange time on a weekday.
func InRegularSession(t time.Time) bool {
	et := t.In(newYork)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	open := SessionOpen(t)
	return !et.Before(open) && et.Before(open.Add(390*time.Minute))
}

// SameTradingDay compares exchange-local calendar dates.
func SameTradingDay(a, b time.Time) bool {
	ay, am, ad := a.In(newYork).Date()
	by, bm, bd := b.In(newYork).Date()
	return ay == by && am == bm && ad == bd
}
