package models

import "time"

// DateLayout is the layout used for calendar dates across the ledger and the APIs.
const DateLayout = "2006-01-02"

// CalculateOutputSize estimates how many candles of the given interval cover the given number of days.
func CalculateOutputSize(interval string, days int) int {
	candlesPerDay := 0

	switch interval {
	case "1min":
		candlesPerDay = 24 * 60
	case "5min":
		candlesPerDay = 24 * 12
	case "15min":
		candlesPerDay = 24 * 4
	case "30min":
		candlesPerDay = 24 * 2
	case "45min":
		candlesPerDay = 24 * 60 / 45
	case "1h":
		candlesPerDay = 24
	case "2h":
		candlesPerDay = 12
	case "4h":
		candlesPerDay = 6
	case "8h":
		candlesPerDay = 3
	case "1day":
		candlesPerDay = 1
	case "1week":
		candlesPerDay = 1
		days = days / 7
		if days < 1 {
			days = 1
		}
	case "1month":
		candlesPerDay = 1
		days = days / 30
		if days < 1 {
			days = 1
		}
	}

	// Add a buffer and stay inside the provider's page limit
	size := int(float64(candlesPerDay) * float64(days) * 1.1)
	if size < 1 {
		size = 1
	}
	if size > 5000 {
		size = 5000
	}
	return size
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// TargetDate returns the date a forecast made on the last observed date refers to.
// Weekend days are skipped unless the instrument trades every day. Exchange holidays are not modelled.
func TargetDate(lastObserved time.Time, horizon int, alwaysTrading bool) time.Time {
	day := DateOf(lastObserved)
	if horizon < 1 {
		horizon = 1
	}
	for n := 0; n < horizon; {
		day = day.AddDate(0, 0, 1)
		if alwaysTrading || !IsWeekend(day) {
			n++
		}
	}
	return day
}
