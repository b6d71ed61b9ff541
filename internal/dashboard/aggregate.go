// Package dashboard derives rollup statistics for the farmer dashboard.
package dashboard

import (
	"time"

	"siramify-telemetry/internal/models"
)

// Options controls the grouping window. The production dashboard counts over
// a fixed recent window rather than true calendar boundaries; CalendarDates
// switches to grouping by each record's parsed date.
type Options struct {
	TodayWindow   int
	WeekWindow    int
	CalendarDates bool
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TodayWindow <= 0 {
		o.TodayWindow = 3
	}
	if o.WeekWindow <= 0 {
		o.WeekWindow = 7
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Aggregate computes dashboard rollups from a bounded recent-record window,
// newest first. An empty window yields zero stats, never a division fault.
func Aggregate(records []models.TelemetryRecord, opts Options) models.DashboardStats {
	opts = opts.withDefaults()

	var stats models.DashboardStats
	if len(records) == 0 {
		return stats
	}

	window := records
	if len(window) > opts.WeekWindow {
		window = window[:opts.WeekWindow]
	}

	var sumTemp, sumHum float64
	for _, rec := range window {
		sumTemp += rec.Temperature
		sumHum += rec.Humidity
	}
	stats.AvgTemperature = sumTemp / float64(len(window))
	stats.AvgHumidity = sumHum / float64(len(window))

	if opts.CalendarDates {
		stats.TodayCount, stats.WeekCount = calendarCounts(records, opts.Now())
		return stats
	}

	stats.WeekCount = len(window)
	stats.TodayCount = len(records)
	if stats.TodayCount > opts.TodayWindow {
		stats.TodayCount = opts.TodayWindow
	}
	return stats
}

// calendarCounts groups by each record's display date: today and the trailing
// seven days. Unparsable dates are excluded from the counts.
func calendarCounts(records []models.TelemetryRecord, now time.Time) (today, week int) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekStart := dayStart.AddDate(0, 0, -6)

	for _, rec := range records {
		d, ok := parseDisplayDate(rec.Date, now.Location())
		if !ok {
			continue
		}
		if !d.Before(dayStart) && d.Before(dayEnd) {
			today++
		}
		if !d.Before(weekStart) && d.Before(dayEnd) {
			week++
		}
	}
	return today, week
}

func parseDisplayDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range []string{"02/01/2006", "2/1/2006"} {
		if d, err := time.ParseInLocation(layout, s, loc); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
