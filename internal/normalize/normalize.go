// Package normalize converts loosely-shaped device rows into canonical
// telemetry records and derives their soil-moisture status.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"siramify-telemetry/internal/models"
)

// Candidate keys per logical field, probed in order. Devices do not agree on
// key naming or casing, so matching is case-insensitive and first match wins.
var (
	dateKeys        = []string{"tanggal", "date", "created_at"}
	timeKeys        = []string{"waktu", "time", "jam"}
	temperatureKeys = []string{"suhu", "temperature", "temp"}
	humidityKeys    = []string{"kelembapan", "kelembaban", "humidity", "soil_moisture"}
	idKeys          = []string{"id", "_id"}
)

const (
	displayDateFormat = "02/01/2006"
	looseDateFormat   = "2/1/2006"
)

// genericDateFormats is tried in order when the date field is not the
// combined "DD/MM/YYYY HH:MM" encoding.
var genericDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
}

// Normalize converts one raw row into a canonical record. It is total:
// malformed input degrades to verbatim or default values, it never fails.
// index is the row's position in its source sequence and only feeds the
// synthetic display clock and placeholder ids.
func Normalize(raw models.RawRow, index int) models.TelemetryRecord {
	lower := lowerKeyIndex(raw)

	rec := models.TelemetryRecord{
		ID:          probeID(lower, index),
		Temperature: toFloat(probe(lower, temperatureKeys)),
		Humidity:    toFloat(probe(lower, humidityKeys)),
	}

	date, clock := splitDateField(toString(probe(lower, dateKeys)))
	if clock == "" {
		if v := toString(probe(lower, timeKeys)); v != "" {
			clock = strings.ReplaceAll(v, ":", ".")
		} else {
			clock = SyntheticClock(index)
		}
	}
	if date == "" {
		date = time.Now().Format(displayDateFormat)
	}
	rec.Date = date
	rec.Time = clock

	rec.Status = Classify(rec.Humidity)
	rec.StatusSource = models.StatusSourceRule
	return rec
}

// splitDateField extracts display date and clock from the raw date value.
// Precedence: combined "DD/MM/YYYY HH:MM" split on the first space, then the
// generic format ladder reformatted to D/M/YYYY, then the original string
// verbatim. Parsing is fail-open; downstream screens always get a value.
func splitDateField(value string) (date, clock string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}

	if left, right, found := strings.Cut(value, " "); found && isSlashDate(left) {
		return left, strings.ReplaceAll(right, ":", ".")
	}

	for _, layout := range genericDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(looseDateFormat), ""
		}
	}

	return value, ""
}

// isSlashDate reports whether s is three numeric parts joined by slashes.
func isSlashDate(s string) bool {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

// SyntheticClock fabricates a display-only time for rows that carry none.
// The value has no semantic meaning: it exists purely so rows render
// distinctly, and must never feed any time-based computation. Delete once
// devices are guaranteed to report real timestamps.
func SyntheticClock(index int) string {
	hour := 6 + (index*17)%16
	minute := (index * 23) % 60
	return fmt.Sprintf("%02d.%02d", hour, minute)
}

// HourOfDay extracts the hour from a display clock ("HH.MM" or "HH:MM") for
// the prediction gateway. Unparsable input falls back to the current
// wall-clock hour; pass nil for now to use time.Now.
func HourOfDay(clock string, now func() time.Time) int {
	if now == nil {
		now = time.Now
	}
	token := strings.TrimSpace(clock)
	if i := strings.IndexAny(token, ".:"); i >= 0 {
		token = token[:i]
	}
	if h, err := strconv.Atoi(token); err == nil && h >= 0 && h <= 23 {
		return h
	}
	return now().Hour()
}

// FormatTimestamp renders a record's date and time back into the combined
// "DD/MM/YYYY HH:MM" device encoding. Normalize applied to a row carrying
// this string reproduces the same date and time fields.
func FormatTimestamp(rec models.TelemetryRecord) string {
	return rec.Date + " " + strings.ReplaceAll(rec.Time, ".", ":")
}

func lowerKeyIndex(raw models.RawRow) map[string]any {
	lower := make(map[string]any, len(raw))
	for k, v := range raw {
		key := strings.ToLower(k)
		if _, exists := lower[key]; !exists {
			lower[key] = v
		}
	}
	return lower
}

// probe returns the first non-nil value among the candidate keys.
func probe(lower map[string]any, candidates []string) any {
	for _, key := range candidates {
		if v, ok := lower[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func probeID(lower map[string]any, index int) string {
	switch v := probe(lower, idKeys).(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	}
	// Placeholder for rows with no usable id. Never persisted.
	return fmt.Sprintf("temp-%d", index)
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toFloat coerces a raw value to float64, defaulting to 0 on anything
// non-numeric. Classification tolerates the zero default.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
