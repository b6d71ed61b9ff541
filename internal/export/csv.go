// Package export serializes normalized telemetry records to CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"siramify-telemetry/internal/models"
)

var header = []string{"No", "Tanggal", "Waktu", "Suhu", "Kelembapan", "Status"}

// CSV renders records into a spreadsheet-ready document: UTF-8 BOM, fixed
// column order, 1-based row numbers assigned here (not record ids), Suhu
// suffixed with a degree sign and Kelembapan with a percent sign. Output is
// deterministic for a given input sequence.
func CSV(records []models.TelemetryRecord) ([]byte, error) {
	var buf bytes.Buffer
	// BOM keeps the degree sign intact in spreadsheet tools.
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i, rec := range records {
		row := []string{
			strconv.Itoa(i + 1),
			rec.Date,
			rec.Time,
			formatFloat(rec.Temperature) + "°",
			formatFloat(rec.Humidity) + "%",
			string(rec.Status),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Filename names the download after the export date.
func Filename(t time.Time) string {
	return "data_penyiraman_" + t.Format("2006-01-02") + ".csv"
}
