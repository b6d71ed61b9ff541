package models

// Status is the discrete soil-moisture classification shown to farmers.
type Status string

const (
	StatusDry    Status = "Dry"
	StatusNormal Status = "Normal"
	StatusWet    Status = "Wet"
)

// StatusSource records whether a displayed status came from the fixed
// thresholds or from the external predictive model. The humidity value is
// always kept alongside, so the rule-based status stays re-derivable.
const (
	StatusSourceRule  = "rule"
	StatusSourceModel = "model"
)

// RawRow is one loosely-typed telemetry row as written by a device. Key
// casing and value encodings are not guaranteed; the normalizer absorbs
// that variance.
type RawRow map[string]any

// TelemetryRecord is the canonical, normalized form of one sensor reading.
type TelemetryRecord struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"` // DD/MM/YYYY
	Time         string  `json:"time"` // HH.MM, dot separator kept for display compatibility
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	Status       Status  `json:"status"`
	StatusSource string  `json:"status_source"`
}

// Prediction is the ephemeral result of one predictive-model call. It is
// created per dashboard refresh and never cached beyond the request.
type Prediction struct {
	Status      Status   `json:"predicted_status"`
	Temperature *float64 `json:"predicted_temperature,omitempty"`
	Humidity    *float64 `json:"predicted_humidity,omitempty"`
}

// DashboardStats are the rollups shown on the farmer dashboard.
type DashboardStats struct {
	TodayCount     int     `json:"today_count"`
	WeekCount      int     `json:"week_count"`
	AvgTemperature float64 `json:"avg_temperature"`
	AvgHumidity    float64 `json:"avg_humidity"`
}
