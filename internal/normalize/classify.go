package normalize

import "siramify-telemetry/internal/models"

// Classify maps a soil humidity percentage to its moisture status. Boundary
// values belong to the wetter bucket: 55 is Normal, 70 is Wet. Farmer
// guidance depends on these exact thresholds.
func Classify(humidity float64) models.Status {
	switch {
	case humidity < 55:
		return models.StatusDry
	case humidity < 70:
		return models.StatusNormal
	default:
		return models.StatusWet
	}
}
