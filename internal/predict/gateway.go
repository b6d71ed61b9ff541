// Package predict is the boundary to the external soil prediction model.
package predict

import (
	"context"
	"fmt"
	"time"

	"siramify-telemetry/internal/models"

	"github.com/go-resty/resty/v2"
)

// Gateway calls the external predictive service. It makes exactly one attempt
// per call and keeps no state between calls; every failure mode maps to
// models.ErrPredictionUnavailable so callers fall back to rule-based
// classification instead of blocking the dashboard.
type Gateway struct {
	client *resty.Client
	url    string
}

// NewGateway builds a gateway against the given endpoint URL.
func NewGateway(url string, timeout time.Duration) *Gateway {
	return &Gateway{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

type predictRequest struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Hour        int     `json:"hour"`
}

type predictResponse struct {
	PredictedStatus      string   `json:"predicted_status"`
	PredictedTemperature *float64 `json:"predicted_temperature"`
	PredictedHumidity    *float64 `json:"predicted_humidity"`
}

// Predict asks the model for a status override given current readings and the
// hour of day. Callers must not invoke it with placeholder readings: both
// temperature and humidity must be > 0, and the gateway performs no input
// validation of its own.
func (g *Gateway) Predict(ctx context.Context, temperature, humidity float64, hour int) (*models.Prediction, error) {
	var out predictResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(predictRequest{Temperature: temperature, Humidity: humidity, Hour: hour}).
		SetResult(&out).
		Post(g.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPredictionUnavailable, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: status %d", models.ErrPredictionUnavailable, resp.StatusCode())
	}

	status := models.Status(out.PredictedStatus)
	switch status {
	case models.StatusDry, models.StatusNormal, models.StatusWet:
	default:
		return nil, fmt.Errorf("%w: unrecognized status %q", models.ErrPredictionUnavailable, out.PredictedStatus)
	}

	return &models.Prediction{
		Status:      status,
		Temperature: out.PredictedTemperature,
		Humidity:    out.PredictedHumidity,
	}, nil
}
