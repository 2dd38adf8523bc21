package domain

import "math"

const (
	// DefaultForecastHours is the horizon used when the caller does not pick one.
	DefaultForecastHours = 6

	// MaxForecastHours bounds the horizon; beyond two days the ripple model
	// says nothing useful.
	MaxForecastHours = 48

	// forecastRipple is the relative amplitude of the hourly oscillation.
	forecastRipple = 0.05
)

// ForecastPoint is the projection for one hour ahead of now.
type ForecastPoint struct {
	HourOffset     int        `json:"hourOffset"`
	PredictedCount int        `json:"predictedCount"`
	PredictedLevel CrowdLevel `json:"predictedLevel"`
}

// Forecast projects the baseline for hour offsets 1..hours. Each hour is the
// baseline scaled by 1 + 0.05*sin(offset), rounded and clamped at zero.
func Forecast(baseline, capacity, hours int) []ForecastPoint {
	points := make([]ForecastPoint, 0, max(hours, 0))
	for h := 1; h <= hours; h++ {
		predicted := int(math.Round(float64(baseline) * (1 + forecastRipple*math.Sin(float64(h)))))
		if predicted < 0 {
			predicted = 0
		}
		points = append(points, ForecastPoint{
			HourOffset:     h,
			PredictedCount: predicted,
			PredictedLevel: Classify(predicted, capacity),
		})
	}
	return points
}
