package crowd

import (
	"gonum.org/v1/gonum/stat"
)

// Forecast confidence grows linearly with the number of samples behind the
// regression before saturating.
const (
	forecastConfidenceBase      = 0.5
	forecastConfidencePerSample = 0.02
)

// ForecastStrategy produces a Forecast from a camera's history. A Forecast is
// a pure function of the history contents: equal histories yield equal
// forecasts.
type ForecastStrategy interface {
	Forecast(h *History) Forecast
}

// TrendForecaster extrapolates density and congestion by ordinary
// least-squares regression against sample index and projects the trend over
// the horizon. Sample cadence is nominally one per minute, so slope per index
// doubles as slope per minute.
type TrendForecaster struct {
	HorizonMinutes   float64
	DensityThreshold float64
	Saturate         float64 // confidence ceiling from sample count alone
	Cap              float64 // absolute confidence ceiling
}

// Forecast implements ForecastStrategy.
func (f TrendForecaster) Forecast(h *History) Forecast {
	densities := h.Densities()
	congestions := h.Congestions()
	n := len(densities)

	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i)
	}
	_, densitySlope := stat.LinearRegression(idx, densities, nil, false)
	_, congestionSlope := stat.LinearRegression(idx, congestions, nil, false)

	current := densities[n-1]
	currentCongestion := congestions[n-1]

	confidence := forecastConfidenceBase + forecastConfidencePerSample*float64(n)
	if confidence > f.Saturate {
		confidence = f.Saturate
	}
	if confidence > f.Cap {
		confidence = f.Cap
	}

	var ttt *int
	if densitySlope > 0 {
		t := (f.DensityThreshold - current) / densitySlope
		if t >= 0 && t <= f.HorizonMinutes {
			minutes := int(t) // whole minutes remaining, rounded down
			ttt = &minutes
		}
	}

	return Forecast{
		PredictedDensity:       clamp01(current + densitySlope*f.HorizonMinutes),
		PredictedCongestion:    clamp01(currentCongestion + congestionSlope*f.HorizonMinutes),
		TrendSlope:             densitySlope,
		Confidence:             confidence,
		TimeToThresholdMinutes: ttt,
		SampleCount:            n,
	}
}

// PersistenceForecaster carries the latest observation forward unchanged. It
// is the short-history fallback: valid, honest about its low confidence, and
// never an error.
type PersistenceForecaster struct {
	Floor float64 // confidence reported for every forecast
}

// Forecast implements ForecastStrategy.
func (f PersistenceForecaster) Forecast(h *History) Forecast {
	var current, currentCongestion float64
	if last, ok := h.Last(); ok {
		current = last.Density
		currentCongestion = last.CongestionLevel
	}
	return Forecast{
		PredictedDensity:    current,
		PredictedCongestion: currentCongestion,
		Confidence:          f.Floor,
		SampleCount:         h.Len(),
	}
}

// TieredForecaster selects between the trend and persistence tiers on the
// history-length precondition alone.
type TieredForecaster struct {
	MinSamples  int
	Trend       TrendForecaster
	Persistence PersistenceForecaster
}

// NewForecaster builds the tiered forecaster from engine configuration.
func NewForecaster(cfg Config) *TieredForecaster {
	return &TieredForecaster{
		MinSamples: cfg.MinForecastSamples,
		Trend: TrendForecaster{
			HorizonMinutes:   cfg.HorizonMinutes,
			DensityThreshold: cfg.Thresholds.Density,
			Saturate:         cfg.ConfidenceSaturate,
			Cap:              cfg.ConfidenceCap,
		},
		Persistence: PersistenceForecaster{Floor: cfg.ConfidenceFloor},
	}
}

// Forecast implements ForecastStrategy.
func (f *TieredForecaster) Forecast(h *History) Forecast {
	if h.Len() < f.MinSamples {
		return f.Persistence.Forecast(h)
	}
	return f.Trend.Forecast(h)
}
