package domain

import (
	"math"
	"time"
)

// Evaluation is a quality/performance observation for a (model, category) pair.
// Score fields live in [0,1]; Latency is in milliseconds.
type Evaluation struct {
	Accuracy           float64   `json:"accuracy"`
	Latency            float64   `json:"latency"`
	Quality            float64   `json:"quality"`
	ResourceEfficiency float64   `json:"resource_efficiency"`
	Satisfaction       float64   `json:"satisfaction"`
	Timestamp          time.Time `json:"timestamp,omitempty"`
}

// Normalized clamps the score fields to [0,1] and latency to be non-negative.
func (e Evaluation) Normalized() Evaluation {
	e.Accuracy = Clamp01(e.Accuracy)
	e.Quality = Clamp01(e.Quality)
	e.ResourceEfficiency = Clamp01(e.ResourceEfficiency)
	e.Satisfaction = Clamp01(e.Satisfaction)
	e.Latency = math.Max(0, e.Latency)
	return e
}

// MeanEvaluation computes the field-wise mean over all observations. The
// timestamp of the result is the latest observation's.
func MeanEvaluation(evals []Evaluation) Evaluation {
	var out Evaluation
	if len(evals) == 0 {
		return out
	}
	for _, e := range evals {
		out.Accuracy += e.Accuracy
		out.Latency += e.Latency
		out.Quality += e.Quality
		out.ResourceEfficiency += e.ResourceEfficiency
		out.Satisfaction += e.Satisfaction
		if e.Timestamp.After(out.Timestamp) {
			out.Timestamp = e.Timestamp
		}
	}
	n := float64(len(evals))
	out.Accuracy /= n
	out.Latency /= n
	out.Quality /= n
	out.ResourceEfficiency /= n
	out.Satisfaction /= n
	return out
}

// Metric names understood by the selection scorer.
const (
	MetricAccuracy           = "accuracy"
	MetricLatency            = "latency"
	MetricQuality            = "quality"
	MetricResourceEfficiency = "resource_efficiency"
	MetricSatisfaction       = "satisfaction"
)

// MetricSet is a partial set of per-model metrics. Absent keys mean "not
// observed yet" and never earn a scoring bonus.
type MetricSet map[string]float64

// Metrics converts an evaluation into the full metric set.
func (e Evaluation) Metrics() MetricSet {
	return MetricSet{
		MetricAccuracy:           e.Accuracy,
		MetricLatency:            e.Latency,
		MetricQuality:            e.Quality,
		MetricResourceEfficiency: e.ResourceEfficiency,
		MetricSatisfaction:       e.Satisfaction,
	}
}
