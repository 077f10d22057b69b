// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package analyzer

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Config holds Analyzer settings.
type Config struct {
	// WindowSize is the number of samples retained per key.
	WindowSize int
	// ZThreshold is the z-score a value must exceed to be an outlier.
	ZThreshold float64
	// MinSamples is the number of retained samples required before
	// DetectAnomalies can flag anything.
	MinSamples int
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize: 100,
		ZThreshold: 2.0,
		MinSamples: 5,
	}
}

// Outlier is a sample whose z-score exceeded the threshold.
type Outlier struct {
	Value  float64 `json:"value"`
	Index  int     `json:"index"`
	ZScore float64 `json:"z_score"`
}

// Anomaly is the result of scoring one value against a key's window.
type Anomaly struct {
	IsAnomaly  bool    `json:"is_anomaly"`
	Confidence float64 `json:"confidence"`
	ZScore     float64 `json:"z_score"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Samples    int     `json:"samples"`
}

// Analyzer tracks per-key sample windows.
type Analyzer struct {
	cfg Config

	mu      sync.RWMutex
	windows map[string]*window
}

type window struct {
	mu     sync.Mutex
	values []float64
	head   int
	full   bool
}

// New creates an Analyzer. Zero config fields fall back to DefaultConfig.
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.WindowSize <= 1 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = def.ZThreshold
	}
	if cfg.MinSamples <= 1 {
		cfg.MinSamples = def.MinSamples
	}
	return &Analyzer{cfg: cfg, windows: make(map[string]*window)}
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

func (a *Analyzer) window(key string, create bool) *window {
	a.mu.RLock()
	w, ok := a.windows[key]
	a.mu.RUnlock()
	if ok || !create {
		return w
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok = a.windows[key]; ok {
		return w
	}
	w = &window{values: make([]float64, 0, a.cfg.WindowSize)}
	a.windows[key] = w
	return w
}

// add must be called with w.mu held.
func (w *window) add(v float64, capacity int) {
	if len(w.values) < capacity {
		w.values = append(w.values, v)
		return
	}
	w.values[w.head] = v
	w.head = (w.head + 1) % capacity
	w.full = true
}

// snapshot returns the samples oldest first. Must be called with w.mu held.
func (w *window) snapshot() []float64 {
	out := make([]float64, 0, len(w.values))
	if !w.full {
		return append(out, w.values...)
	}
	out = append(out, w.values[w.head:]...)
	return append(out, w.values[:w.head]...)
}

// AddDataPoint appends value to key's window, dropping the oldest sample
// once the window is full.
func (a *Analyzer) AddDataPoint(key string, value float64) {
	w := a.window(key, true)
	w.mu.Lock()
	w.add(value, a.cfg.WindowSize)
	w.mu.Unlock()
}

// Window returns a copy of key's samples, oldest first.
func (a *Analyzer) Window(key string) []float64 {
	w := a.window(key, false)
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

// Keys returns the tracked keys in sorted order.
func (a *Analyzer) Keys() []string {
	a.mu.RLock()
	keys := make([]string, 0, len(a.windows))
	for k := range a.windows {
		keys = append(keys, k)
	}
	a.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Reset discards key's window.
func (a *Analyzer) Reset(key string) {
	a.mu.Lock()
	delete(a.windows, key)
	a.mu.Unlock()
}

// DetectAnomalies scores newValue against key's current window and then
// records it. The z-score is computed over the window plus newValue.
func (a *Analyzer) DetectAnomalies(key string, newValue float64) Anomaly {
	w := a.window(key, true)
	w.mu.Lock()
	history := w.snapshot()
	w.add(newValue, a.cfg.WindowSize)
	w.mu.Unlock()

	res := a.score(append(history, newValue))
	if len(history) < a.cfg.MinSamples {
		res.IsAnomaly = false
		res.Confidence = 0
	}
	return res
}

// ScoreLast scores the final element of series against the whole series
// without touching any window. A series shorter than MinSamples+1 is never
// anomalous.
func (a *Analyzer) ScoreLast(series []float64) Anomaly {
	if len(series) == 0 {
		return Anomaly{}
	}
	res := a.score(series)
	if len(series)-1 < a.cfg.MinSamples {
		res.IsAnomaly = false
		res.Confidence = 0
	}
	return res
}

// DetectOutliers applies DetectOutliers with the analyzer's threshold when
// zThreshold is not positive.
func (a *Analyzer) DetectOutliers(series []float64, zThreshold float64) []Outlier {
	if zThreshold <= 0 {
		zThreshold = a.cfg.ZThreshold
	}
	return DetectOutliers(series, zThreshold)
}

// score computes the z-score of the last element of series.
func (a *Analyzer) score(series []float64) Anomaly {
	mean, sd := meanStdDev(series)
	res := Anomaly{Mean: mean, StdDev: sd, Samples: len(series)}
	if sd == 0 {
		return res
	}
	res.ZScore = math.Abs(series[len(series)-1]-mean) / sd
	res.IsAnomaly = res.ZScore > a.cfg.ZThreshold
	res.Confidence = confidence(res.ZScore, a.cfg.ZThreshold)
	return res
}

// confidence maps a z-score onto [0, 1]; reaching the threshold yields 0.5.
func confidence(z, threshold float64) float64 {
	return math.Min(1, z/(2*threshold))
}

// Mean returns the arithmetic mean of series, or 0 when it is empty.
func Mean(series []float64) float64 {
	m, _ := meanStdDev(series)
	return m
}

// StdDev returns the population standard deviation of series, or 0 when it
// is empty.
func StdDev(series []float64) float64 {
	_, sd := meanStdDev(series)
	return sd
}

func meanStdDev(series []float64) (float64, float64) {
	if len(series) == 0 {
		return 0, 0
	}
	mean, sd := stat.PopMeanStdDev(series, nil)
	if math.IsNaN(sd) {
		sd = 0
	}
	return mean, sd
}

// DetectOutliers returns every sample whose |x-mean|/stddev exceeds
// zThreshold, in series order. A constant series has no outliers.
func DetectOutliers(series []float64, zThreshold float64) []Outlier {
	mean, sd := meanStdDev(series)
	if sd == 0 {
		return nil
	}
	var out []Outlier
	for i, v := range series {
		z := math.Abs(v-mean) / sd
		if z > zThreshold {
			out = append(out, Outlier{Value: v, Index: i, ZScore: z})
		}
	}
	return out
}
