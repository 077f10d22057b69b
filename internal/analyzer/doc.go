// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package analyzer flags statistically unusual numeric samples.

An Analyzer keeps a bounded window of samples per named key (for example
"data.read:operator-7" holding per-minute read counts) and scores new values
by their population z-score:

	a := analyzer.New(analyzer.DefaultConfig())
	for _, v := range history {
	    a.AddDataPoint("data.read:operator-7", v)
	}
	res := a.DetectAnomalies("data.read:operator-7", 42)
	if res.IsAnomaly {
	    // res.Confidence is in [0, 1]
	}

Series-level helpers (Mean, StdDev, DetectOutliers) are pure functions over a
slice. Mean and standard deviation are computed with gonum's stat package.

# Zero Variance

A constant series has no defined z-score, so DetectOutliers reports nothing
for it and DetectAnomalies never flags a value against an all-equal window
unless the value itself differs (in which case the combined window has
non-zero variance).

# Concurrency

Each key's window has its own mutex; the key map is guarded separately, so
writers to different keys never contend.
*/
package analyzer
