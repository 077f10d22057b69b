// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package threat combines statistical, rule and reputation signals into one
threat assessment and owns the IP blocklist.

# Scoring

Aggregator.Evaluate runs three contributors in sequence:

 1. Statistical: the last value of each named series is z-scored against
    the series; the sub-score is the highest anomaly confidence.
 2. Rules: the recent events are evaluated by a rules.Engine seeded with
    the manufacturing templates; the sub-score is the weight of the most
    severe hit (low 0.25, medium 0.5, high 0.8, critical 1.0).
 3. Reputation: an optional ReputationClient lookup of the source IP,
    bounded by a timeout.

The score is the weighted sum of the sub-scores clamped to [0, 1]. A
contributor that fails contributes 0; Evaluate itself never fails.

Levels: score < 0.3 low, < 0.6 medium, < 0.85 high, otherwise critical
(thresholds are configurable). IsThreat is set when the level is high or
critical, when the score reaches the block threshold, or when any single
rule hit is high or critical. In the last case the level is raised to match
the hit so it never contradicts IsThreat.

# Blocklist

Blocks are held in memory and optionally mirrored to a BlocklistStore
(BadgerBlocklistStore keeps them across restarts using native TTLs).
IsBlocked treats expired entries as absent and evicts them lazily;
RunWithContext sweeps them periodically.
*/
package threat
