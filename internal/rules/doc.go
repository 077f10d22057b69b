// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

/*
Package rules is the declarative detection rule engine.

A Rule is a pure function of a Context snapshot (recent events, named
numeric series, metadata). The Engine evaluates every registered rule in
registration order and returns the hits in that order:

	engine := rules.NewEngine()
	engine.AddRule(rules.FailedLoginBurst(5, 5*time.Minute))
	engine.AddRule(rules.EquipmentErrorRate(3, 10*time.Minute))

	hits := engine.Evaluate(&rules.Context{Now: time.Now(), Events: recent})
	rules.SortBySeverity(hits) // only if most-severe-first is needed

A rule that returns an error or panics is logged, counted in
security_rule_errors_total and skipped; the remaining rules still run.

AddRule does not de-duplicate: registering the same rule ID twice yields two
independent rules that both fire.

Built-in templates:

  - FailedLoginBurst: user.login.failed count in window, severity high
  - EquipmentErrorRate: equipment.status.error count in window, severity critical
  - DataExfiltrationBurst: data.read/data.export by one user in window, severity high
  - StationAccessAfterHours: station access outside the shift, severity medium
*/
package rules
