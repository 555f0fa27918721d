package backtest

import (
	"fmt"
	"strings"
)

// renderMarkdown builds the human-readable go/no-go report: the aggregate
// criteria table, a per-scenario breakdown and failure reasons.
func renderMarkdown(report *EvaluationReport) string {
	decision := "GO"
	if !report.OverallGo {
		decision = "NO-GO"
	}

	pass := func(ok bool) string {
		if ok {
			return "PASS"
		}
		return "FAIL"
	}
	all := func(pick func(m MetricsResult) bool) bool {
		for _, m := range report.Scenarios {
			if !pick(m) {
				return false
			}
		}
		return true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Backtest Report — deterministic core validation\n\n")
	fmt.Fprintf(&b, "**Date:** %s\n", report.RunDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Decision:** **%s**\n\n---\n\n", decision)

	b.WriteString("## Go/No-Go criteria\n\n")
	b.WriteString("| Metric | Threshold | Status |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| Capture rate | >= %s | %s |\n", captureRateFloor, pass(all(func(m MetricsResult) bool { return m.CapturePass })))
	fmt.Fprintf(&b, "| False alarm rate | <= %s | %s |\n", falseAlarmCeiling, pass(all(func(m MetricsResult) bool { return m.FalseAlarmPass })))
	fmt.Fprintf(&b, "| Early warning | %s-%s days | %s |\n", earlyWarningMin, earlyWarningMax, pass(all(func(m MetricsResult) bool { return m.EarlyWarningPass })))
	fmt.Fprintf(&b, "| Cost gap std | < %s TL/L | %s |\n", costGapStdCeiling, pass(all(func(m MetricsResult) bool { return m.CostGapPass })))

	b.WriteString("\n---\n\n## Scenario breakdown\n\n")
	for _, m := range report.Scenarios {
		fmt.Fprintf(&b, "### %s (%s) — %s\n\n", m.Scenario, m.Fuel, pass(m.Go))
		b.WriteString("| Metric | Value | Threshold | Result |\n|---|---|---|---|\n")
		fmt.Fprintf(&b, "| Capture rate | %s | >= %s | %s |\n", m.CaptureRate, captureRateFloor, pass(m.CapturePass))
		fmt.Fprintf(&b, "| False alarm rate | %s | <= %s | %s |\n", m.FalseAlarmRate, falseAlarmCeiling, pass(m.FalseAlarmPass))
		fmt.Fprintf(&b, "| Early warning days | %s | %s-%s | %s |\n", m.EarlyWarningDays, earlyWarningMin, earlyWarningMax, pass(m.EarlyWarningPass))
		fmt.Fprintf(&b, "| Cost gap mean | %s TL/L | - | - |\n", m.CostGapMean)
		fmt.Fprintf(&b, "| Cost gap std | %s TL/L | < %s | %s |\n\n", m.CostGapStd, costGapStdCeiling, pass(m.CostGapPass))
	}

	b.WriteString("---\n\n## Conclusion\n\n")
	if report.OverallGo {
		fmt.Fprintf(&b, "**%s** — every scenario met every criterion.\n", decision)
	} else {
		var failed []MetricsResult
		for _, m := range report.Scenarios {
			if !m.Go {
				failed = append(failed, m)
			}
		}
		fmt.Fprintf(&b, "**%s** — %d scenario(s) failed:\n", decision, len(failed))
		for _, m := range failed {
			var reasons []string
			if !m.CapturePass {
				reasons = append(reasons, fmt.Sprintf("capture rate %s < %s", m.CaptureRate, captureRateFloor))
			}
			if !m.FalseAlarmPass {
				reasons = append(reasons, fmt.Sprintf("false alarm rate %s > %s", m.FalseAlarmRate, falseAlarmCeiling))
			}
			if !m.EarlyWarningPass {
				reasons = append(reasons, fmt.Sprintf("early warning %s days outside %s-%s", m.EarlyWarningDays, earlyWarningMin, earlyWarningMax))
			}
			if !m.CostGapPass {
				reasons = append(reasons, fmt.Sprintf("cost gap std %s >= %s", m.CostGapStd, costGapStdCeiling))
			}
			fmt.Fprintf(&b, "- **%s/%s**: %s\n", m.Scenario, m.Fuel, strings.Join(reasons, ", "))
		}
	}

	return b.String()
}
