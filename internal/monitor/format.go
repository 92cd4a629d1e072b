package monitor

import (
	"fmt"
	"strings"
	"time"
)

const stampFormat = "2006-01-02 15:04:05 UTC"

// formatAlert renders a threshold-breach alert in Markdown.
func formatAlert(metric string, value, threshold float64, unit string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *Alert: %s Threshold Exceeded*\n\n", metric)
	fmt.Fprintf(&b, "*Current Value:* %.1f%s\n", value, unit)
	fmt.Fprintf(&b, "*Threshold:* %.1f%s\n", threshold, unit)
	fmt.Fprintf(&b, "*Exceeded By:* %.1f%s\n\n", value-threshold, unit)
	b.WriteString("🕒 " + now.UTC().Format(stampFormat))
	return b.String()
}

// formatReport renders the full system status report in Markdown.
func formatReport(m Metrics, now time.Time) string {
	var b strings.Builder
	b.WriteString("🖥️ *System Status*\n\n")
	fmt.Fprintf(&b, "*CPU Usage:* %.1f%%\n", m.CPUPercent)
	fmt.Fprintf(&b, "*Memory Usage:* %.1f%% (%.1fGB / %.1fGB)\n", m.MemoryPercent, m.MemoryUsedGB, m.MemoryTotalGB)
	fmt.Fprintf(&b, "*Disk Usage:* %.1f%% (%.1fGB / %.1fGB)\n", m.DiskPercent, m.DiskUsedGB, m.DiskTotalGB)
	fmt.Fprintf(&b, "*Load Average:* %.2f, %.2f, %.2f\n\n", m.Load1, m.Load5, m.Load15)
	b.WriteString("🕒 " + now.UTC().Format(stampFormat))
	return b.String()
}
