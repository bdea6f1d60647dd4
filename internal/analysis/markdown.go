package analysis

import (
	"fmt"
	"strings"
)

// Markdown renders a compact, human-readable version of the report.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	b.WriteString(fmt.Sprintf("Rows: %d\n", len(r.Data)))
	if r.Stats != nil {
		b.WriteString(fmt.Sprintf("Numeric columns: %d\n", r.Stats.Len()))
	}

	if r.Stats != nil && r.Stats.Len() > 0 {
		b.WriteString("\n[STATISTICS]\n")
		for _, e := range r.Stats.Entries() {
			d := e.Value
			b.WriteString(fmt.Sprintf("- %s: n=%d, mean %s, std %s, min %s, median %s, max %s\n",
				safeName(e.Key), d.Count, fmtStat(d.Mean), fmtStat(d.Std), fmtStat(d.Min), fmtStat(d.P50), fmtStat(d.Max)))
		}
	}
	if r.RegionHappiness != nil {
		b.WriteString("\n[REGIONS]\n")
		for _, e := range r.RegionHappiness.Entries() {
			std, _ := r.RegionHappinessStd.Get(e.Key)
			b.WriteString(fmt.Sprintf("- %s: mean %s (std %s)\n", safeVal(e.Key), fmtStat(e.Value), fmtStat(std)))
		}
	}
	if r.FactorCorrelations != nil {
		b.WriteString("\n[CORRELATIONS WITH SCORE]\n")
		for _, e := range r.FactorCorrelations.Entries() {
			b.WriteString(fmt.Sprintf("- %s: r=%s\n", safeName(e.Key), fmtCorr(e.Value)))
		}
	}
	if r.HappinessCategoryCounts != nil {
		b.WriteString("\n[CATEGORIES]\n")
		if r.Quartiles != nil {
			b.WriteString(fmt.Sprintf("Boundaries: P25=%.4g, P50=%.4g, P75=%.4g\n", r.Quartiles.P25, r.Quartiles.P50, r.Quartiles.P75))
		}
		for _, e := range r.HappinessCategoryCounts.Entries() {
			b.WriteString(fmt.Sprintf("- %s: %d\n", e.Key, e.Value))
		}
	}
	writeRanking(&b, "TOP", r.TopHappyCountries)
	writeRanking(&b, "BOTTOM", r.BottomHappyCountries)
	if r.FactorRankings != nil && r.FactorRankings.Len() > 0 {
		b.WriteString("\n[FACTOR LEADERS]\n")
		for _, e := range r.FactorRankings.Entries() {
			names := e.Value.Keys()
			for i := range names {
				names[i] = safeVal(names[i])
			}
			b.WriteString(fmt.Sprintf("- %s: %s\n", safeName(e.Key), strings.Join(names, ", ")))
		}
	}
	return b.String()
}

func writeRanking(b *strings.Builder, title string, m *OrderedMap[Stat]) {
	if m == nil || m.Len() == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n[%s %d]\n", title, m.Len()))
	for i, e := range m.Entries() {
		b.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, safeVal(e.Key), fmtStat(e.Value)))
	}
}

func fmtStat(s Stat) string {
	if !s.Defined() {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", float64(s))
}

func fmtCorr(s Stat) string {
	if !s.Defined() {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", float64(s))
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
