package garak

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

type categoryAccumulator struct {
	count      int
	vulnerable int
	scores     []float64
	statuses   []int
}

// ParseMetadata makes a single pass over every line of a report and derives
// per-category vulnerability statistics. Attempts are deduplicated by UUID,
// keeping only evaluated (status 2) entries; for duplicate UUIDs the last
// line wins. Malformed lines are skipped, not fatal.
func ParseMetadata(content string) *ReportMetadata {
	var (
		header   *ReportHeader
		digest   *DigestEntry
		order    []string
		attempts = map[string]Attempt{}
	)

	for i, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var head entryHeader
		if err := json.Unmarshal([]byte(line), &head); err != nil {
			slog.Warn("skipping malformed report line", "line", i+1, "error", err)
			continue
		}
		switch head.EntryType {
		case "init":
			if header != nil {
				continue
			}
			var init InitEntry
			if err := json.Unmarshal([]byte(line), &init); err != nil {
				slog.Warn("skipping malformed init entry", "line", i+1, "error", err)
				continue
			}
			header = &ReportHeader{
				RunID:        init.Run,
				StartTime:    init.StartTime,
				GarakVersion: init.GarakVersion,
			}
		case "digest":
			if digest != nil {
				continue
			}
			var entry DigestEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				slog.Warn("skipping malformed digest entry", "line", i+1, "error", err)
				continue
			}
			digest = &entry
		case "attempt":
			var attempt Attempt
			if err := json.Unmarshal([]byte(line), &attempt); err != nil {
				slog.Warn("skipping malformed attempt entry", "line", i+1, "error", err)
				continue
			}
			if attempt.Status != StatusEvaluated || attempt.UUID == "" {
				continue
			}
			if _, seen := attempts[attempt.UUID]; !seen {
				order = append(order, attempt.UUID)
			}
			attempts[attempt.UUID] = attempt
		}
	}

	meta := &ReportMetadata{
		TotalAttempts: len(attempts),
		Categories:    []CategoryStatistics{},
	}
	if header != nil {
		meta.RunID = header.RunID
		meta.StartTime = header.StartTime
		meta.GarakVersion = header.GarakVersion
	}

	accs := map[string]*categoryAccumulator{}
	var catOrder []string
	for _, uuid := range order {
		attempt := attempts[uuid]
		category := attempt.Category()
		acc, ok := accs[category]
		if !ok {
			acc = &categoryAccumulator{}
			accs[category] = acc
			catOrder = append(catOrder, category)
		}
		acc.count++
		acc.statuses = append(acc.statuses, attempt.Status)
		for _, scores := range attempt.DetectorResults {
			acc.scores = append(acc.scores, scores...)
		}
		if attempt.Vulnerable() {
			acc.vulnerable++
		}
	}

	for _, name := range catOrder {
		meta.Categories = append(meta.Categories, buildCategoryStats(name, accs[name], digest))
	}

	rates := make([]float64, len(meta.Categories))
	for i, category := range meta.Categories {
		rates[i] = category.VulnerabilityRate
	}
	if len(rates) > 0 {
		mean := stat.Mean(rates, nil)
		stddev := stat.PopStdDev(rates, nil)
		if stddev > 0 {
			for i := range meta.Categories {
				meta.Categories[i].ZScore = (meta.Categories[i].VulnerabilityRate - mean) / stddev
			}
		}
	}

	sort.SliceStable(meta.Categories, func(i, j int) bool {
		return meta.Categories[i].TotalAttempts > meta.Categories[j].TotalAttempts
	})
	return meta
}

func buildCategoryStats(name string, acc *categoryAccumulator, digest *DigestEntry) CategoryStatistics {
	stats := CategoryStatistics{
		Name:               name,
		DisplayName:        DisplayName(name),
		TotalAttempts:      acc.count,
		VulnerableAttempts: acc.vulnerable,
		SafeAttempts:       acc.count - acc.vulnerable,
		GroupLink:          digest.GroupLink(name),
	}
	if len(acc.scores) > 0 {
		stats.AverageScore = stat.Mean(acc.scores, nil)
		stats.MaxScore = acc.scores[0]
		stats.MinScore = acc.scores[0]
		for _, score := range acc.scores[1:] {
			if score > stats.MaxScore {
				stats.MaxScore = score
			}
			if score < stats.MinScore {
				stats.MinScore = score
			}
		}
	}
	if acc.count > 0 {
		completed := 0
		for _, status := range acc.statuses {
			if status == StatusStarted || status == StatusEvaluated {
				completed++
			}
		}
		stats.SuccessRate = float64(completed) / float64(acc.count) * 100
		stats.VulnerabilityRate = float64(acc.vulnerable) / float64(acc.count) * 100
	}
	stats.DefconGrade = DefconGrade(stats.VulnerabilityRate)
	return stats
}
