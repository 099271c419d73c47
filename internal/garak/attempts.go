package garak

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// ParseAttempts makes a single pass over a report and returns one page of
// evaluated attempts, optionally restricted to a category and filtered by
// vulnerability. Deduplication matches ParseMetadata: UUID-keyed, last line
// wins, ordered by first appearance in the file.
func ParseAttempts(content, category string, page, limit int, filter Filter) *AttemptsPage {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var (
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
		if head.EntryType != "attempt" {
			continue
		}
		var attempt Attempt
		if err := json.Unmarshal([]byte(line), &attempt); err != nil {
			slog.Warn("skipping malformed attempt entry", "line", i+1, "error", err)
			continue
		}
		if attempt.Status != StatusEvaluated || attempt.UUID == "" {
			continue
		}
		if category != "" && attempt.Category() != category {
			continue
		}
		if _, seen := attempts[attempt.UUID]; !seen {
			order = append(order, attempt.UUID)
		}
		attempts[attempt.UUID] = attempt
	}

	filtered := make([]Attempt, 0, len(order))
	for _, uuid := range order {
		attempt := attempts[uuid]
		switch filter {
		case FilterVulnerable:
			if !attempt.Vulnerable() {
				continue
			}
		case FilterSafe:
			if attempt.Vulnerable() {
				continue
			}
		}
		filtered = append(filtered, attempt)
	}

	totalCount := len(filtered)
	totalPages := (totalCount + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start > totalCount {
		start = totalCount
	}
	if end > totalCount {
		end = totalCount
	}

	return &AttemptsPage{
		Attempts:    filtered[start:end],
		TotalCount:  totalCount,
		TotalPages:  totalPages,
		CurrentPage: page,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}
