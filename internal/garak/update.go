package garak

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UpdateScore rewrites a single detector score inside the raw report text.
// The target is the last evaluated (status 2) attempt line carrying
// attemptUUID, matching the dedup convention of the parsers. Every other
// line, including blank ones, is left byte-identical, and the trailing
// newline sequence of the original content is preserved.
//
// When the detector does not exist on the target attempt, an all-zero score
// array sized to the attempt's outputs (or 1 when outputs are missing) is
// synthesized first. A responseIndex outside the score array is an error;
// callers are expected to validate the index against the attempt's outputs
// before invoking.
func UpdateScore(content, attemptUUID string, responseIndex int, detectorName string, newScore float64) (updated string, found bool, err error) {
	if responseIndex < 0 {
		return content, false, fmt.Errorf("response index must not be negative, got %d", responseIndex)
	}

	body := strings.TrimRight(content, "\n")
	trailing := content[len(body):]
	lines := strings.Split(body, "\n")

	target := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var record struct {
			EntryType string `json:"entry_type"`
			UUID      string `json:"uuid"`
			Status    int    `json:"status"`
		}
		if json.Unmarshal([]byte(line), &record) != nil {
			continue
		}
		if record.EntryType == "attempt" && record.UUID == attemptUUID && record.Status == StatusEvaluated {
			target = i
		}
	}
	if target < 0 {
		return content, false, nil
	}

	rewritten, err := rewriteAttemptLine(lines[target], responseIndex, detectorName, newScore)
	if err != nil {
		return content, false, err
	}
	lines[target] = rewritten
	return strings.Join(lines, "\n") + trailing, true, nil
}

func rewriteAttemptLine(line string, responseIndex int, detectorName string, newScore float64) (string, error) {
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return "", fmt.Errorf("decode attempt line: %w", err)
	}

	results, _ := record["detector_results"].(map[string]any)
	if results == nil {
		results = map[string]any{}
		record["detector_results"] = results
	}

	if raw, exists := results[detectorName]; exists {
		scores, ok := raw.([]any)
		if !ok {
			return "", fmt.Errorf("detector %q has non-array scores", detectorName)
		}
		if responseIndex >= len(scores) {
			return "", fmt.Errorf("response index %d out of range for detector %q with %d scores", responseIndex, detectorName, len(scores))
		}
		copied := make([]any, len(scores))
		copy(copied, scores)
		copied[responseIndex] = newScore
		results[detectorName] = copied
	} else {
		size := 1
		if outputs, ok := record["outputs"].([]any); ok && len(outputs) > 0 {
			size = len(outputs)
		}
		if responseIndex >= size {
			return "", fmt.Errorf("response index %d out of range for attempt with %d outputs", responseIndex, size)
		}
		scores := make([]any, size)
		for i := range scores {
			scores[i] = float64(0)
		}
		scores[responseIndex] = newScore
		results[detectorName] = scores
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode attempt line: %w", err)
	}
	return string(data), nil
}
