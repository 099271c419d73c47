package garak

import (
	"encoding/json"
	"fmt"
	"strings"
)

// validateScanWindow bounds how many non-blank lines ValidateReport inspects.
// Upload validation stays cheap for large files; malformed lines past the
// window surface later as skipped lines during parsing.
const validateScanWindow = 10

// ValidateReport checks that content is structurally a garak JSONL report:
// at least one init entry and one attempt entry within the scan window, with
// every scanned attempt carrying uuid, probe_classname and detector_results.
// Failures are reported in the result, never as an error.
func ValidateReport(content string) ValidationResult {
	if strings.TrimSpace(content) == "" {
		return ValidationResult{Error: "File is empty"}
	}

	var (
		header     *ReportHeader
		sawAttempt bool
		scanned    int
	)
	for i, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if scanned >= validateScanWindow {
			break
		}
		scanned++

		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return ValidationResult{Error: fmt.Sprintf("invalid JSON on line %d", i+1)}
		}
		entryType, ok := record["entry_type"].(string)
		if !ok || entryType == "" {
			return ValidationResult{Error: fmt.Sprintf("missing or invalid entry_type on line %d", i+1)}
		}
		switch entryType {
		case "init":
			if header == nil {
				header = &ReportHeader{
					RunID:        stringField(record, "run"),
					StartTime:    stringField(record, "start_time"),
					GarakVersion: stringField(record, "garak_version"),
				}
			}
		case "attempt":
			if missing := missingAttemptFields(record); len(missing) > 0 {
				return ValidationResult{
					Error: fmt.Sprintf("attempt entry on line %d missing required fields: %s", i+1, strings.Join(missing, ", ")),
				}
			}
			sawAttempt = true
		default:
			// digest and other entry types pass through unchecked
		}
	}

	if header == nil {
		return ValidationResult{Error: "no init entry found"}
	}
	if !sawAttempt {
		return ValidationResult{Error: "no attempt entries found"}
	}
	return ValidationResult{IsValid: true, Metadata: header}
}

func missingAttemptFields(record map[string]any) []string {
	var missing []string
	if stringField(record, "uuid") == "" {
		missing = append(missing, "uuid")
	}
	if stringField(record, "probe_classname") == "" {
		missing = append(missing, "probe_classname")
	}
	if _, ok := record["detector_results"].(map[string]any); !ok {
		missing = append(missing, "detector_results")
	}
	return missing
}

func stringField(record map[string]any, key string) string {
	value, _ := record[key].(string)
	return value
}
