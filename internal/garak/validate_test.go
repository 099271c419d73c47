package garak

import (
	"strconv"
	"strings"
	"testing"
)

const initLine = `{"entry_type":"init","run":"run-123","start_time":"2025-03-01T10:00:00Z","garak_version":"0.9.0"}`

func attemptLine(uuid, probe string, status int, scores map[string][]float64) string {
	var sb strings.Builder
	sb.WriteString(`{"entry_type":"attempt","uuid":"` + uuid + `","seq":0,"status":`)
	switch status {
	case 0:
		sb.WriteString("0")
	case 1:
		sb.WriteString("1")
	default:
		sb.WriteString("2")
	}
	sb.WriteString(`,"probe_classname":"` + probe + `","outputs":["a","b"],"detector_results":{`)
	first := true
	for name, values := range scores {
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(`"` + name + `":[`)
		for i, v := range values {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		sb.WriteString("]")
	}
	sb.WriteString("}}")
	return sb.String()
}

func TestValidateReportAcceptsMinimalReport(t *testing.T) {
	content := initLine + "\n" + attemptLine("u1", "dan.DanInTheWild", 2, map[string][]float64{"mitigation": {0.1, 0.9}}) + "\n"
	result := ValidateReport(content)
	if !result.IsValid {
		t.Fatalf("expected valid report, got error %q", result.Error)
	}
	if result.Metadata == nil {
		t.Fatal("expected metadata")
	}
	if result.Metadata.RunID != "run-123" {
		t.Fatalf("expected run id run-123, got %q", result.Metadata.RunID)
	}
	if result.Metadata.GarakVersion != "0.9.0" {
		t.Fatalf("expected garak version 0.9.0, got %q", result.Metadata.GarakVersion)
	}
}

func TestValidateReportEmptyContent(t *testing.T) {
	for _, content := range []string{"", "   \n\n  "} {
		result := ValidateReport(content)
		if result.IsValid {
			t.Fatalf("expected invalid for %q", content)
		}
		if result.Error != "File is empty" {
			t.Fatalf("expected empty-file error, got %q", result.Error)
		}
	}
}

func TestValidateReportDefaultsMissingInitFields(t *testing.T) {
	content := `{"entry_type":"init"}` + "\n" + attemptLine("u1", "dan.X", 2, nil)
	result := ValidateReport(content)
	if !result.IsValid {
		t.Fatalf("expected valid, got %q", result.Error)
	}
	if result.Metadata.RunID != "" || result.Metadata.StartTime != "" || result.Metadata.GarakVersion != "" {
		t.Fatalf("expected empty defaults, got %+v", result.Metadata)
	}
}

func TestValidateReportRejectsMissingAttemptFields(t *testing.T) {
	content := initLine + "\n" + `{"entry_type":"attempt","uuid":"u1","probe_classname":"dan.X"}`
	result := ValidateReport(content)
	if result.IsValid {
		t.Fatal("expected invalid report")
	}
	if !strings.Contains(result.Error, "detector_results") {
		t.Fatalf("expected error naming detector_results, got %q", result.Error)
	}

	content = initLine + "\n" + `{"entry_type":"attempt","detector_results":{}}`
	result = ValidateReport(content)
	if result.IsValid {
		t.Fatal("expected invalid report")
	}
	if !strings.Contains(result.Error, "uuid") || !strings.Contains(result.Error, "probe_classname") {
		t.Fatalf("expected error naming uuid and probe_classname, got %q", result.Error)
	}
}

func TestValidateReportRequiresAttempts(t *testing.T) {
	result := ValidateReport(initLine + "\n")
	if result.IsValid {
		t.Fatal("expected invalid report")
	}
	if result.Error != "no attempt entries found" {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestValidateReportRequiresInit(t *testing.T) {
	result := ValidateReport(attemptLine("u1", "dan.X", 2, nil) + "\n")
	if result.IsValid {
		t.Fatal("expected invalid report")
	}
	if result.Error != "no init entry found" {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestValidateReportRejectsMalformedJSONInWindow(t *testing.T) {
	content := initLine + "\n{not json\n" + attemptLine("u1", "dan.X", 2, nil)
	result := ValidateReport(content)
	if result.IsValid {
		t.Fatal("expected invalid report")
	}
	if !strings.Contains(result.Error, "line 2") {
		t.Fatalf("expected error naming line 2, got %q", result.Error)
	}
}

func TestValidateReportRejectsMissingEntryType(t *testing.T) {
	content := initLine + "\n" + `{"uuid":"u1"}`
	result := ValidateReport(content)
	if result.IsValid {
		t.Fatal("expected invalid report")
	}
	if !strings.Contains(result.Error, "entry_type") {
		t.Fatalf("expected entry_type error, got %q", result.Error)
	}
}

func TestValidateReportScanWindowIsBounded(t *testing.T) {
	lines := []string{initLine}
	for i := 0; i < 9; i++ {
		lines = append(lines, attemptLine("u1", "dan.X", 2, nil))
	}
	// Line 11 never gets scanned, so corruption there is not caught at
	// upload time.
	lines = append(lines, "{definitely not json")
	result := ValidateReport(strings.Join(lines, "\n"))
	if !result.IsValid {
		t.Fatalf("expected valid report despite corruption past the window, got %q", result.Error)
	}
}

func TestValidateReportAcceptsDigestEntries(t *testing.T) {
	content := initLine + "\n" +
		`{"entry_type":"digest","eval":{"dan":{"_summary":{"group_link":"https://example.test/dan"}}}}` + "\n" +
		attemptLine("u1", "dan.X", 2, nil)
	result := ValidateReport(content)
	if !result.IsValid {
		t.Fatalf("expected valid report, got %q", result.Error)
	}
}
