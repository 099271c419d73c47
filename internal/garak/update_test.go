package garak

import (
	"strings"
	"testing"
)

func TestUpdateScoreRoundTrip(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 2, map[string][]float64{"mitigation": {0, 0.2}}),
		attemptLine("u2", "dan.A", 2, map[string][]float64{"mitigation": {0.3, 0.4}}),
	)
	updated, found, err := UpdateScore(content, "u1", 1, "mitigation", 1)
	if err != nil {
		t.Fatalf("UpdateScore error: %v", err)
	}
	if !found {
		t.Fatal("expected attempt to be found")
	}

	page := ParseAttempts(updated, "", 1, 10, FilterAll)
	var target *Attempt
	for i := range page.Attempts {
		if page.Attempts[i].UUID == "u1" {
			target = &page.Attempts[i]
		}
	}
	if target == nil {
		t.Fatal("updated attempt missing from parse")
	}
	if got := target.DetectorResults["mitigation"][1]; got != 1 {
		t.Fatalf("expected updated score 1, got %g", got)
	}
	if got := target.DetectorResults["mitigation"][0]; got != 0 {
		t.Fatalf("expected untouched score 0, got %g", got)
	}

	// every line except the target stays byte-identical
	before := strings.Split(content, "\n")
	after := strings.Split(updated, "\n")
	if len(before) != len(after) {
		t.Fatalf("line count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if i == 1 {
			continue
		}
		if before[i] != after[i] {
			t.Fatalf("line %d changed: %q -> %q", i+1, before[i], after[i])
		}
	}
}

func TestUpdateScorePreservesTrailingNewlines(t *testing.T) {
	base := initLine + "\n" + attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.1, 0.2}})
	for _, trailing := range []string{"", "\n", "\n\n"} {
		updated, found, err := UpdateScore(base+trailing, "u1", 0, "d", 1)
		if err != nil || !found {
			t.Fatalf("UpdateScore(%q trailing) found=%v err=%v", trailing, found, err)
		}
		if !strings.HasSuffix(updated, trailing) {
			t.Fatalf("trailing sequence %q not preserved", trailing)
		}
		if trailing == "" && strings.HasSuffix(updated, "\n") {
			t.Fatal("unexpected trailing newline added")
		}
	}
}

func TestUpdateScoreNotFound(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 1, nil), // not evaluated
	)
	updated, found, err := UpdateScore(content, "u1", 0, "d", 1)
	if err != nil {
		t.Fatalf("UpdateScore error: %v", err)
	}
	if found {
		t.Fatal("expected found=false for unevaluated attempt")
	}
	if updated != content {
		t.Fatal("content must be unchanged when target is missing")
	}

	_, found, _ = UpdateScore(content, "missing-uuid", 0, "d", 1)
	if found {
		t.Fatal("expected found=false for unknown uuid")
	}
}

func TestUpdateScoreTargetsLastEvaluatedLine(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.1, 0.1}}),
		attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.2, 0.2}}),
	)
	updated, found, err := UpdateScore(content, "u1", 0, "d", 1)
	if err != nil || !found {
		t.Fatalf("UpdateScore found=%v err=%v", found, err)
	}
	lines := strings.Split(updated, "\n")
	if lines[1] != strings.Split(content, "\n")[1] {
		t.Fatal("earlier duplicate line must stay untouched")
	}
	if !strings.Contains(lines[2], `"d":[1,0.2]`) {
		t.Fatalf("expected last duplicate rewritten, got %q", lines[2])
	}
}

func TestUpdateScoreSynthesizesMissingDetector(t *testing.T) {
	// attemptLine always emits two outputs
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 2, nil),
	)
	updated, found, err := UpdateScore(content, "u1", 1, "human_review", 1)
	if err != nil || !found {
		t.Fatalf("UpdateScore found=%v err=%v", found, err)
	}
	page := ParseAttempts(updated, "", 1, 10, FilterAll)
	scores := page.Attempts[0].DetectorResults["human_review"]
	if len(scores) != 2 {
		t.Fatalf("expected synthesized array sized to outputs, got %d", len(scores))
	}
	if scores[0] != 0 || scores[1] != 1 {
		t.Fatalf("expected [0 1], got %v", scores)
	}
}

func TestUpdateScoreOutOfRangeIndex(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.1, 0.2}}),
	)
	if _, _, err := UpdateScore(content, "u1", 2, "d", 1); err == nil {
		t.Fatal("expected error for out-of-range index on existing detector")
	}
	if _, _, err := UpdateScore(content, "u1", -1, "d", 1); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestUpdateScorePreservesBlankLines(t *testing.T) {
	content := initLine + "\n\n" + attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.5}}) + "\n\n" + "\n"
	updated, found, err := UpdateScore(content, "u1", 0, "d", 1)
	if err != nil || !found {
		t.Fatalf("UpdateScore found=%v err=%v", found, err)
	}
	lines := strings.Split(updated, "\n")
	if lines[1] != "" {
		t.Fatalf("blank line not preserved: %q", lines[1])
	}
	if !strings.HasSuffix(updated, "\n\n\n") {
		t.Fatal("trailing blank lines not preserved")
	}
}
