package garak

import "testing"

func TestParseAttemptsPagination(t *testing.T) {
	lines := []string{initLine}
	for i := 0; i < 45; i++ {
		lines = append(lines, attemptLine(uuidN("u", i), "dan.A", 2, map[string][]float64{"d": {0.1}}))
	}
	content := buildReport(lines...)

	page := ParseAttempts(content, "", 3, 20, FilterAll)
	if page.TotalCount != 45 {
		t.Fatalf("expected 45 total, got %d", page.TotalCount)
	}
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", page.TotalPages)
	}
	if len(page.Attempts) != 5 {
		t.Fatalf("expected 5 attempts on page 3, got %d", len(page.Attempts))
	}
	if page.HasNextPage {
		t.Fatal("expected no next page")
	}
	if !page.HasPrevPage {
		t.Fatal("expected prev page")
	}
	if page.CurrentPage != 3 {
		t.Fatalf("expected current page 3, got %d", page.CurrentPage)
	}

	beyond := ParseAttempts(content, "", 9, 20, FilterAll)
	if len(beyond.Attempts) != 0 {
		t.Fatalf("expected empty page beyond range, got %d", len(beyond.Attempts))
	}
	if beyond.HasNextPage {
		t.Fatal("expected no next page beyond range")
	}
}

func TestParseAttemptsVulnerabilityFilter(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.9}}),
		attemptLine("u2", "dan.A", 2, map[string][]float64{"d": {0.5}}),
		attemptLine("u3", "dan.A", 2, map[string][]float64{"d": {0.2}}),
	)

	vulnerable := ParseAttempts(content, "", 1, 10, FilterVulnerable)
	if vulnerable.TotalCount != 1 || vulnerable.Attempts[0].UUID != "u1" {
		t.Fatalf("expected only u1 vulnerable, got %+v", vulnerable.Attempts)
	}

	safe := ParseAttempts(content, "", 1, 10, FilterSafe)
	if safe.TotalCount != 2 {
		t.Fatalf("expected 2 safe attempts (0.5 is not vulnerable), got %d", safe.TotalCount)
	}

	all := ParseAttempts(content, "", 1, 10, FilterAll)
	if all.TotalCount != 3 {
		t.Fatalf("expected 3 attempts, got %d", all.TotalCount)
	}
}

func TestParseAttemptsCategoryFilter(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 2, nil),
		attemptLine("u2", "encoding.B", 2, nil),
		attemptLine("u3", "dan.C", 2, nil),
	)
	page := ParseAttempts(content, "dan", 1, 10, FilterAll)
	if page.TotalCount != 2 {
		t.Fatalf("expected 2 dan attempts, got %d", page.TotalCount)
	}
	for _, attempt := range page.Attempts {
		if attempt.Category() != "dan" {
			t.Fatalf("unexpected category %q", attempt.Category())
		}
	}
}

func TestParseAttemptsDedupKeepsFirstAppearanceOrder(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.1}}),
		attemptLine("u2", "dan.A", 2, map[string][]float64{"d": {0.2}}),
		attemptLine("u1", "dan.A", 2, map[string][]float64{"d": {0.8}}),
	)
	page := ParseAttempts(content, "", 1, 10, FilterAll)
	if page.TotalCount != 2 {
		t.Fatalf("expected dedup to 2 attempts, got %d", page.TotalCount)
	}
	if page.Attempts[0].UUID != "u1" || page.Attempts[1].UUID != "u2" {
		t.Fatalf("expected first-appearance order u1,u2, got %s,%s", page.Attempts[0].UUID, page.Attempts[1].UUID)
	}
	// last write wins for the value itself
	if page.Attempts[0].DetectorResults["d"][0] != 0.8 {
		t.Fatalf("expected last duplicate to win, got %g", page.Attempts[0].DetectorResults["d"][0])
	}
}

func TestParseAttemptsIgnoresUnevaluatedStages(t *testing.T) {
	content := buildReport(
		initLine,
		attemptLine("u1", "dan.A", 0, nil),
		attemptLine("u1", "dan.A", 1, nil),
		attemptLine("u2", "dan.A", 1, nil),
	)
	page := ParseAttempts(content, "", 1, 10, FilterAll)
	if page.TotalCount != 0 {
		t.Fatalf("expected no evaluated attempts, got %d", page.TotalCount)
	}
	if page.TotalPages != 0 {
		t.Fatalf("expected 0 pages, got %d", page.TotalPages)
	}
}
