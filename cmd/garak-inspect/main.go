package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"garak-board/internal/garak"
)

func main() {
	format := flag.String("format", "text", "Output format: text|json")
	validateOnly := flag.Bool("validate", false, "Validate the report and exit")
	category := flag.String("category", "", "List attempts for this probe category instead of statistics")
	filter := flag.String("filter", "all", "Attempt filter: all|vulnerable|safe")
	page := flag.Int("page", 1, "Attempt page number")
	limit := flag.Int("limit", 20, "Attempts per page")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: garak-inspect [flags] <report.jsonl>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read report: %v\n", err)
		os.Exit(1)
	}
	content := string(data)

	result := garak.ValidateReport(content)
	if !result.IsValid {
		fmt.Fprintf(os.Stderr, "invalid report: %s\n", result.Error)
		os.Exit(1)
	}
	if *validateOnly {
		fmt.Println("report is valid")
		if result.Metadata != nil {
			fmt.Printf("  run:           %s\n", result.Metadata.RunID)
			fmt.Printf("  started:       %s\n", result.Metadata.StartTime)
			fmt.Printf("  garak version: %s\n", result.Metadata.GarakVersion)
		}
		return
	}

	if strings.TrimSpace(*category) != "" {
		parsedFilter, ok := garak.ParseFilter(*filter)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown filter %q (expected all, vulnerable or safe)\n", *filter)
			os.Exit(2)
		}
		pageResult := garak.ParseAttempts(content, *category, *page, *limit, parsedFilter)
		printAttempts(pageResult, *format)
		return
	}

	meta := garak.ParseMetadata(content)
	printMetadata(meta, *format)
}

func printMetadata(meta *garak.ReportMetadata, format string) {
	if format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(meta)
		return
	}
	fmt.Printf("run %s (garak %s, started %s)\n", meta.RunID, meta.GarakVersion, meta.StartTime)
	fmt.Printf("%d unique evaluated attempts across %d categories\n\n", meta.TotalAttempts, len(meta.Categories))
	for _, cat := range meta.Categories {
		fmt.Printf("%-28s attempts=%-5d vulnerable=%-5d rate=%6.2f%% defcon=%d z=%+.2f\n",
			cat.DisplayName, cat.TotalAttempts, cat.VulnerableAttempts, cat.VulnerabilityRate, cat.DefconGrade, cat.ZScore)
		if cat.GroupLink != "" {
			fmt.Printf("%-28s docs: %s\n", "", cat.GroupLink)
		}
	}
}

func printAttempts(page *garak.AttemptsPage, format string) {
	if format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(page)
		return
	}
	fmt.Printf("page %d/%d (%d attempts total)\n\n", page.CurrentPage, page.TotalPages, page.TotalCount)
	for _, attempt := range page.Attempts {
		marker := "safe"
		if attempt.Vulnerable() {
			marker = "VULNERABLE"
		}
		fmt.Printf("%s  %-10s  %s\n", attempt.UUID, marker, attempt.ProbeClassname)
		for detector, scores := range attempt.DetectorResults {
			fmt.Printf("    %s: %v\n", detector, scores)
		}
	}
}
