package services

import (
	"strings"
	"testing"
)

func TestProfilerClassifiesFinancialReport(t *testing.T) {
	profiler := NewProfiler()

	text := strings.Repeat(
		"The balance sheet shows strong liquidity. The income statement reports growing revenue. "+
			"These audited financial statements cover the fiscal year. Net income rose against prior profit levels. ",
		5)

	profile := profiler.Profile(text)
	if profile.DocumentType != "financial_report" {
		t.Errorf("expected financial_report, got %q", profile.DocumentType)
	}
	if profile.Confidence <= 0 {
		t.Errorf("expected positive confidence, got %f", profile.Confidence)
	}

	found := false
	for _, theme := range profile.Themes {
		if theme == "Financial Performance" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Financial Performance theme, got %v", profile.Themes)
	}
	if profile.Purpose == "" {
		t.Error("expected a purpose for a classified document")
	}
}

func TestProfilerUnknownForNeutralText(t *testing.T) {
	profiler := NewProfiler()

	text := strings.Repeat("The weather was pleasant and the garden bloomed through spring. ", 20)
	profile := profiler.Profile(text)
	if profile.DocumentType != "unknown" {
		t.Errorf("expected unknown for neutral text, got %q", profile.DocumentType)
	}
	if profile.Confidence != 0 {
		t.Errorf("unknown documents carry no confidence, got %f", profile.Confidence)
	}
}

func TestProfilerIsDeterministic(t *testing.T) {
	profiler := NewProfiler()
	text := "The audited balance sheet and income statement show revenue growth and profit. " +
		strings.Repeat("Risk exposure requires mitigation across operations. ", 10)

	a := profiler.Profile(text)
	b := profiler.Profile(text)
	if a.DocumentType != b.DocumentType {
		t.Errorf("type differs between runs: %q vs %q", a.DocumentType, b.DocumentType)
	}
	if strings.Join(a.Themes, ",") != strings.Join(b.Themes, ",") {
		t.Errorf("themes differ between runs: %v vs %v", a.Themes, b.Themes)
	}
}

func TestProfilerKeySections(t *testing.T) {
	profiler := NewProfiler()

	text := "EXECUTIVE SUMMARY\nThe year went well overall for the business and its markets.\n" +
		"1. Revenue Overview\nRevenue grew steadily.\n" +
		"Outlook:\nNext year looks stable."

	profile := profiler.Profile(text)
	if len(profile.KeySections) < 3 {
		t.Errorf("expected at least 3 detected sections, got %v", profile.KeySections)
	}
}

func TestProfilerSummary(t *testing.T) {
	profiler := NewProfiler()

	profile := profiler.Profile("First sentence. Second sentence. Third sentence that should not appear.")
	if profile.Summary != "First sentence. Second sentence." {
		t.Errorf("unexpected summary %q", profile.Summary)
	}
}
