package services

import (
	"math"
	"strings"
	"unicode"

	"docanalyzer-backend/models"
)

// Keyword vocabularies for document classification. Phrases are matched
// against lowercased text, so every entry must be lowercase.
var documentTypeVocabulary = []struct {
	label    string
	keywords []string
}{
	{"financial_report", []string{
		"balance sheet", "income statement", "cash flow statement",
		"financial statements", "audited", "fiscal year", "net income",
	}},
	{"annual_report", []string{
		"annual report", "letter to shareholders", "year in review",
		"chairman's statement", "corporate governance",
	}},
	{"audit_report", []string{
		"audit opinion", "auditor's report", "internal controls",
		"audit findings", "material misstatement",
	}},
	{"legal_document", []string{
		"hereinafter", "whereas", "jurisdiction", "indemnify",
		"binding agreement", "terms and conditions",
	}},
	{"sales_report", []string{
		"sales report", "units sold", "sales target", "quarterly sales",
		"sales pipeline", "conversion rate",
	}},
}

var themeVocabulary = []struct {
	label    string
	keywords []string
}{
	{"Financial Performance", []string{
		"revenue", "income", "profit", "earnings", "margin", "financial",
	}},
	{"Risk Management", []string{
		"risk", "exposure", "mitigation", "hedging", "contingency",
	}},
	{"Business Growth", []string{
		"growth", "expansion", "market share", "acquisition", "new markets",
	}},
	{"Compliance & Regulation", []string{
		"compliance", "regulation", "regulatory", "legal requirement", "statutory",
	}},
	{"Operations", []string{
		"operations", "supply chain", "production", "logistics", "manufacturing",
	}},
	{"Strategic Planning", []string{
		"strategy", "strategic", "roadmap", "long-term", "objectives",
	}},
}

const (
	typeScoreThreshold  = 0.5
	themeScoreThreshold = 0.2
)

var typePurposes = map[string]string{
	"financial_report": "Report financial position and performance for a period",
	"annual_report":    "Summarize the year's business results for stakeholders",
	"audit_report":     "Present audit findings and the auditor's opinion",
	"legal_document":   "Define legally binding terms between parties",
	"sales_report":     "Track sales activity and performance against targets",
}

// Profiler classifies extracted text into a document type and a set of
// themes by keyword scoring. Deterministic: same text, same profile.
type Profiler struct{}

func NewProfiler() *Profiler {
	return &Profiler{}
}

// Profile scores the text against both vocabularies. Occurrence counts are
// normalized by ln(len(text)+e) so long documents do not win on raw volume.
func (p *Profiler) Profile(text string) *models.DocumentProfile {
	lower := strings.ToLower(text)
	norm := math.Log(float64(len(lower)) + math.E)

	profile := &models.DocumentProfile{
		DocumentType: "unknown",
		Themes:       []string{},
	}

	bestScore := 0.0
	for _, entry := range documentTypeVocabulary {
		score := vocabularyScore(lower, entry.keywords, norm)
		if score >= typeScoreThreshold && score > bestScore {
			bestScore = score
			profile.DocumentType = entry.label
		}
	}
	if profile.DocumentType != "unknown" {
		profile.Confidence = math.Min(bestScore, 1.0)
		profile.Purpose = typePurposes[profile.DocumentType]
	}

	for _, entry := range themeVocabulary {
		if vocabularyScore(lower, entry.keywords, norm) >= themeScoreThreshold {
			profile.Themes = append(profile.Themes, entry.label)
		}
	}

	profile.KeySections = detectKeySections(text)
	profile.Scope = describeScope(text)
	profile.Summary = summarize(text)
	return profile
}

func vocabularyScore(lowerText string, keywords []string, norm float64) float64 {
	occurrences := 0
	for _, kw := range keywords {
		occurrences += strings.Count(lowerText, kw)
	}
	if occurrences == 0 {
		return 0
	}
	return float64(occurrences) / norm
}

// detectKeySections collects heading-like lines: short lines that are all
// caps, end with a colon, or are numbered section titles.
func detectKeySections(text string) []string {
	var sections []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 80 {
			continue
		}
		if looksLikeHeading(line) {
			sections = append(sections, line)
		}
		if len(sections) == 8 {
			break
		}
	}
	return sections
}

func looksLikeHeading(line string) bool {
	if strings.HasSuffix(line, ":") && len(strings.Fields(line)) <= 8 {
		return true
	}

	letters, uppers := 0, 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters >= 4 && uppers == letters {
		return true
	}

	// Numbered headings like "2. Liquidity" or "3.1 Reserves"
	fields := strings.Fields(line)
	if len(fields) >= 2 && len(fields) <= 6 {
		first := strings.TrimSuffix(fields[0], ".")
		digits := true
		for _, r := range first {
			if !unicode.IsDigit(r) && r != '.' {
				digits = false
				break
			}
		}
		if digits && first != "" {
			return true
		}
	}
	return false
}

func describeScope(text string) string {
	words := len(strings.Fields(text))
	switch {
	case words < 500:
		return "brief document"
	case words < 5000:
		return "standard document"
	default:
		return "extensive document"
	}
}

// summarize returns the first two sentences, capped at 300 characters.
func summarize(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return ""
	}

	sentences := 0
	end := len(collapsed)
	for i, r := range collapsed {
		if r == '.' || r == '!' || r == '?' {
			sentences++
			if sentences == 2 {
				end = i + 1
				break
			}
		}
	}
	summary := collapsed[:end]
	if len(summary) > 300 {
		summary = summary[:300]
	}
	return strings.TrimSpace(summary)
}
