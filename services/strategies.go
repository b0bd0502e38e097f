package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// StructuredStrategy targets documents with tabular layout: spreadsheets are
// read sheet by sheet with excelize, PDFs go through pdftotext with layout
// preservation so table columns stay aligned.
type StructuredStrategy struct{}

func (s *StructuredStrategy) Name() string { return "structured" }

func (s *StructuredStrategy) Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error) {
	if hasExtension(filename, ".xlsx", ".xlsm", ".xltx") {
		return s.extractSpreadsheet(content)
	}
	return s.extractWithPoppler(ctx, content)
}

func (s *StructuredStrategy) extractSpreadsheet(content []byte) (*ExtractionResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		fmt.Fprintf(&sb, "=== %s ===\n", sheet)
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no cell data in spreadsheet")
	}
	return &ExtractionResult{Text: text, Pages: len(sheets)}, nil
}

func (s *StructuredStrategy) extractWithPoppler(ctx context.Context, content []byte) (*ExtractionResult, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available")
	}

	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}

	text := stdout.String()
	if len(text) == 0 {
		return nil, fmt.Errorf("no text extracted by pdftotext")
	}

	// pdftotext separates pages with form feeds
	pages := strings.Count(text, "\f") + 1
	return &ExtractionResult{Text: text, Pages: pages}, nil
}

// GeneralStrategy extracts PDF text page by page with the pure-Go reader.
// Works without external binaries but struggles with complex layouts.
type GeneralStrategy struct{}

func (g *GeneralStrategy) Name() string { return "general" }

func (g *GeneralStrategy) Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	extractedText := textBuilder.String()
	if len(extractedText) == 0 {
		return nil, fmt.Errorf("no text extracted from PDF")
	}

	return &ExtractionResult{Text: extractedText, Pages: pages}, nil
}

// PlaintextStrategy accepts the payload verbatim when it is valid UTF-8 and
// mostly printable, covering .txt, .md, .csv and similar uploads.
type PlaintextStrategy struct{}

func (p *PlaintextStrategy) Name() string { return "plaintext" }

func (p *PlaintextStrategy) Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}

	text := string(content)
	printable := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("empty content")
	}
	if float64(printable)/float64(total) < 0.9 {
		return nil, fmt.Errorf("content looks binary: %d/%d printable", printable, total)
	}

	return &ExtractionResult{Text: text, Pages: 1}, nil
}

// OCRStrategy sends the file to the external OCR service. Last in the chain
// since it is the slowest and needs the service to be up.
type OCRStrategy struct {
	client *OCRClient
}

func NewOCRStrategy(client *OCRClient) *OCRStrategy {
	return &OCRStrategy{client: client}
}

func (o *OCRStrategy) Name() string { return "ocr" }

func (o *OCRStrategy) Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error) {
	if o.client == nil {
		return nil, fmt.Errorf("ocr service disabled")
	}
	resp, err := o.client.ExtractText(ctx, content, filename)
	if err != nil {
		return nil, err
	}
	return &ExtractionResult{Text: resp.Text, Pages: resp.Pages}, nil
}
