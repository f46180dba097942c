// Package parser extracts per-page text and tabular regions from uploaded
// documents. PDFs are read page by page so downstream chunks keep their page
// provenance; every other content type goes through docconv and is treated as
// a single page.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
)

var _ core.DocumentParser = (*DocumentParser)(nil)

type DocumentParser struct {
	useReadability bool
}

func NewDocumentParser(useReadability bool) *DocumentParser {
	return &DocumentParser{useReadability: useReadability}
}

// Parse returns the plain text of each page. Pages that fail to decode are
// skipped rather than failing the whole document.
func (p *DocumentParser) Parse(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	if isPDF(contentType, data) {
		return parsePDF(ctx, data)
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, p.useReadability)
	if err != nil {
		return nil, fmt.Errorf("convert %q: %w", contentType, err)
	}
	body := strings.TrimSpace(res.Body)
	if body == "" {
		return nil, nil
	}
	return []core.Page{{Number: 1, Text: body}}, nil
}

// ExtractTables runs the column-alignment heuristic over each page and
// returns every detected table with its page number and per-page index.
func (p *DocumentParser) ExtractTables(ctx context.Context, data []byte, contentType string) ([]core.Table, error) {
	pages, err := p.Parse(ctx, data, contentType)
	if err != nil {
		return nil, err
	}

	var tables []core.Table
	for _, page := range pages {
		for i, rows := range detectTables(page.Text) {
			tables = append(tables, core.Table{
				Page:       page.Number,
				TableIndex: i,
				Rows:       rows,
			})
		}
	}
	return tables, nil
}

func isPDF(contentType string, data []byte) bool {
	if strings.Contains(contentType, "application/pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func parsePDF(ctx context.Context, data []byte) ([]core.Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := r.NumPage()
	pages := make([]core.Page, 0, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pg := r.Page(n)
		if pg.V.IsNull() {
			continue
		}
		text, err := pg.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, core.Page{Number: n, Text: text})
	}
	return pages, nil
}
