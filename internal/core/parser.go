package core

import "context"

// Page is one page of extracted document text. Pages with no extractable
// text are omitted by parsers, so page numbers may be sparse.
type Page struct {
	Number int
	Text   string
}

// Table is one table detected on a page. Rows hold the raw cell grid;
// TableIndex is the zero-based position of the table on its page.
type Table struct {
	Page       int
	TableIndex int
	Rows       [][]string
}

// DocumentParser extracts per-page text, and optionally tables, from a raw
// document. The contentType hint picks the parsing strategy.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, contentType string) ([]Page, error)
	ExtractTables(ctx context.Context, data []byte, contentType string) ([]Table, error)
}
