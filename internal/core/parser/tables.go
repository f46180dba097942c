package parser

import (
	"regexp"
	"strings"
)

// Lines whose cells are separated by a tab or a run of two or more spaces
// are treated as table rows. A table is a run of at least minTableRows
// consecutive such lines.
var cellSeparator = regexp.MustCompile(`\t+| {2,}`)

const minTableRows = 2

// detectTables scans page text for blocks of aligned rows and returns each
// block as a slice of rows, one cell slice per row.
func detectTables(text string) [][][]string {
	var tables [][][]string
	var current [][]string

	flush := func() {
		if len(current) >= minTableRows {
			tables = append(tables, current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		cells := splitRow(line)
		if len(cells) >= 2 {
			current = append(current, cells)
			continue
		}
		flush()
	}
	flush()

	return tables
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	parts := cellSeparator.Split(line, -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// FlattenRows joins table cells into a single searchable string, one row
// per line with cells separated by a pipe.
func FlattenRows(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}

// RenderMarkdown renders rows as a GitHub-style markdown table. The first
// row is taken as the header; ragged rows are padded to the header width.
func RenderMarkdown(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := len(rows[0])
	for _, row := range rows[1:] {
		if len(row) > width {
			width = len(row)
		}
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}
