// Package ingest turns parsed documents into embedded, indexed chunks.
// Producers split pages into overlapping chunks and append them to the
// durable log; the indexer drains the log in batches, embeds each batch
// and upserts it into the vector store.
package ingest

import "strings"

// Separators tried in order when a span exceeds the chunk size. Paragraph
// breaks are preferred, then lines, sentences and words, with a hard
// character cut as the last resort.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Split cuts text into chunks of at most chunkSize characters. Consecutive
// chunks share up to overlap trailing characters so sentences cut at a
// boundary stay retrievable from both sides. The input text is returned
// as-is when it already fits, and empty input yields no chunks.
func Split(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}
	return merge(breakDown(text, separators, chunkSize), chunkSize, overlap)
}

// breakDown splits text into pieces no longer than limit, using the first
// separator present and recursing with finer separators on oversized parts.
func breakDown(text string, seps []string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	sep := ""
	var finer []string
	for i, s := range seps {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			finer = seps[i+1:]
			break
		}
	}

	if sep == "" {
		var out []string
		for len(text) > limit {
			out = append(out, text[:limit])
			text = text[limit:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if len(part) <= limit {
			out = append(out, part)
			continue
		}
		out = append(out, breakDown(part, finer, limit)...)
	}
	return out
}

// merge greedily packs pieces into chunks of at most chunkSize characters.
// When a chunk closes, its trailing overlap characters seed the next chunk.
func merge(pieces []string, chunkSize, overlap int) []string {
	var chunks []string
	var b strings.Builder
	carried := 0

	for _, p := range pieces {
		if b.Len() > carried && b.Len()+len(p) > chunkSize {
			chunk := b.String()
			if trimmed := strings.TrimSpace(chunk); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			b.Reset()

			// Shrink the carried tail when the next piece is large so
			// the new chunk still fits within chunkSize.
			tail := overlap
			if room := chunkSize - len(p); room < tail {
				tail = room
			}
			if tail > 0 {
				keep := chunk
				if len(keep) > tail {
					keep = keep[len(keep)-tail:]
				}
				b.WriteString(keep)
			}
			carried = b.Len()
		}
		b.WriteString(p)
	}

	if trimmed := strings.TrimSpace(b.String()); trimmed != "" && b.Len() > carried {
		chunks = append(chunks, trimmed)
	}
	return chunks
}
