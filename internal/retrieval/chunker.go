// Package retrieval provides semantic recall over past conversations and
// notes. Text is chunked, embedded, and stored in a SQLite-backed vector
// index; when no embedding backend or vector extension is available the
// index degrades to keyword search.
package retrieval

import "strings"

const (
	chunkSize    = 1200
	chunkOverlap = 200
	chunkMinLen  = 50
)

// ChunkText splits text into overlapping chunks of at most chunkSize runes
// with chunkOverlap runes of overlap. Windows move by rune so multibyte
// text never splits mid-character. Chunks shorter than chunkMinLen after
// trimming are dropped; they carry too little signal to embed.
func ChunkText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		if len(runes) < chunkMinLen {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	step := chunkSize - chunkOverlap
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(chunk)) >= chunkMinLen {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
