package rag

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	// DefaultMaxCharsPerDoc bounds each passage handed to the reply generator.
	DefaultMaxCharsPerDoc = 500

	ContextHeader = "retrieved medical context webmd dataset"
	ContextFooter = "end retrieved context"

	// ScoreNotAvailable is printed for documents without a relevance score.
	ScoreNotAvailable = "n/a"
	Ellipsis          = "..."
)

// FormatContext renders docs as a numbered context block framed by ContextHeader and
// ContextFooter. Each passage is cut to maxCharsPerDoc characters on a whitespace boundary.
// An empty docs slice yields just the header and footer.
func FormatContext(docs []Document, maxCharsPerDoc int) string {
	if maxCharsPerDoc <= 0 {
		maxCharsPerDoc = DefaultMaxCharsPerDoc
	}

	var sb strings.Builder
	sb.WriteString(ContextHeader)
	sb.WriteString("\n")
	for i, d := range docs {
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("] (score=")
		sb.WriteString(formatScore(d.Score))
		sb.WriteString(")")
		sb.WriteString(formatMetadata(d.Metadata))
		sb.WriteString("\n")
		sb.WriteString(Truncate(d.Content, maxCharsPerDoc))
		sb.WriteString("\n\n")
	}
	sb.WriteString(ContextFooter)
	sb.WriteString("\n")
	return sb.String()
}

// Truncate trims content and shortens it to at most limit runes, cutting at the last
// whitespace at or before the limit and appending Ellipsis. A first word longer than limit
// is cut at the limit.
func Truncate(content string, limit int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if limit <= 0 || len(runes) <= limit {
		return content
	}

	cut := limit
	if !unicode.IsSpace(runes[limit]) {
		for cut > 0 && !unicode.IsSpace(runes[cut-1]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
	}

	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + Ellipsis
}

func formatScore(score *float32) string {
	if score == nil {
		return ScoreNotAvailable
	}
	return strconv.FormatFloat(float64(*score), 'f', 4, 32)
}

func formatMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	parts := make([]string, 0, 2)
	if source, ok := meta["source"]; ok {
		parts = append(parts, "source="+source)
	}
	if question, ok := meta["question"]; ok {
		parts = append(parts, "q="+question)
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ", ") + "]"
}
