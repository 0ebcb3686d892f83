package parser

import "strings"

// plaintextResult chunks a file with no registered grammar. Prose-like
// content splits into paragraph chunks on blank lines; anything else
// becomes a single whole-file block. Full-text search stays available and
// citations into such files remain structurally valid.
func plaintextResult(content string) Result {
	lines := SplitLines(content)
	if len(lines) == 0 {
		return Result{}
	}

	hasBlank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			hasBlank = true
			break
		}
	}
	if !hasBlank {
		return Result{Chunks: []Chunk{{
			Kind:      "block",
			StartLine: 1,
			EndLine:   len(lines),
			Text:      strings.Join(lines, "\n"),
		}}}
	}

	var res Result
	var buf []string
	start := 1
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(buf) > 0 {
				res.Chunks = append(res.Chunks, Chunk{
					Kind:      "paragraph",
					StartLine: start,
					EndLine:   i,
					Text:      strings.Join(buf, "\n"),
				})
				buf = nil
			}
			continue
		}
		if len(buf) == 0 {
			start = i + 1
		}
		buf = append(buf, line)
	}
	if len(buf) > 0 {
		res.Chunks = append(res.Chunks, Chunk{
			Kind:      "paragraph",
			StartLine: start,
			EndLine:   len(lines),
			Text:      strings.Join(buf, "\n"),
		})
	}
	return res
}
