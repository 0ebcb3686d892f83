// Package citation extracts citation tokens from generated text, validates
// them against the store, classifies the claims they anchor, verifies
// support, and drives the bounded revise loop.
//
// Citation token format: [path:start_line-end_line], 1-indexed, end
// inclusive, no whitespace inside the brackets.
package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Citation is a path:start-end reference found in generated text.
type Citation struct {
	Path  string
	Start int
	End   int
}

// String formats the citation in its wire form.
func (c Citation) String() string {
	return fmt.Sprintf("[%s:%d-%d]", c.Path, c.Start, c.End)
}

var tokenPattern = regexp.MustCompile(`\[([^:\]]+):(\d+)-(\d+)\]`)

// Found is a citation paired with its enclosing sentence, which serves as
// the claim the citation supports.
type Found struct {
	Citation Citation
	Claim    string
}

// Parse parses a single citation token, with or without brackets.
func Parse(token string) (Citation, error) {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	colon := strings.LastIndex(s, ":")
	if colon < 0 {
		return Citation{}, fmt.Errorf("invalid citation %q: missing colon", token)
	}
	path := s[:colon]
	dash := strings.Index(s[colon+1:], "-")
	if path == "" || dash < 0 {
		return Citation{}, fmt.Errorf("invalid citation %q: expected path:start-end", token)
	}
	start, err := strconv.Atoi(s[colon+1 : colon+1+dash])
	if err != nil {
		return Citation{}, fmt.Errorf("invalid citation %q: non-numeric start line", token)
	}
	end, err := strconv.Atoi(s[colon+1+dash+1:])
	if err != nil {
		return Citation{}, fmt.Errorf("invalid citation %q: non-numeric end line", token)
	}
	return Citation{Path: path, Start: start, End: end}, nil
}

// Extract scans generated text for citation tokens and pairs each with its
// enclosing sentence.
func Extract(text string) []Found {
	var found []Found
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		path := text[m[2]:m[3]]
		start, _ := strconv.Atoi(text[m[4]:m[5]])
		end, _ := strconv.Atoi(text[m[6]:m[7]])
		found = append(found, Found{
			Citation: Citation{Path: path, Start: start, End: end},
			Claim:    enclosingSentence(text, m[0], m[1]),
		})
	}
	return found
}

// enclosingSentence returns the sentence containing the span [from, to).
// Sentences end at '.', '!', '?', or a newline.
func enclosingSentence(text string, from, to int) string {
	start := from
	for start > 0 {
		r := text[start-1]
		if r == '\n' {
			break
		}
		if (r == '.' || r == '!' || r == '?') && start < len(text) && text[start] == ' ' {
			break
		}
		start--
	}
	end := to
	for end < len(text) {
		r := text[end]
		if r == '\n' {
			break
		}
		end++
		if r == '.' || r == '!' || r == '?' {
			break
		}
	}
	return strings.TrimSpace(text[start:end])
}
