package citation

import (
	"fmt"
	"strings"

	"scribe/internal/store"
)

// ErrorKind classifies why a citation failed structural validation.
type ErrorKind string

const (
	ErrNone           ErrorKind = ""
	ErrFileNotCached  ErrorKind = "file_not_cached"
	ErrEndBeforeStart ErrorKind = "end_before_start"
	ErrLineOutOfRange ErrorKind = "line_out_of_range"
)

// ValidationResult is the structural verdict on a single citation.
type ValidationResult struct {
	Citation Citation
	Valid    bool
	Err      ErrorKind
	Detail   string
	Content  string // resolved cited lines when valid
}

// Validate checks a citation against the store. It is deterministic and
// makes no external calls; only store failures return a non-nil error.
func Validate(st store.Store, c Citation) (ValidationResult, error) {
	res := ValidationResult{Citation: c}

	file, err := st.GetFile(c.Path)
	if err != nil {
		return res, fmt.Errorf("get file %s: %w", c.Path, err)
	}
	if file == nil {
		res.Err = ErrFileNotCached
		res.Detail = fmt.Sprintf("file not cached: %s", c.Path)
		return res, nil
	}
	if c.End < c.Start {
		res.Err = ErrEndBeforeStart
		res.Detail = fmt.Sprintf("end line %d before start line %d", c.End, c.Start)
		return res, nil
	}
	if c.Start < 1 || c.End > file.LineCount {
		res.Err = ErrLineOutOfRange
		res.Detail = fmt.Sprintf("lines %d-%d out of range (file has %d lines)", c.Start, c.End, file.LineCount)
		return res, nil
	}

	res.Valid = true
	res.Content = resolveLines(file.Content, c.Start, c.End)
	return res, nil
}

// resolveLines returns the 1-indexed inclusive line span of content.
func resolveLines(content string, start, end int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
