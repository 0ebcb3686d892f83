package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"scribe/internal/ingest"
	"scribe/internal/parser"
	"scribe/internal/store"
)

// Service is the tool-call surface over the index. Reads are served from
// the store; ReadFile ingests on a cache miss or content change, so the
// index always reflects what a caller was shown.
type Service struct {
	store    store.Store
	ingester *ingest.Ingester
	root     string
}

func New(st store.Store, ig *ingest.Ingester, root string) *Service {
	return &Service{store: st, ingester: ig, root: root}
}

// FileEntry is one row of a file listing.
type FileEntry struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	LineCount int    `json:"line_count"`
	SizeBytes int64  `json:"size_bytes"`
}

// ListFiles returns indexed files, optionally filtered by a glob pattern
// matched against the relative path.
func (s *Service) ListFiles(pattern string) ([]FileEntry, error) {
	files, err := s.store.ListFiles()
	if err != nil {
		return nil, err
	}
	var out []FileEntry
	for _, f := range files {
		if pattern != "" {
			matched, err := filepath.Match(pattern, f.Path)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if !matched && !strings.Contains(f.Path, pattern) {
				continue
			}
		}
		out = append(out, FileEntry{Path: f.Path, Language: f.Language, LineCount: f.LineCount, SizeBytes: f.SizeBytes})
	}
	return out, nil
}

// FileView is the result of a ReadFile call: the requested span plus the
// bounds it was clamped to.
type FileView struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	LineCount int    `json:"line_count"`
	Content   string `json:"content"`
}

// ReadFile returns lines [start, end] of a file, ingesting it first when
// it is missing from the cache or has changed on disk. start and end of 0
// mean the whole file; out-of-range bounds are clamped.
func (s *Service) ReadFile(path string, start, end int) (*FileView, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(path))
	src, err := os.ReadFile(abs)
	if err == nil {
		if _, err := s.ingester.IngestFile(path, src); err != nil {
			return nil, err
		}
	}

	f, err := s.store.GetFile(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	lines := parser.SplitLines(f.Content)
	if len(lines) == 0 {
		// Empty file: a valid cache entry with nothing to slice.
		return &FileView{Path: f.Path}, nil
	}
	if start < 1 {
		start = 1
	}
	if end < 1 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}
	return &FileView{
		Path:      f.Path,
		StartLine: start,
		EndLine:   end,
		LineCount: len(lines),
		Content:   strings.Join(lines[start-1:end], "\n"),
	}, nil
}

// GetSymbols returns a file's symbols, optionally filtered by kind. The
// synthetic module symbol is excluded.
func (s *Service) GetSymbols(path, kind string) ([]store.Symbol, error) {
	f, err := s.store.GetFile(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	symbols, err := s.store.SymbolsForFile(f.ID)
	if err != nil {
		return nil, err
	}
	var out []store.Symbol
	for _, sym := range symbols {
		if sym.Kind == "module" {
			continue
		}
		if kind != "" && sym.Kind != kind {
			continue
		}
		out = append(out, sym)
	}
	return out, nil
}

// Import is one resolved cross-file dependency.
type Import struct {
	Module string `json:"module"`
	Path   string `json:"path"`
}

// GetImports returns the files this file's import edges resolve to.
func (s *Service) GetImports(path string) ([]Import, error) {
	f, err := s.store.GetFile(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	symbols, err := s.store.SymbolsForFile(f.ID)
	if err != nil {
		return nil, err
	}
	var moduleID int64
	for _, sym := range symbols {
		if sym.Kind == "module" {
			moduleID = sym.ID
			break
		}
	}
	if moduleID == 0 {
		return nil, nil
	}
	edges, err := s.store.EdgesForSymbols([]int64{moduleID})
	if err != nil {
		return nil, err
	}
	var dstIDs []int64
	for _, e := range edges {
		if e.Kind == "imports" && e.SrcSymbolID == moduleID {
			dstIDs = append(dstIDs, e.DstSymbolID)
		}
	}
	targets, err := s.store.SymbolsByIDs(dstIDs)
	if err != nil {
		return nil, err
	}
	var out []Import
	for _, t := range targets {
		tf, err := s.store.GetFileByID(t.FileID)
		if err != nil {
			return nil, err
		}
		if tf == nil {
			continue
		}
		out = append(out, Import{Module: t.Name, Path: tf.Path})
	}
	return out, nil
}

// Definition is where a symbol is declared.
type Definition struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Signature string `json:"signature"`
}

// GetDefinition returns every declaration with the exact name.
func (s *Service) GetDefinition(name string) ([]Definition, error) {
	symbols, err := s.store.SymbolsByName(name)
	if err != nil {
		return nil, err
	}
	var out []Definition
	for _, sym := range symbols {
		if sym.Kind == "module" {
			continue
		}
		f, err := s.store.GetFileByID(sym.FileID)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		out = append(out, Definition{
			Name:      sym.Name,
			Kind:      sym.Kind,
			Path:      f.Path,
			StartLine: sym.StartLine,
			EndLine:   sym.EndLine,
			Signature: sym.Signature,
		})
	}
	return out, nil
}

// Reference is one usage site of a symbol name.
type Reference struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

const maxReferences = 100

// GetReferences scans cached file content for word-boundary occurrences
// of the name.
func (s *Service) GetReferences(name string) ([]Reference, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return nil, err
	}

	files, err := s.store.ListFiles()
	if err != nil {
		return nil, err
	}
	var out []Reference
	for _, entry := range files {
		f, err := s.store.GetFile(entry.Path)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		for i, line := range parser.SplitLines(f.Content) {
			if pattern.MatchString(line) {
				out = append(out, Reference{Path: f.Path, Line: i + 1, Context: strings.TrimSpace(line)})
				if len(out) >= maxReferences {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

// SearchText runs full-text search over file content and returns
// line-level matches.
func (s *Service) SearchText(query string, limit int) ([]store.LineMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.SearchFiles(query, limit)
}

// Structure is the shape of a file: its classes, functions, and
// top-level exported names.
type Structure struct {
	Classes   []string `json:"classes"`
	Functions []string `json:"functions"`
	Exports   []string `json:"exports"`
}

// GetStructure summarizes a file's declarations.
func (s *Service) GetStructure(path string) (*Structure, error) {
	symbols, err := s.GetSymbols(path, "")
	if err != nil {
		return nil, err
	}
	st := &Structure{}
	for _, sym := range symbols {
		switch sym.Kind {
		case "class", "interface":
			st.Classes = append(st.Classes, sym.Name)
		case "function", "method":
			st.Functions = append(st.Functions, sym.Name)
		}
		if sym.ParentID == 0 && sym.Name != "" {
			st.Exports = append(st.Exports, sym.Name)
		}
	}
	return st, nil
}
