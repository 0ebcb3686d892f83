package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

const maxChunkBytes = 8192

// Chunk is a contiguous structural span extracted from a source file.
// Lines are 1-indexed and inclusive.
type Chunk struct {
	Name      string
	Kind      string
	StartLine int
	EndLine   int
	Text      string
}

// Symbol is a named declaration. Parent is the index of the enclosing
// symbol in the same result, or -1 for top-level.
type Symbol struct {
	Name      string
	Kind      string
	Signature string
	Doc       string
	StartLine int
	EndLine   int
	Parent    int
}

// Edge is a relationship between two symbols of the same result, addressed
// by index into the Symbols slice.
type Edge struct {
	Src  int
	Dst  int
	Kind string // calls|inherits
}

// ImportRef is an import statement found in a file. The referenced module
// is resolved against the store after all files have been ingested.
type ImportRef struct {
	Module string
	Line   int
}

// Result holds the structural facts extracted from one file. When Failed
// is set the file could not be parsed and all fact slices are empty; the
// caller still persists the raw content.
type Result struct {
	Language string
	Failed   bool
	Chunks   []Chunk
	Symbols  []Symbol
	Edges    []Edge
	Imports  []ImportRef
}

// Parser turns raw file text into chunks, symbols, and edges using the
// grammars in its registry. It is a pure function of its inputs and never
// touches the store.
type Parser struct {
	registry *Registry
}

// New creates a parser backed by the given registry.
func New(r *Registry) *Parser {
	return &Parser{registry: r}
}

// Parse extracts structural facts from a source file. Files without a
// registered grammar degrade to paragraph or whole-file chunks with no
// symbols or edges. A file the grammar cannot parse yields Failed=true
// with empty facts; only query-compilation bugs surface as errors.
func (p *Parser) Parse(path string, src []byte) (Result, error) {
	spec, lang := p.registry.Lookup(path)
	if spec == nil {
		return plaintextResult(string(src)), nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return Result{Language: lang, Failed: true}, nil
	}
	defer tree.Close()

	decls, err := runQuery(spec.Language, spec.DeclQuery, tree, src, "decl", "name")
	if err != nil {
		return Result{}, fmt.Errorf("compile decl query for %s: %w", lang, err)
	}

	lines := SplitLines(string(src))
	res := Result{Language: lang}

	res.Symbols = buildSymbols(path, decls, lines)
	res.Chunks = buildChunks(decls, lines)
	if len(res.Chunks) == 0 && len(lines) > 0 {
		// No declarations captured: keep the whole file reachable.
		res.Chunks = []Chunk{{Kind: "block", StartLine: 1, EndLine: len(lines), Text: strings.Join(lines, "\n")}}
	}

	if spec.ImportQuery != "" {
		caps, err := runQuery(spec.Language, spec.ImportQuery, tree, src, "", "path")
		if err != nil {
			return Result{}, fmt.Errorf("compile import query for %s: %w", lang, err)
		}
		for _, c := range caps {
			mod := moduleName(c.name)
			if mod != "" {
				res.Imports = append(res.Imports, ImportRef{Module: mod, Line: c.startLine})
			}
		}
	}

	if spec.CallQuery != "" {
		caps, err := runQuery(spec.Language, spec.CallQuery, tree, src, "", "callee")
		if err != nil {
			return Result{}, fmt.Errorf("compile call query for %s: %w", lang, err)
		}
		res.Edges = append(res.Edges, callEdges(res.Symbols, caps)...)
	}

	if spec.InheritQuery != "" {
		caps, err := runQuery(spec.Language, spec.InheritQuery, tree, src, "derived", "base")
		if err != nil {
			return Result{}, fmt.Errorf("compile inherit query for %s: %w", lang, err)
		}
		res.Edges = append(res.Edges, inheritEdges(res.Symbols, caps)...)
	}

	return res, nil
}

// capture is one query match: the outer node (when the query names one)
// plus the captured identifier text.
type capture struct {
	name      string
	kind      string
	startLine int
	endLine   int
	startByte uint32
	endByte   uint32
}

// runQuery executes a tree-sitter query and collects captures. outerCap
// names the capture for the enclosing node ("" when the query has none);
// textCap names the identifier capture.
func runQuery(lang *sitter.Language, query string, tree *sitter.Tree, src []byte, outerCap, textCap string) ([]capture, error) {
	q, err := sitter.NewQuery([]byte(query), lang)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var captures []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var outer *sitter.Node
		var text string
		var textNode *sitter.Node
		for _, cap := range m.Captures {
			switch q.CaptureNameForId(cap.Index) {
			case outerCap:
				outer = cap.Node
			case textCap:
				text = cap.Node.Content(src)
				textNode = cap.Node
			}
		}
		node := outer
		if node == nil {
			node = textNode
		}
		if node == nil {
			continue
		}
		captures = append(captures, capture{
			name:      text,
			kind:      node.Type(),
			startLine: int(node.StartPoint().Row) + 1,
			endLine:   int(node.EndPoint().Row) + 1,
			startByte: node.StartByte(),
			endByte:   node.EndByte(),
		})
	}
	return captures, nil
}

// buildSymbols turns declaration captures into symbols, prepending a
// synthetic module symbol that spans the whole file and anchors import
// edges. Parent indexes are computed by line-range containment, so a
// method nested in a class points at the class.
func buildSymbols(path string, decls []capture, lines []string) []Symbol {
	ordered := make([]capture, len(decls))
	copy(ordered, decls)
	// Parents before children: outer nodes first.
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].startByte != ordered[j].startByte {
			return ordered[i].startByte < ordered[j].startByte
		}
		return (ordered[i].endByte - ordered[i].startByte) > (ordered[j].endByte - ordered[j].startByte)
	})

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	symbols := []Symbol{{
		Name:      base,
		Kind:      "module",
		StartLine: 1,
		EndLine:   max(len(lines), 1),
		Parent:    -1,
	}}

	for _, d := range ordered {
		sig := ""
		if d.startLine-1 < len(lines) {
			sig = strings.TrimSpace(lines[d.startLine-1])
		}
		sym := Symbol{
			Name:      d.name,
			Kind:      symbolKind(d.kind),
			Signature: sig,
			StartLine: d.startLine,
			EndLine:   d.endLine,
			Parent:    -1,
		}
		// Smallest enclosing declaration wins; the module symbol is never
		// a parent.
		for j := len(symbols) - 1; j >= 1; j-- {
			p := symbols[j]
			if p.StartLine <= sym.StartLine && p.EndLine >= sym.EndLine &&
				(p.StartLine != sym.StartLine || p.EndLine != sym.EndLine) {
				sym.Parent = j
				if p.Kind == "class" && sym.Kind == "function" {
					sym.Kind = "method"
				}
				break
			}
		}
		symbols = append(symbols, sym)
	}
	return symbols
}

// buildChunks keeps only outer declarations and splits oversized ones at
// line boundaries. Nested declarations are reachable through symbols.
func buildChunks(decls []capture, lines []string) []Chunk {
	ordered := make([]capture, len(decls))
	copy(ordered, decls)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].startByte != ordered[j].startByte {
			return ordered[i].startByte < ordered[j].startByte
		}
		return (ordered[i].endByte - ordered[i].startByte) > (ordered[j].endByte - ordered[j].startByte)
	})

	var outer []capture
	var lastEnd uint32
	for _, c := range ordered {
		if len(outer) == 0 || c.startByte >= lastEnd {
			outer = append(outer, c)
			if c.endByte > lastEnd {
				lastEnd = c.endByte
			}
		}
	}

	var chunks []Chunk
	for _, c := range outer {
		text := sliceLines(lines, c.startLine, c.endLine)
		ch := Chunk{
			Name:      c.name,
			Kind:      symbolKind(c.kind),
			StartLine: c.startLine,
			EndLine:   c.endLine,
			Text:      text,
		}
		if len(text) > maxChunkBytes {
			chunks = append(chunks, splitOversized(ch)...)
		} else {
			chunks = append(chunks, ch)
		}
	}
	return chunks
}

// splitOversized splits a chunk that exceeds maxChunkBytes into windows at
// line boundaries with a 10-line overlap.
func splitOversized(c Chunk) []Chunk {
	lines := strings.Split(c.Text, "\n")
	const windowSize = 40
	const overlap = 10

	var chunks []Chunk
	for i := 0; i < len(lines); {
		end := i + windowSize
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			Name:      c.Name,
			Kind:      c.Kind,
			StartLine: c.StartLine + i,
			EndLine:   c.StartLine + end - 1,
			Text:      strings.Join(lines[i:end], "\n"),
		})
		if end >= len(lines) {
			break
		}
		i += windowSize - overlap
	}
	return chunks
}

func callEdges(symbols []Symbol, callees []capture) []Edge {
	byName := symbolIndex(symbols)
	seen := make(map[Edge]bool)
	var edges []Edge
	for _, c := range callees {
		dst, ok := byName[c.name]
		if !ok {
			continue
		}
		src := enclosingSymbol(symbols, c.startLine)
		if src < 0 {
			continue
		}
		e := Edge{Src: src, Dst: dst, Kind: "calls"}
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}
	return edges
}

// inheritEdges pairs @derived/@base captures. Captures arrive per match,
// so derived and base alternate within the slice in match order.
func inheritEdges(symbols []Symbol, caps []capture) []Edge {
	byName := symbolIndex(symbols)
	seen := make(map[Edge]bool)
	var edges []Edge
	for _, c := range caps {
		// runQuery stores the @base identifier in name and uses the
		// @derived node for position when present.
		dst, ok := byName[c.name]
		if !ok {
			continue
		}
		src := enclosingSymbol(symbols, c.startLine)
		if src < 0 || src == dst {
			continue
		}
		e := Edge{Src: src, Dst: dst, Kind: "inherits"}
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}
	return edges
}

// symbolIndex maps symbol names to their index, first definition wins.
func symbolIndex(symbols []Symbol) map[string]int {
	byName := make(map[string]int, len(symbols))
	for i, s := range symbols {
		if s.Kind == "module" {
			continue
		}
		if _, ok := byName[s.Name]; !ok && s.Name != "" {
			byName[s.Name] = i
		}
	}
	return byName
}

// enclosingSymbol returns the index of the smallest symbol whose range
// contains the line, or -1. The module symbol is the fallback container.
func enclosingSymbol(symbols []Symbol, line int) int {
	best := -1
	bestSpan := 0
	for i, s := range symbols {
		if s.Kind == "module" {
			continue
		}
		if s.StartLine <= line && line <= s.EndLine {
			span := s.EndLine - s.StartLine
			if best == -1 || span < bestSpan {
				best = i
				bestSpan = span
			}
		}
	}
	if best == -1 && len(symbols) > 0 && symbols[0].Kind == "module" {
		return 0
	}
	return best
}

func symbolKind(nodeType string) string {
	switch nodeType {
	case "function_declaration", "function_definition":
		return "function"
	case "method_declaration", "method_definition":
		return "method"
	case "class_declaration", "class_definition":
		return "class"
	case "type_declaration", "type_alias_declaration":
		return "type"
	case "interface_declaration":
		return "interface"
	case "lexical_declaration":
		return "function"
	default:
		nodeType = strings.TrimSuffix(nodeType, "_definition")
		return strings.TrimSuffix(nodeType, "_declaration")
	}
}

// moduleName normalizes an import target to the bare module name used for
// cross-file resolution: quotes stripped, last path or dotted segment kept.
func moduleName(raw string) string {
	mod := strings.Trim(strings.TrimSpace(raw), `"'`)
	if i := strings.LastIndex(mod, "/"); i >= 0 {
		mod = mod[i+1:]
	}
	if i := strings.LastIndex(mod, "."); i >= 0 {
		mod = mod[i+1:]
	}
	return mod
}

func sliceLines(lines []string, start, end int) string {
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

// SplitLines splits content into lines without treating a trailing newline
// as an extra empty line.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// CountLines reports the line count consistent with SplitLines.
func CountLines(s string) int {
	return len(SplitLines(s))
}
