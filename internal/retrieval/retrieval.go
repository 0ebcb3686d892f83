// Package retrieval combines lexical search, symbol lookup, and one-hop
// graph expansion into a deterministically ranked, budget-bounded evidence
// set. There are no embeddings here: ranking is lexical and structural.
package retrieval

import (
	"regexp"
	"sort"
	"strings"

	"scribe/internal/store"
)

const (
	scoreLexical = 1.0
	scoreSymbol  = 0.5
	scoreGraph   = 0.25

	lexicalLimit = 20
	symbolLimit  = 10
)

// ScoredChunk is an evidence chunk with its accumulated relevance score.
type ScoredChunk struct {
	Chunk    store.Chunk
	FilePath string
	Score    float64
}

// Context is the evidence set returned for one retrieval call. Truncated
// is set when ranked candidates existed but the budget cut them off.
type Context struct {
	Chunks    []ScoredChunk
	Symbols   []store.Symbol
	Edges     []store.Edge
	Truncated bool
}

// Size returns the total character count of the included chunks.
func (c Context) Size() int {
	total := 0
	for _, sc := range c.Chunks {
		total += len(sc.Chunk.Text)
	}
	return total
}

// Engine ranks chunks against a query and fills a size budget greedily.
type Engine struct {
	store store.Store
}

// New creates an engine over the given store.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// candidate tracks one chunk's accumulated score and discovery order.
type candidate struct {
	chunk    store.Chunk
	filePath string
	score    float64
	order    int
}

// Retrieve builds the evidence set for a query within a character budget.
// Scoring: lexical match +1.0, symbol-overlap +0.5, one-hop graph
// neighbor +0.25, accumulated per chunk. Candidates are ranked by score
// descending; ties break by order of first discovery (lexical rank first,
// then symbol matches, then graph expansion), which makes the result
// deterministic for a fixed store. Chunks are never split: the fill stops
// at the first candidate that would exceed the budget.
func (e *Engine) Retrieve(query string, budget int) (Context, error) {
	var ctx Context
	if strings.TrimSpace(query) == "" {
		return ctx, nil
	}

	byID := make(map[int64]*candidate)
	var discovered []*candidate
	add := func(c store.Chunk, path string, score float64) {
		if cand, ok := byID[c.ID]; ok {
			cand.score += score
			return
		}
		cand := &candidate{chunk: c, filePath: path, score: score, order: len(discovered)}
		byID[c.ID] = cand
		discovered = append(discovered, cand)
	}

	// Stage 1: lexical search.
	matches, err := e.store.SearchFTS(query, lexicalLimit)
	if err != nil {
		return ctx, err
	}
	for _, m := range matches {
		add(m.Chunk, m.FilePath, scoreLexical)
	}

	// Stage 2: symbol lookup for query terms; chunks overlapping a matched
	// symbol's declaration range accrue the symbol score.
	var matchedSymbols []store.Symbol
	seenSym := make(map[int64]bool)
	for _, term := range extractTerms(query) {
		syms, err := e.store.SearchSymbols(term, nil, symbolLimit)
		if err != nil {
			return ctx, err
		}
		for _, sym := range syms {
			if seenSym[sym.ID] {
				continue
			}
			seenSym[sym.ID] = true
			matchedSymbols = append(matchedSymbols, sym)

			chunks, err := e.store.ChunksForFile(sym.FileID)
			if err != nil {
				return ctx, err
			}
			file, err := e.store.GetFileByID(sym.FileID)
			if err != nil {
				return ctx, err
			}
			if file == nil {
				continue
			}
			for _, c := range chunks {
				if c.StartLine <= sym.EndLine && c.EndLine >= sym.StartLine {
					add(c, file.Path, scoreSymbol)
				}
			}
		}
	}
	ctx.Symbols = matchedSymbols

	// Stage 3: one hop along edges; chunks of neighbor symbols' files
	// accrue the graph score.
	if len(matchedSymbols) > 0 {
		ids := make([]int64, len(matchedSymbols))
		for i, s := range matchedSymbols {
			ids[i] = s.ID
		}
		edges, err := e.store.EdgesForSymbols(ids)
		if err != nil {
			return ctx, err
		}
		ctx.Edges = edges

		var neighborIDs []int64
		for _, edge := range edges {
			for _, id := range []int64{edge.SrcSymbolID, edge.DstSymbolID} {
				if !seenSym[id] {
					seenSym[id] = true
					neighborIDs = append(neighborIDs, id)
				}
			}
		}
		neighbors, err := e.store.SymbolsByIDs(neighborIDs)
		if err != nil {
			return ctx, err
		}
		seenFile := make(map[int64]bool)
		for _, n := range neighbors {
			if seenFile[n.FileID] {
				continue
			}
			seenFile[n.FileID] = true
			chunks, err := e.store.ChunksForFile(n.FileID)
			if err != nil {
				return ctx, err
			}
			file, err := e.store.GetFileByID(n.FileID)
			if err != nil {
				return ctx, err
			}
			if file == nil {
				continue
			}
			for _, c := range chunks {
				add(c, file.Path, scoreGraph)
			}
		}
	}

	if len(discovered) == 0 {
		return ctx, nil
	}

	// Stage 4: rank. Score descending, discovery order on ties.
	ranked := make([]*candidate, len(discovered))
	copy(ranked, discovered)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	// Stage 5: greedy budget fill, stopping at the first over-budget
	// candidate. Chunks are never split.
	total := 0
	for _, cand := range ranked {
		if total+len(cand.chunk.Text) > budget {
			ctx.Truncated = true
			break
		}
		total += len(cand.chunk.Text)
		ctx.Chunks = append(ctx.Chunks, ScoredChunk{
			Chunk:    cand.chunk,
			FilePath: cand.filePath,
			Score:    cand.score,
		})
	}
	return ctx, nil
}

var termPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)

// extractTerms pulls identifier-like tokens from a query, deduplicated in
// order of appearance.
func extractTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range termPattern.FindAllString(query, -1) {
		if !seen[tok] {
			seen[tok] = true
			terms = append(terms, tok)
		}
	}
	return terms
}
