package store

import "time"

// FileRecord represents a source file that has been read at least once.
type FileRecord struct {
	ID          int64
	Path        string
	Content     string
	Hash        string
	Language    string
	LineCount   int
	SizeBytes   int64
	ParseFailed bool
	IndexedAt   time.Time
}

// Chunk is a contiguous structural unit of a file (function, class, block,
// paragraph). Lines are 1-indexed and inclusive.
type Chunk struct {
	ID        int64
	FileID    int64
	Name      string
	Kind      string
	StartLine int
	EndLine   int
	Text      string
	Hash      string
}

// Symbol is a named declaration with a location. ParentID models nesting
// (method under class); zero means top-level.
type Symbol struct {
	ID        int64
	FileID    int64
	Name      string
	Kind      string
	Signature string
	StartLine int
	EndLine   int
	Doc       string
	ParentID  int64
}

// Edge is a directed relationship between two stored symbols.
type Edge struct {
	SrcSymbolID int64
	DstSymbolID int64
	Kind        string // imports|calls|inherits|uses
}

// EdgeSpec is an edge between symbols of the same parse result, addressed
// by index into the symbol slice. It becomes an Edge once the symbols have
// database IDs.
type EdgeSpec struct {
	Src  int
	Dst  int
	Kind string
}

// ChunkMatch is a chunk returned from full-text search with its file path
// and bm25 score (lower is better, as SQLite reports it).
type ChunkMatch struct {
	Chunk    Chunk
	FilePath string
	Language string
	Score    float64
}

// LineMatch is a single matching line from a file-level text search.
type LineMatch struct {
	Path    string
	Line    int
	Snippet string
}

// ReportVersion is one iteration's generated report with its citation
// counts. Immutable once written.
type ReportVersion struct {
	ID               int64
	RunID            string
	Iteration        int
	Content          string
	ValidCitations   int
	InvalidCitations int
	CreatedAt        time.Time
}
