package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/store"
)

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func pyFile(path, content string, lineCount int) store.FileRecord {
	return store.FileRecord{
		Path:      path,
		Content:   content,
		Hash:      "hash-" + path,
		Language:  "Python",
		LineCount: lineCount,
		SizeBytes: int64(len(content)),
	}
}

func TestUpsertFile_RoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	content := "def parse(src):\n    return ast\n"
	id, err := s.UpsertFile(pyFile("a.py", content, 2),
		[]store.Chunk{{Name: "parse", Kind: "function", StartLine: 1, EndLine: 2, Text: content}},
		[]store.SymbolSpec{
			{Symbol: store.Symbol{Name: "a", Kind: "module", StartLine: 1, EndLine: 2}, Parent: -1},
			{Symbol: store.Symbol{Name: "parse", Kind: "function", StartLine: 1, EndLine: 2}, Parent: -1},
		},
		nil, nil,
	)
	require.NoError(t, err)
	require.NotZero(t, id)

	f, err := s.GetFile("a.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, content, f.Content)
	assert.Equal(t, 2, f.LineCount)

	chunks, err := s.ChunksForFile(id)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "parse", chunks[0].Name)

	symbols, err := s.SymbolsForFile(id)
	require.NoError(t, err)
	assert.Len(t, symbols, 2)
}

func TestUpsertFile_UnchangedHashIsNoOp(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	f := pyFile("a.py", "x = 1\n", 1)
	chunks := []store.Chunk{{Kind: "block", StartLine: 1, EndLine: 1, Text: "x = 1"}}

	id1, err := s.UpsertFile(f, chunks, nil, nil, nil)
	require.NoError(t, err)
	// Same hash, different chunk payload: the old facts must survive.
	id2, err := s.UpsertFile(f, []store.Chunk{
		{Kind: "block", StartLine: 1, EndLine: 1, Text: "replaced"},
		{Kind: "block", StartLine: 1, EndLine: 1, Text: "extra"},
	}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	stored, err := s.ChunksForFile(id1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "x = 1", stored[0].Text)
}

func TestUpsertFile_ChangedHashReplacesFacts(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	f := pyFile("a.py", "old\n", 1)
	_, err := s.UpsertFile(f, []store.Chunk{{Kind: "block", StartLine: 1, EndLine: 1, Text: "old"}}, nil, nil, nil)
	require.NoError(t, err)

	f.Content = "new\n"
	f.Hash = "hash-2"
	id, err := s.UpsertFile(f, []store.Chunk{{Kind: "block", StartLine: 1, EndLine: 1, Text: "new"}}, nil, nil, nil)
	require.NoError(t, err)

	chunks, err := s.ChunksForFile(id)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new", chunks[0].Text)
}

func TestRemoveFile_CascadesWithoutOrphans(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id, err := s.UpsertFile(pyFile("a.py", "def f():\n    g()\n", 2),
		[]store.Chunk{{Name: "f", Kind: "function", StartLine: 1, EndLine: 2, Text: "def f():\n    g()"}},
		[]store.SymbolSpec{
			{Symbol: store.Symbol{Name: "a", Kind: "module", StartLine: 1, EndLine: 2}, Parent: -1},
			{Symbol: store.Symbol{Name: "f", Kind: "function", StartLine: 1, EndLine: 2}, Parent: -1},
			{Symbol: store.Symbol{Name: "g", Kind: "function", StartLine: 2, EndLine: 2}, Parent: 1},
		},
		[]store.EdgeSpec{{Src: 1, Dst: 2, Kind: "calls"}},
		nil,
	)
	require.NoError(t, err)

	symbols, err := s.SymbolsForFile(id)
	require.NoError(t, err)
	ids := make([]int64, len(symbols))
	for i, sym := range symbols {
		ids[i] = sym.ID
	}
	edges, err := s.EdgesForSymbols(ids)
	require.NoError(t, err)
	require.NotEmpty(t, edges)

	require.NoError(t, s.RemoveFile("a.py"))

	edges, err = s.EdgesForSymbols(ids)
	require.NoError(t, err)
	assert.Empty(t, edges)

	chunks, err := s.ChunksForFile(id)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	f, err := s.GetFile("a.py")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSearchFTS_ReflectsUpdatesAndDeletes(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	f := pyFile("a.py", "def frobnicate():\n    pass\n", 2)
	_, err := s.UpsertFile(f, []store.Chunk{
		{Name: "frobnicate", Kind: "function", StartLine: 1, EndLine: 2, Text: "def frobnicate():\n    pass"},
	}, nil, nil, nil)
	require.NoError(t, err)

	matches, err := s.SearchFTS("frobnicate", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a.py", matches[0].FilePath)

	// Update removes the term; the FTS index must follow.
	f.Content = "def renamed():\n    pass\n"
	f.Hash = "hash-2"
	_, err = s.UpsertFile(f, []store.Chunk{
		{Name: "renamed", Kind: "function", StartLine: 1, EndLine: 2, Text: "def renamed():\n    pass"},
	}, nil, nil, nil)
	require.NoError(t, err)

	matches, err = s.SearchFTS("frobnicate", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = s.SearchFTS("renamed", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, s.RemoveFile("a.py"))
	matches, err = s.SearchFTS("renamed", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchFTS_MalformedQueryFallsBack(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.UpsertFile(pyFile("a.py", "weird AND OR NOT text\n", 1), []store.Chunk{
		{Kind: "block", StartLine: 1, EndLine: 1, Text: "weird AND OR NOT text"},
	}, nil, nil, nil)
	require.NoError(t, err)

	// Operators and stray quotes are treated as literal text, not syntax.
	matches, err := s.SearchFTS(`weird "AND`, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestFindChunkCovering_SmallestWins(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id, err := s.UpsertFile(pyFile("a.py", "l1\nl2\nl3\nl4\nl5\n", 5), []store.Chunk{
		{Name: "outer", Kind: "class", StartLine: 1, EndLine: 5, Text: "l1\nl2\nl3\nl4\nl5"},
		{Name: "inner", Kind: "method", StartLine: 2, EndLine: 4, Text: "l2\nl3\nl4"},
	}, nil, nil, nil)
	require.NoError(t, err)

	c, err := s.FindChunkCovering(id, 3, 3)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "inner", c.Name)

	c, err = s.FindChunkCovering(id, 1, 5)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "outer", c.Name)

	c, err = s.FindChunkCovering(id, 5, 9)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestFindChunkCovering_EqualSpansPickFirstInserted(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id, err := s.UpsertFile(pyFile("a.py", "l1\nl2\nl3\nl4\n", 4), []store.Chunk{
		{Name: "first", Kind: "function", StartLine: 2, EndLine: 4, Text: "l2\nl3\nl4"},
		{Name: "second", Kind: "class", StartLine: 2, EndLine: 4, Text: "l2\nl3\nl4"},
	}, nil, nil, nil)
	require.NoError(t, err)

	c, err := s.FindChunkCovering(id, 3, 3)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "first", c.Name)
}

func TestResolveImports_ResolvesOnlyExistingModules(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	aID, err := s.UpsertFile(pyFile("a.py", "import b\n", 1), nil, []store.SymbolSpec{
		{Symbol: store.Symbol{Name: "a", Kind: "module", StartLine: 1, EndLine: 1}, Parent: -1},
	}, nil, []string{"b", "os", "missing"})
	require.NoError(t, err)
	_, err = s.UpsertFile(pyFile("b.py", "x = 1\n", 1), nil, []store.SymbolSpec{
		{Symbol: store.Symbol{Name: "b", Kind: "module", StartLine: 1, EndLine: 1}, Parent: -1},
	}, nil, nil)
	require.NoError(t, err)

	added, err := s.ResolveImports()
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	symbols, err := s.SymbolsForFile(aID)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	edges, err := s.EdgesForSymbols([]int64{symbols[0].ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "imports", edges[0].Kind)

	// A second pass finds nothing new and duplicates nothing.
	added, err = s.ResolveImports()
	require.NoError(t, err)
	assert.Zero(t, added)
	edges, err = s.EdgesForSymbols([]int64{symbols[0].ID})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestResolveImports_SurvivesTargetReingest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	aID, err := s.UpsertFile(pyFile("a.py", "import b\n", 1), nil, []store.SymbolSpec{
		{Symbol: store.Symbol{Name: "a", Kind: "module", StartLine: 1, EndLine: 1}, Parent: -1},
	}, nil, []string{"b"})
	require.NoError(t, err)
	b := pyFile("b.py", "x = 1\n", 1)
	_, err = s.UpsertFile(b, nil, []store.SymbolSpec{
		{Symbol: store.Symbol{Name: "b", Kind: "module", StartLine: 1, EndLine: 1}, Parent: -1},
	}, nil, nil)
	require.NoError(t, err)

	added, err := s.ResolveImports()
	require.NoError(t, err)
	require.Equal(t, 1, added)

	// Re-ingesting b replaces its module symbol and cascades the edge away.
	b.Content = "x = 2\n"
	b.Hash = "hash-b2"
	_, err = s.UpsertFile(b, nil, []store.SymbolSpec{
		{Symbol: store.Symbol{Name: "b", Kind: "module", StartLine: 1, EndLine: 1}, Parent: -1},
	}, nil, nil)
	require.NoError(t, err)

	added, err = s.ResolveImports()
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	symbols, err := s.SymbolsForFile(aID)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	edges, err := s.EdgesForSymbols([]int64{symbols[0].ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "imports", edges[0].Kind)
}

func TestReportVersions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id1, err := s.SaveReportVersion(store.ReportVersion{RunID: "run-1", Iteration: 1, Content: "# v1", ValidCitations: 1, InvalidCitations: 2})
	require.NoError(t, err)
	id2, err := s.SaveReportVersion(store.ReportVersion{RunID: "run-1", Iteration: 2, Content: "# v2", ValidCitations: 3})
	require.NoError(t, err)

	versions, err := s.ListReportVersions()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, id1, versions[0].ID)
	assert.Empty(t, versions[0].Content)

	v, err := s.GetReportVersion(id2)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "# v2", v.Content)

	latest, err := s.LatestReportVersion()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Iteration)
}

func TestMeta(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	v, err := s.GetMeta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	require.NoError(t, s.SetMeta("last_run", "abc"))
	require.NoError(t, s.SetMeta("last_run", "def"))
	v, err = s.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	v, err = s.GetMeta("absent")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
