package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/ingest"
	"scribe/internal/parser"
	"scribe/internal/parser/languages"
	"scribe/internal/store"
)

func newIngester(t *testing.T, s store.Store) *ingest.Ingester {
	t.Helper()
	reg := parser.NewRegistry()
	languages.RegisterGo(reg)
	languages.RegisterPython(reg)
	return ingest.New(s, parser.New(reg), 2, nil)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestRun_IndexesTree(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	root := writeTree(t, map[string]string{
		"checks.py":  "def validate(req):\n    return bool(req)\n",
		"handler.py": "import checks\n\ndef handle(req):\n    return checks.validate(req)\n",
		"README.md":  "Request handling.\n\nValidation lives in checks.\n",
	})

	stats, err := newIngester(t, s).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesTotal)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
	assert.Greater(t, stats.ChunksTotal, 0)
	assert.Greater(t, stats.SymbolsTotal, 0)

	f, err := s.GetFile("handler.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "python", f.Language)
	assert.Equal(t, 4, f.LineCount)

	// Import edge handler -> checks resolved after the main pass.
	symbols, err := s.SymbolsForFile(f.ID)
	require.NoError(t, err)
	var moduleID int64
	for _, sym := range symbols {
		if sym.Kind == "module" {
			moduleID = sym.ID
		}
	}
	require.NotZero(t, moduleID)
	edges, err := s.EdgesForSymbols([]int64{moduleID})
	require.NoError(t, err)
	found := false
	for _, e := range edges {
		if e.Kind == "imports" && e.SrcSymbolID == moduleID {
			found = true
		}
	}
	assert.True(t, found, "expected an imports edge from handler's module symbol")
}

func TestRun_SecondRunSkipsUnchanged(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	root := writeTree(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
	})
	ig := newIngester(t, s)

	_, err = ig.Run(context.Background(), root)
	require.NoError(t, err)

	stats, err := ig.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Equal(t, 0, stats.FilesIndexed)
}

func TestRun_ChangedFileReindexed(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	root := writeTree(t, map[string]string{"a.py": "def old():\n    pass\n"})
	ig := newIngester(t, s)
	_, err = ig.Run(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def renamed():\n    pass\n"), 0o644))
	stats, err := ig.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)

	matches, err := s.SearchFTS("renamed", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
	matches, err = s.SearchFTS("old", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// importEdgeCount counts imports edges leaving path's module symbol.
func importEdgeCount(t *testing.T, s store.Store, path string) int {
	t.Helper()
	f, err := s.GetFile(path)
	require.NoError(t, err)
	require.NotNil(t, f)
	symbols, err := s.SymbolsForFile(f.ID)
	require.NoError(t, err)
	var moduleID int64
	for _, sym := range symbols {
		if sym.Kind == "module" {
			moduleID = sym.ID
		}
	}
	require.NotZero(t, moduleID)
	edges, err := s.EdgesForSymbols([]int64{moduleID})
	require.NoError(t, err)
	n := 0
	for _, e := range edges {
		if e.Kind == "imports" && e.SrcSymbolID == moduleID {
			n++
		}
	}
	return n
}

func TestRun_ImportEdgeSurvivesTargetChange(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	root := writeTree(t, map[string]string{
		"checks.py":  "def validate(req):\n    return bool(req)\n",
		"handler.py": "import checks\n\ndef handle(req):\n    return checks.validate(req)\n",
	})
	ig := newIngester(t, s)
	_, err = ig.Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, 1, importEdgeCount(t, s, "handler.py"))

	// Changing only the imported file replaces its module symbol. The
	// unchanged importer's edge must be re-resolved, not lost.
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "checks.py"),
		[]byte("def validate(req):\n    return req is not None\n"), 0o644))
	stats, err := ig.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, importEdgeCount(t, s, "handler.py"))
}

func TestIngestFile_Idempotent(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ig := newIngester(t, s)

	src := []byte("def f():\n    pass\n")
	id1, err := ig.IngestFile("f.py", src)
	require.NoError(t, err)
	id2, err := ig.IngestFile("f.py", src)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	chunks, err := s.ChunksForFile(id1)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestRun_SkipsBinaryAndIgnoredDirs(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	root := writeTree(t, map[string]string{
		"a.py":                "x = 1\n",
		"node_modules/dep.js": "module.exports = 1\n",
		"__pycache__/a.pyc":   "cached\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x7f, 0x00, 0x01, 0x02}, 0o644))

	_, err = newIngester(t, s).Run(context.Background(), root)
	require.NoError(t, err)

	files, err := s.ListFiles()
	require.NoError(t, err)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, "a.py")
	assert.NotContains(t, paths, "node_modules/dep.js")
	assert.NotContains(t, paths, "__pycache__/a.pyc")
	assert.NotContains(t, paths, "blob.bin")
}
