package citation_test

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/citation"
	"scribe/internal/store"
)

// tenLineStore caches a.py with exactly ten lines: "line 1" .. "line 10".
func tenLineStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	content := b.String()
	_, err = s.UpsertFile(store.FileRecord{
		Path: "a.py", Content: content, Hash: "h1", Language: "python",
		LineCount: 10, SizeBytes: int64(len(content)),
	}, nil, nil, nil, nil)
	require.NoError(t, err)
	return s
}

func TestValidate_ValidCitation(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)

	res, err := citation.Validate(s, citation.Citation{Path: "a.py", Start: 3, End: 5})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, citation.ErrNone, res.Err)
	assert.Equal(t, "line 3\nline 4\nline 5", res.Content)
}

func TestValidate_LineOutOfRange(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)

	res, err := citation.Validate(s, citation.Citation{Path: "a.py", Start: 11, End: 12})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, citation.ErrLineOutOfRange, res.Err)
}

func TestValidate_FileNotCached(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)

	res, err := citation.Validate(s, citation.Citation{Path: "b.py", Start: 1, End: 2})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, citation.ErrFileNotCached, res.Err)
}

func TestValidate_EndBeforeStart(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)

	res, err := citation.Validate(s, citation.Citation{Path: "a.py", Start: 5, End: 3})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, citation.ErrEndBeforeStart, res.Err)
}

func TestValidate_ChecksFileBeforeRange(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)

	// A missing file wins over a bad range.
	res, err := citation.Validate(s, citation.Citation{Path: "b.py", Start: 5, End: 3})
	require.NoError(t, err)
	assert.Equal(t, citation.ErrFileNotCached, res.Err)
}

func TestValidate_FullFileSpan(t *testing.T) {
	t.Parallel()
	s := tenLineStore(t)

	res, err := citation.Validate(s, citation.Citation{Path: "a.py", Start: 1, End: 10})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Len(t, strings.Split(res.Content, "\n"), 10)
}
