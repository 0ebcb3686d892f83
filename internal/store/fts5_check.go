//go:build !sqlite_fts5

package store

// The full-text index uses SQLite's FTS5 module, which mattn/go-sqlite3
// compiles in only under the sqlite_fts5 build tag. Without the tag, Open
// fails at runtime with "no such module: fts5". Failing here surfaces the
// missing tag at compile time instead.
//
// Build and test with:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
//
// or use the Makefile targets, which set the tag.
var _ = thisPackageRequiresBuildTag_sqlite_fts5
