package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scribe/internal/parser"
	"scribe/internal/store"
	"scribe/internal/walker"
)

// Stats reports the outcome of one ingest run.
type Stats struct {
	FilesTotal   int
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	ChunksTotal  int
	SymbolsTotal int
}

// fileWork is a file that needs to be (re-)parsed and stored.
type fileWork struct {
	info walker.FileInfo
	hash string
	src  []byte
}

// parsedFile is a file with its structural facts ready to persist.
type parsedFile struct {
	work   fileWork
	result parser.Result
}

// Ingester walks a directory tree, parses each file, and persists the
// results. Parsing is fanned out across workers; all writes go through
// a single goroutine so the store sees one writer.
type Ingester struct {
	store   store.Store
	parser  *parser.Parser
	workers int
	logger  *zap.Logger
}

func New(st store.Store, p *parser.Parser, workers int, logger *zap.Logger) *Ingester {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{store: st, parser: p, workers: workers, logger: logger}
}

// Run ingests every text file under root. Unchanged files are skipped by
// hash before parsing. After all files are stored, import references are
// resolved into cross-file edges.
func (ig *Ingester) Run(ctx context.Context, root string) (*Stats, error) {
	stats := &Stats{}
	var readFailed int

	workCh := make(chan fileWork, ig.workers)
	parsedCh := make(chan parsedFile, ig.workers)

	g, gctx := errgroup.WithContext(ctx)
	// The walker shares the group context so an aborted pipeline unblocks
	// it instead of leaving it stuck on a full channel.
	fileCh, walkErrCh := walker.Walk(gctx, root)

	// Hash and filter unchanged files.
	g.Go(func() error {
		defer close(workCh)
		for fi := range fileCh {
			if err := gctx.Err(); err != nil {
				return err
			}
			stats.FilesTotal++
			src, err := os.ReadFile(fi.Path)
			if err != nil {
				ig.logger.Warn("read failed", zap.String("path", fi.RelPath), zap.Error(err))
				readFailed++
				continue
			}
			h := sha256.Sum256(src)
			hash := hex.EncodeToString(h[:])

			existing, err := ig.store.GetFileHash(fi.RelPath)
			if err != nil {
				return fmt.Errorf("get hash %s: %w", fi.RelPath, err)
			}
			if existing == hash {
				stats.FilesSkipped++
				continue
			}
			select {
			case workCh <- fileWork{info: fi, hash: hash, src: src}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Parse workers.
	var parseGroup errgroup.Group
	for range ig.workers {
		parseGroup.Go(func() error {
			for w := range workCh {
				res, err := ig.parser.Parse(w.info.RelPath, w.src)
				if err != nil {
					return fmt.Errorf("parse %s: %w", w.info.RelPath, err)
				}
				select {
				case parsedCh <- parsedFile{work: w, result: res}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(parsedCh)
		return parseGroup.Wait()
	})

	// Single writer.
	g.Go(func() error {
		for pf := range parsedCh {
			if _, err := ig.storeFile(pf); err != nil {
				return err
			}
			if pf.result.Failed {
				stats.FilesFailed++
			}
			stats.FilesIndexed++
			stats.ChunksTotal += len(pf.result.Chunks)
			stats.SymbolsTotal += len(pf.result.Symbols)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.FilesFailed += readFailed
	if err := <-walkErrCh; err != nil {
		return stats, fmt.Errorf("walk: %w", err)
	}

	// Cross-file import edges can only resolve once every module symbol
	// exists. Re-ingesting a file drops the edges that pointed at its old
	// module symbol, so resolution covers all stored files, not just the
	// ones parsed this run.
	if _, err := ig.store.ResolveImports(); err != nil {
		return stats, fmt.Errorf("resolve imports: %w", err)
	}

	ig.logger.Info("ingest complete",
		zap.Int("total", stats.FilesTotal),
		zap.Int("indexed", stats.FilesIndexed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("failed", stats.FilesFailed),
		zap.Int("chunks", stats.ChunksTotal))
	return stats, nil
}

// IngestFile parses and stores a single file's content under the given
// path. Used when a file is read on demand rather than through a walk.
func (ig *Ingester) IngestFile(path string, src []byte) (int64, error) {
	h := sha256.Sum256(src)
	hash := hex.EncodeToString(h[:])

	existing, err := ig.store.GetFileHash(path)
	if err != nil {
		return 0, err
	}
	if existing == hash {
		f, err := ig.store.GetFile(path)
		if err != nil || f == nil {
			return 0, err
		}
		return f.ID, nil
	}

	res, err := ig.parser.Parse(path, src)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	fileID, err := ig.storeFile(parsedFile{
		work:   fileWork{info: walker.FileInfo{RelPath: path, Size: int64(len(src))}, hash: hash, src: src},
		result: res,
	})
	if err != nil {
		return 0, err
	}
	if _, err := ig.store.ResolveImports(); err != nil {
		return 0, err
	}
	return fileID, nil
}

func (ig *Ingester) storeFile(pf parsedFile) (int64, error) {
	content := string(pf.work.src)
	rec := store.FileRecord{
		Path:        pf.work.info.RelPath,
		Content:     content,
		Hash:        pf.work.hash,
		Language:    pf.result.Language,
		LineCount:   parser.CountLines(content),
		SizeBytes:   int64(len(pf.work.src)),
		ParseFailed: pf.result.Failed,
	}

	chunks := make([]store.Chunk, len(pf.result.Chunks))
	for i, c := range pf.result.Chunks {
		h := sha256.Sum256([]byte(c.Text))
		chunks[i] = store.Chunk{
			Name:      c.Name,
			Kind:      c.Kind,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Text:      c.Text,
			Hash:      hex.EncodeToString(h[:]),
		}
	}

	symbols := make([]store.SymbolSpec, len(pf.result.Symbols))
	for i, s := range pf.result.Symbols {
		symbols[i] = store.SymbolSpec{
			Symbol: store.Symbol{
				Name:      s.Name,
				Kind:      s.Kind,
				Signature: s.Signature,
				Doc:       s.Doc,
				StartLine: s.StartLine,
				EndLine:   s.EndLine,
			},
			Parent: s.Parent,
		}
	}

	edges := make([]store.EdgeSpec, len(pf.result.Edges))
	for i, e := range pf.result.Edges {
		edges[i] = store.EdgeSpec{Src: e.Src, Dst: e.Dst, Kind: e.Kind}
	}

	imports := make([]string, 0, len(pf.result.Imports))
	for _, imp := range pf.result.Imports {
		imports = append(imports, imp.Module)
	}

	fileID, err := ig.store.UpsertFile(rec, chunks, symbols, edges, imports)
	if err != nil {
		return 0, fmt.Errorf("store %s: %w", pf.work.info.RelPath, err)
	}
	return fileID, nil
}
