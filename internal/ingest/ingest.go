package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"arcane-scribe/internal/helper"
	"arcane-scribe/internal/models"
	"arcane-scribe/internal/parser"
)

// Extractor turns a document into its non-empty pages.
type Extractor interface {
	Extract(path string) ([]models.Page, error)
}

type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

type Store interface {
	Add(ctx context.Context, ids, texts []string, embeddings [][]float32, metadatas []models.ChunkMetadata) error
	Reset(ctx context.Context) error
}

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Path   string `json:"path"`
	Chunks int    `json:"chunks"`
	Err    error  `json:"-"`
}

type Result struct {
	RunID       string       `json:"run_id"`
	Files       []FileResult `json:"files"`
	Failures    []FileResult `json:"-"`
	TotalChunks int          `json:"total_chunks"`
}

type Ingester struct {
	store     Store
	extractor Extractor
	embedder  Embedder
	chunkSize int
	overlap   int
	workers   int
	log       zerolog.Logger

	addMu sync.Mutex
}

type Option func(*Ingester)

func WithChunking(size, overlap int) Option {
	return func(i *Ingester) {
		i.chunkSize = size
		i.overlap = overlap
	}
}

// WithWorkers sets how many files are processed concurrently.
func WithWorkers(n int) Option {
	return func(i *Ingester) {
		i.workers = max(n, 1)
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(i *Ingester) {
		i.log = log
	}
}

func New(store Store, extractor Extractor, embedder Embedder, opts ...Option) *Ingester {
	i := &Ingester{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		chunkSize: parser.DefaultChunkSize,
		overlap:   parser.DefaultChunkOverlap,
		workers:   1,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ProcessDirectory ingests every PDF directly inside dir. Extraction and
// embedding failures are recorded per file; a store failure aborts the run.
func (i *Ingester) ProcessDirectory(ctx context.Context, dir string, reset bool) (*Result, error) {
	runID, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	log := i.log.With().Str("run_id", runID).Logger()
	res := &Result{RunID: runID}

	files, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	if reset {
		log.Info().Msg("Resetting collection")
		if err := i.store.Reset(ctx); err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		log.Warn().Str("dir", dir).Msg("No PDF files found")
		return res, nil
	}
	log.Info().Msgf("Found %d PDF files in %s", len(files), dir)

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for idx, path := range files {
		g.Go(func() error {
			fr, err := i.processFile(gctx, path, log)
			results[idx] = fr
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, fr := range results {
		res.Files = append(res.Files, fr)
		if fr.Err != nil {
			res.Failures = append(res.Failures, fr)
			continue
		}
		res.TotalChunks += fr.Chunks
	}
	log.Info().
		Int("files", len(files)).
		Int("failures", len(res.Failures)).
		Int("total_chunks", res.TotalChunks).
		Msg("Ingestion finished")
	return res, nil
}

func (i *Ingester) processFile(ctx context.Context, path string, log zerolog.Logger) (FileResult, error) {
	fr := FileResult{Path: path}
	name := filepath.Base(path)
	if err := ctx.Err(); err != nil {
		return fr, err
	}

	pages, err := i.extractor.Extract(path)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("Error extracting document")
		fr.Err = err
		return fr, nil
	}

	var (
		ids   []string
		texts []string
		metas []models.ChunkMetadata
	)
	for _, page := range pages {
		for idx, text := range parser.ChunkText(page.Text, i.chunkSize, i.overlap) {
			ids = append(ids, models.ChunkID(page.SourceFile, page.PageNumber, idx))
			texts = append(texts, text)
			metas = append(metas, models.NewChunkMetadata(page, idx, text))
		}
	}
	if len(texts) == 0 {
		log.Warn().Str("file", name).Msg("No text extracted")
		return fr, nil
	}

	vectors, err := i.embedder.EmbedMany(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return fr, ctx.Err()
		}
		log.Error().Err(err).Str("file", name).Msg("Error generating embedding")
		fr.Err = err
		return fr, nil
	}

	i.addMu.Lock()
	err = i.store.Add(ctx, ids, texts, vectors, metas)
	i.addMu.Unlock()
	if err != nil {
		fr.Err = err
		return fr, fmt.Errorf("failed to store %s: %w", name, err)
	}

	fr.Chunks = len(texts)
	log.Info().Str("file", name).Int("pages", len(pages)).Int("chunks", fr.Chunks).Msg("Indexed file")
	return fr, nil
}

// ListPDFs returns the files directly inside dir whose name ends in ".pdf",
// sorted by name. The match is case-sensitive.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pdf" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
