package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"arcane-scribe/internal/chromemdb"
	"arcane-scribe/internal/embedding"
	"arcane-scribe/internal/ingest"
	"arcane-scribe/internal/parser"
)

type indexOptions struct {
	reset        bool
	chunkSize    int
	chunkOverlap int
	workers      int
	export       string
}

func newIndexCmd(g *globalOptions) *cobra.Command {
	o := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index <pdf_dir>",
		Short: "Extract, chunk, embed and store every PDF in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, g, o, args[0])
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.reset, "reset", false, "Drop the collection before indexing")
	f.IntVar(&o.chunkSize, "chunk-size", parser.DefaultChunkSize, "Chunk size in characters")
	f.IntVar(&o.chunkOverlap, "chunk-overlap", parser.DefaultChunkOverlap, "Overlap between consecutive chunks in characters")
	f.IntVar(&o.workers, "workers", 1, "Number of files processed in parallel")
	f.StringVar(&o.export, "export", "", "Write a backup of the collection to this file after indexing")
	return cmd
}

func runIndex(cmd *cobra.Command, g *globalOptions, o *indexOptions, dir string) error {
	cfg, log, err := g.load(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.Chunk.Size = o.chunkSize
	}
	if flags.Changed("chunk-overlap") {
		cfg.Chunk.Overlap = o.chunkOverlap
	}
	if flags.Changed("workers") {
		cfg.Ingest.Workers = o.workers
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ctx := cmd.Context()

	unlock, err := lockDB(ctx, cfg.DBDir, true, log)
	if err != nil {
		return err
	}
	defer unlock()

	embedder, err := embedding.New(cfg.Embedding, log)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	store, err := chromemdb.NewVectorDBManager(cfg.DBDir, embedder.Embed)
	if err != nil {
		return err
	}

	ingester := ingest.New(store, parser.PDFExtractor{}, embedder,
		ingest.WithChunking(cfg.Chunk.Size, cfg.Chunk.Overlap),
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithLogger(log),
	)
	res, err := ingester.ProcessDirectory(ctx, dir, o.reset)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	if err := printIndexResult(g.stdout, cfg.DBDir, res, stats); err != nil {
		return err
	}

	if o.export != "" {
		if err := store.Export(o.export, cfg.EncryptionKey); err != nil {
			return err
		}
		log.Info().Str("file", o.export).Bool("encrypted", cfg.EncryptionKey != "").Msg("Exported collection")
	}
	return nil
}
