package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"arcane-scribe/internal/chromemdb"
	"arcane-scribe/internal/embedding"
	"arcane-scribe/internal/helper"
)

func newRestoreCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup_file>",
		Short: "Replace the collection with a backup written by index --export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, g, args[0])
		},
	}
}

func runRestore(cmd *cobra.Command, g *globalOptions, backup string) error {
	cfg, log, err := g.load(cmd)
	if err != nil {
		return err
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
	if err := store.Import(backup, cfg.EncryptionKey); err != nil {
		return err
	}
	log.Info().Str("file", backup).Int("chunks", store.Count()).Msg("Restored collection")

	// the sample needs the embedding server; the restore itself is already done
	stats, err := store.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not sample the restored collection")
	}
	return helper.PrettyPrint(g.stdout, stats)
}
