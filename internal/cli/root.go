package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"arcane-scribe/internal/config"
)

type globalOptions struct {
	configPath     string
	logLevel       string
	verbose        bool
	dbDir          string
	embeddingModel string

	stdout io.Writer
	stderr io.Writer
}

// NewRootCmd builds the arcane command tree writing results to stdout and logs to stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:   "arcane",
		Short: "Arcane Scribe answers rules questions from your RPG rulebook PDFs",
		Long: `Arcane Scribe indexes RPG rulebook PDFs into a local vector database and
answers questions with a locally run language model, citing the pages it used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", config.DefaultConfigFile, "Path to the YAML config file")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&g.dbDir, "db-dir", config.DefaultDBDir, "Directory for the vector database")
	pf.StringVar(&g.embeddingModel, "embedding-model", config.DefaultEmbeddingModel, "Embedding model name as served by the embedding provider (for ollama it must be pulled first)")

	cmd.AddCommand(newIndexCmd(g), newAskCmd(g), newRestoreCmd(g))
	return cmd
}

// Run executes the command line in args and returns the process exit status.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// Execute is called by main.
func Execute() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// load reads the config file and applies the global flags that were set.
// Command flags are applied by the caller before validation.
func (g *globalOptions) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	flags := cmd.Flags()
	if flags.Changed("config") {
		if _, err := os.Stat(g.configPath); err != nil {
			return nil, zerolog.Nop(), fmt.Errorf("cannot read config: %w", err)
		}
	}
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if flags.Changed("db-dir") {
		cfg.DBDir = g.dbDir
	}
	if flags.Changed("embedding-model") {
		cfg.Embedding.Model = g.embeddingModel
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if g.verbose {
		cfg.Log.Level = zerolog.LevelDebugValue
	}

	log, err := newLogger(g.stderr, cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	redacted := *cfg
	if redacted.EncryptionKey != "" {
		redacted.EncryptionKey = "***"
	}
	log.Debug().Interface("config", redacted).Msg("Loaded config")
	return cfg, log, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	out := w
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logCtx := zerolog.New(out).Level(level).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logCtx = logCtx.Caller()
	}
	return logCtx.Logger(), nil
}
