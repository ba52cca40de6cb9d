package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"arcane-scribe/internal/chromemdb"
	"arcane-scribe/internal/config"
	"arcane-scribe/internal/embedding"
	"arcane-scribe/internal/llmservice"
	"arcane-scribe/internal/rag"
)

type askOptions struct {
	modelPath   string
	k           int
	maxTokens   int
	temperature float64
	topP        float64
	nCtx        int
	nGPULayers  int
	provider    string
	ollamaModel string
}

func newAskCmd(g *globalOptions) *cobra.Command {
	o := &askOptions{}
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed rulebooks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, g, o, strings.Join(args, " "))
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.modelPath, "model-path", "", "Path to the GGUF model file")
	f.IntVar(&o.k, "k", def.Retrieval.K, "Number of chunks to retrieve")
	f.IntVar(&o.maxTokens, "max-tokens", def.LLM.MaxTokens, "Maximum tokens to generate")
	f.Float64Var(&o.temperature, "temperature", def.LLM.Temperature, "Sampling temperature")
	f.Float64Var(&o.topP, "top-p", def.LLM.TopP, "Nucleus sampling probability")
	f.IntVar(&o.nCtx, "n-ctx", def.LLM.NCtx, "Model context window in tokens")
	f.IntVar(&o.nGPULayers, "n-gpu-layers", def.LLM.NGPULayers, "Layers offloaded to the GPU")
	f.StringVar(&o.provider, "llm-provider", def.LLM.Provider, "LLM backend: llamacpp or ollama")
	f.StringVar(&o.ollamaModel, "ollama-model", "", "Model name served by Ollama")
	return cmd
}

func (o *askOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("model-path") {
		cfg.LLM.ModelPath = o.modelPath
	}
	if flags.Changed("k") {
		cfg.Retrieval.K = o.k
	}
	if flags.Changed("max-tokens") {
		cfg.LLM.MaxTokens = o.maxTokens
	}
	if flags.Changed("temperature") {
		cfg.LLM.Temperature = o.temperature
	}
	if flags.Changed("top-p") {
		cfg.LLM.TopP = o.topP
	}
	if flags.Changed("n-ctx") {
		cfg.LLM.NCtx = o.nCtx
	}
	if flags.Changed("n-gpu-layers") {
		cfg.LLM.NGPULayers = o.nGPULayers
	}
	if flags.Changed("llm-provider") {
		cfg.LLM.Provider = o.provider
	}
	if flags.Changed("ollama-model") {
		cfg.LLM.OllamaModel = o.ollamaModel
	}
}

func runAsk(cmd *cobra.Command, g *globalOptions, o *askOptions, question string) error {
	cfg, log, err := g.load(cmd)
	if err != nil {
		return err
	}
	o.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ctx := cmd.Context()

	unlock, err := lockDB(ctx, cfg.DBDir, false, log)
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

	asker := rag.NewAsker(rag.NewQueryEngine(store, embedder), &lazyRunner{cfg: cfg.LLM, log: log}, log)
	answer, err := asker.Ask(ctx, question, rag.AskOptions{
		K: cfg.Retrieval.K,
		Params: llmservice.GenerateParams{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
		},
	})
	if err != nil {
		return err
	}
	return printAnswer(g.stdout, answer)
}

// lazyRunner loads the model on first use, so questions without any
// retrieved context never pay for it.
type lazyRunner struct {
	cfg config.LLMConfig
	log zerolog.Logger

	once   sync.Once
	runner *llmservice.Runner
	err    error
}

func (l *lazyRunner) Generate(ctx context.Context, prompt string, params llmservice.GenerateParams) (string, error) {
	l.once.Do(func() {
		l.runner, l.err = llmservice.New(l.cfg, l.log)
	})
	if l.err != nil {
		return "", l.err
	}
	return l.runner.Generate(ctx, prompt, params)
}
