package llmservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/local"
	"github.com/tmc/langchaingo/llms/ollama"

	"arcane-scribe/internal/config"
)

var ggufMagic = []byte("GGUF")

// ModelLoadError reports a model that could not be loaded.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// GenerationError reports a failed inference call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type GenerateParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

type generateFunc func(ctx context.Context, prompt string, params GenerateParams) (string, error)

// Runner generates text with a locally run model.
type Runner struct {
	generate generateFunc
	stop     []string
	defaults GenerateParams
	log      zerolog.Logger
}

// New loads the model configured in cfg.
func New(cfg config.LLMConfig, log zerolog.Logger) (*Runner, error) {
	r := &Runner{
		stop: cfg.Stop,
		defaults: GenerateParams{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
		log: log,
	}

	switch cfg.Provider {
	case config.ProviderLlamaCpp, "":
		if err := checkModelFile(cfg.ModelPath); err != nil {
			return nil, &ModelLoadError{Path: cfg.ModelPath, Err: err}
		}
		// resolves the binary on PATH
		if _, err := local.New(local.WithBin(cfg.Binary)); err != nil {
			return nil, &ModelLoadError{Path: cfg.ModelPath, Err: err}
		}
		r.generate = llamaCppGenerate(cfg)
	case config.ProviderOllama:
		if strings.TrimSpace(cfg.OllamaModel) == "" {
			return nil, &ModelLoadError{Path: cfg.OllamaModel, Err: errors.New("ollama model name is required")}
		}
		opts := []ollama.Option{
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.OllamaModel),
		}
		if cfg.NCtx > 0 {
			opts = append(opts, ollama.WithRunnerNumCtx(cfg.NCtx))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, &ModelLoadError{Path: cfg.OllamaModel, Err: err}
		}
		r.generate = modelGenerate(llm, cfg.Stop)
	default:
		return nil, &ModelLoadError{Path: cfg.ModelPath, Err: fmt.Errorf("unknown llm provider: %s", cfg.Provider)}
	}

	log.Debug().Str("provider", cfg.Provider).Str("model_path", cfg.ModelPath).Str("ollama_model", cfg.OllamaModel).Msg("Model loaded")
	return r, nil
}

// Wrap builds a Runner around any langchaingo model.
func Wrap(model llms.Model, stop []string) *Runner {
	return &Runner{
		generate: modelGenerate(model, stop),
		stop:     stop,
		log:      zerolog.Nop(),
	}
}

// Generate completes prompt and returns the text before the first stop sequence, trimmed.
func (r *Runner) Generate(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	if params.MaxTokens <= 0 {
		params.MaxTokens = r.defaults.MaxTokens
	}
	out, err := r.generate(ctx, prompt, params)
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	out = truncateAtStop(out, r.stop)
	r.log.Debug().Int("output_chars", len(out)).Msg("Generated answer")
	return strings.TrimSpace(out), nil
}

func modelGenerate(model llms.Model, stop []string) generateFunc {
	return func(ctx context.Context, prompt string, p GenerateParams) (string, error) {
		opts := []llms.CallOption{
			llms.WithTemperature(p.Temperature),
			llms.WithTopP(p.TopP),
		}
		if p.MaxTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
		}
		if len(stop) > 0 {
			opts = append(opts, llms.WithStopWords(stop))
		}
		return llms.GenerateFromSinglePrompt(ctx, model, prompt, opts...)
	}
}

// llamaCppGenerate runs the llama.cpp CLI once per call. The local client keeps
// appending prompts to its argument list, so it is rebuilt every time.
func llamaCppGenerate(cfg config.LLMConfig) generateFunc {
	return func(ctx context.Context, prompt string, p GenerateParams) (string, error) {
		llm, err := local.New(
			local.WithBin(cfg.Binary),
			local.WithArgs(strings.Join(llamaCppArgs(cfg, p), " ")),
		)
		if err != nil {
			return "", err
		}
		return llms.GenerateFromSinglePrompt(ctx, llm, prompt)
	}
}

// llamaCppArgs builds the llama-cli arguments; the prompt follows the trailing -p.
func llamaCppArgs(cfg config.LLMConfig, p GenerateParams) []string {
	args := []string{
		"-m", cfg.ModelPath,
		"-c", strconv.Itoa(cfg.NCtx),
		"-ngl", strconv.Itoa(cfg.NGPULayers),
		"-n", strconv.Itoa(p.MaxTokens),
		"--temp", strconv.FormatFloat(p.Temperature, 'f', -1, 64),
		"--top-p", strconv.FormatFloat(p.TopP, 'f', -1, 64),
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	for _, s := range cfg.Stop {
		// arguments are split on spaces
		if s == "" || strings.ContainsFunc(s, unicode.IsSpace) {
			continue
		}
		args = append(args, "-r", s)
	}
	args = append(args, "--no-display-prompt")
	for _, extra := range cfg.ExtraArgs {
		args = append(args, strings.Fields(extra)...)
	}
	return append(args, "-p")
}

func checkModelFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("model path is required")
	}
	if strings.ContainsFunc(path, unicode.IsSpace) {
		return errors.New("model path must not contain whitespace")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file")
	}
	magic := make([]byte, len(ggufMagic))
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != string(ggufMagic) {
		return errors.New("not a GGUF model file")
	}
	return nil
}

func truncateAtStop(text string, stop []string) string {
	cut := len(text)
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
