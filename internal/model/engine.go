// Package model owns the loaded vision-language model and runs extractions against it.
package model

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
	"github.com/joseph-ayodele/vlm-ocr/internal/output"
	"github.com/joseph-ayodele/vlm-ocr/internal/runner"
)

// DefaultSeed keeps sampling reproducible; temperature 0 already selects greedy decoding.
const DefaultSeed = 42

// Config describes how to load the model.
type Config struct {
	Path        string
	MaxTokens   int
	Device      Device
	Concurrency int
	// Strict rejects outputs that are not a ```json fenced block.
	Strict bool
}

// Handle is the immutable description of the loaded model.
type Handle struct {
	Device      Device
	MaxTokens   int
	Concurrency int
	Artifacts   Artifacts
	// PadTokenID equals the EOS token id when the model declares one.
	PadTokenID *int
}

// Engine runs extractions on one loaded model. It is safe for concurrent use.
type Engine struct {
	handle  Handle
	runtime Runtime
	slots   *semaphore.Weighted
	strict  bool
	schema  *output.SchemaValidator
	logger  *slog.Logger
}

type Option func(*engineOptions)

type engineOptions struct {
	runner runner.Runner
	schema *output.SchemaValidator
}

// WithRunner sets the command runner used for device probing.
func WithRunner(r runner.Runner) Option {
	return func(o *engineOptions) { o.runner = r }
}

// WithSchema validates fenced outputs against s after cleanup.
func WithSchema(s *output.SchemaValidator) Option {
	return func(o *engineOptions) { o.schema = s }
}

// New resolves the device and artifacts and brings up the runtime. Every failure
// is reported as common.ErrModelLoad wrapping its cause.
func New(ctx context.Context, cfg Config, launch Launcher, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := engineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = runner.New(logger)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = common.DefaultMaxTokens
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	if launch == nil {
		return nil, common.NewModelLoadError(errors.New("no runtime launcher configured"))
	}

	start := time.Now()
	h, err := load(ctx, cfg, o.runner, logger)
	if err != nil {
		logger.Error("model load failed", "path", cfg.Path, "error", err)
		return nil, common.NewModelLoadError(err)
	}
	rt, err := launch(ctx, h, logger)
	if err != nil {
		logger.Error("runtime start failed", "path", cfg.Path, "device", h.Device, "error", err)
		return nil, common.NewModelLoadError(err)
	}

	logger.Info("model loaded",
		"weights", h.Artifacts.Weights,
		"projector", h.Artifacts.Projector,
		"device", h.Device,
		"max_tokens", h.MaxTokens,
		"slots", h.Concurrency,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Engine{
		handle:  h,
		runtime: rt,
		slots:   semaphore.NewWeighted(int64(h.Concurrency)),
		strict:  cfg.Strict,
		schema:  o.schema,
		logger:  logger,
	}, nil
}

func load(ctx context.Context, cfg Config, r runner.Runner, logger *slog.Logger) (Handle, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return Handle{}, fmt.Errorf("model path is empty")
	}
	if cfg.MaxTokens < 0 {
		return Handle{}, fmt.Errorf("max tokens must be positive, got %d", cfg.MaxTokens)
	}
	device, err := ResolveDevice(ctx, cfg.Device, r, logger)
	if err != nil {
		return Handle{}, err
	}
	artifacts, err := ResolveArtifacts(cfg.Path)
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		Device:      device,
		MaxTokens:   cfg.MaxTokens,
		Concurrency: cfg.Concurrency,
		Artifacts:   artifacts,
		PadTokenID:  artifacts.EOSTokenID,
	}, nil
}

// Handle returns the loaded model description.
func (e *Engine) Handle() Handle { return e.handle }

// Extract asks the model to answer prompt about img and returns the cleaned answer.
// img must already be opaque 3-channel colour.
func (e *Engine) Extract(ctx context.Context, img image.Image, prompt string) (string, error) {
	if img == nil {
		return "", fmt.Errorf("image is required: %w", common.ErrInvalidInput)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is required: %w", common.ErrInvalidInput)
	}
	logger := common.LoggerFromContext(ctx, e.logger)

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	start := time.Now()
	gen, err := e.runtime.Generate(ctx, GenerateRequest{
		Messages:    []Message{UserMessage(img, prompt)},
		MaxTokens:   e.handle.MaxTokens,
		Temperature: 0,
		Seed:        DefaultSeed,
	})
	e.slots.Release(1)
	if err != nil {
		logger.Error("generation failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	if gen.CompletionTokens > e.handle.MaxTokens {
		return "", common.NewRuntimeError(
			fmt.Sprintf("runtime generated %d tokens, budget is %d", gen.CompletionTokens, e.handle.MaxTokens), nil)
	}

	out, err := output.Clean(gen.Text, e.strict)
	if err != nil {
		logger.Warn("unexpected output format", "raw", runner.Truncate(gen.Text, 512))
		return "", err
	}
	if e.schema != nil && output.IsFenced(gen.Text) {
		if err := e.schema.Validate(out); err != nil {
			return "", err
		}
	}

	logger.Info("extraction complete",
		"prompt_tokens", gen.PromptTokens,
		"completion_tokens", gen.CompletionTokens,
		"finish_reason", gen.FinishReason,
		"output_len", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Close stops the runtime.
func (e *Engine) Close() error {
	return e.runtime.Close()
}
