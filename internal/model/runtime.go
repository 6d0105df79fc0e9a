package model

import (
	"context"
	"image"
	"log/slog"
)

// Role of a chat turn.
type Role string

const RoleUser Role = "user"

// Part is one piece of a multimodal message: either an image or text.
type Part struct {
	Image image.Image
	Text  string
}

// IsImage reports whether the part carries an image.
func (p Part) IsImage() bool { return p.Image != nil }

// Message is one chat turn.
type Message struct {
	Role  Role
	Parts []Part
}

// UserMessage builds the single user turn sent for an extraction: the image first,
// then the instruction.
func UserMessage(img image.Image, prompt string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Image: img}, {Text: prompt}},
	}
}

// GenerateRequest asks the runtime for one completion. The runtime applies the
// model's chat template with the generation prompt appended.
type GenerateRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Seed        int
}

// Generation is the newly generated text, special tokens removed.
type Generation struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
}

// Runtime executes generation for a loaded model.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
	Close() error
}

// Launcher starts (or attaches to) a runtime serving the model described by h and
// returns once it is ready for inference.
type Launcher func(ctx context.Context, h Handle, logger *slog.Logger) (Runtime, error)
