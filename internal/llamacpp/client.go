package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
	"github.com/joseph-ayodele/vlm-ocr/internal/model"
	"github.com/joseph-ayodele/vlm-ocr/internal/runner"
)

// Client is a model.Runtime backed by a llama-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	proc       *process // nil when attached to a server we did not start
}

var _ model.Runtime = (*Client)(nil)

// NewClient talks to the llama-server at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL is the server root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate runs one chat completion. The server applies the chat template and
// returns only the new tokens, detokenized without special tokens.
func (c *Client) Generate(ctx context.Context, req model.GenerateRequest) (model.Generation, error) {
	logger := common.LoggerFromContext(ctx, c.logger)

	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return model.Generation{}, err
	}
	body := map[string]any{
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"top_k":       1,
		"seed":        req.Seed,
		"stream":      false,
	}

	raw, status, err := sendJSON(ctx, c.httpClient, c.baseURL+"/v1/chat/completions", body, logger)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Generation{}, fmt.Errorf("chat completion: %w", ctxErr)
		}
		if status != 0 {
			err = fmt.Errorf("%w: %s", err, runner.Truncate(strings.TrimSpace(string(raw)), 512))
		}
		return model.Generation{}, common.NewRuntimeError("chat completion failed", err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return model.Generation{}, common.NewRuntimeError("decode chat completion", err)
	}
	if len(cc.Choices) == 0 {
		return model.Generation{}, common.NewRuntimeError("decode chat completion", errors.New("no choices in response"))
	}
	return model.Generation{
		Text:             cc.Choices[0].Message.Content,
		PromptTokens:     cc.Usage.PromptTokens,
		CompletionTokens: cc.Usage.CompletionTokens,
		FinishReason:     cc.Choices[0].FinishReason,
	}, nil
}

func encodeMessages(msgs []model.Message) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		content := make([]map[string]any, 0, len(m.Parts))
		for _, p := range m.Parts {
			if !p.IsImage() {
				content = append(content, map[string]any{"type": "text", "text": p.Text})
				continue
			}
			url, err := pngDataURL(p.Image)
			if err != nil {
				return nil, fmt.Errorf("encode image: %w", err)
			}
			content = append(content, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": url},
			})
		}
		out = append(out, map[string]any{"role": string(m.Role), "content": content})
	}
	return out, nil
}

// Close stops the server when this client launched it.
func (c *Client) Close() error {
	if c.proc == nil {
		return nil
	}
	return c.proc.stop()
}
