// Package anthropic provides a responder backed by the Anthropic messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/unifiedui/livechat-service/internal/core/responder"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"
	// DefaultMaxTokens bounds the reply length.
	DefaultMaxTokens = 1024
)

// Config holds the configuration for the Anthropic responder.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int64
	MaxRetries *int
	HTTPClient *http.Client
}

// Responder implements responder.Responder using Anthropic.
type Responder struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates a new Anthropic responder.
func New(cfg *Config) (*Responder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Responder{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// GenerateReply asks the model for a structured reply.
func (r *Responder) GenerateReply(ctx context.Context, req *responder.ReplyRequest) (*responder.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: responder.SystemPrompt(req)}},
		Messages:  buildMessages(req),
	}

	message, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	if len(message.Content) == 0 {
		return nil, fmt.Errorf("no response content returned")
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}

	return responder.ParseReply(content.String())
}

// buildMessages converts the history. The API requires the first message to be
// from the user, so leading assistant turns are folded into the greeting cue.
func buildMessages(req *responder.ReplyRequest) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)

	for _, msg := range req.History {
		if len(messages) == 0 && msg.Role != models.RoleUser {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock("(chat opened)")))
		}
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	if req.Greeting || len(messages) == 0 {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(responder.GreetingInstruction(req))))
	}
	return messages
}
