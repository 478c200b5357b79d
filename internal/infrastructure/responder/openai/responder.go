// Package openai provides a responder backed by the OpenAI chat completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/unifiedui/livechat-service/internal/core/responder"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Config holds the configuration for the OpenAI responder.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// MaxRetries overrides the SDK retry count when not nil.
	MaxRetries *int
	HTTPClient *http.Client
}

// Responder implements responder.Responder using OpenAI.
type Responder struct {
	client openai.Client
	model  string
}

// New creates a new OpenAI responder.
func New(cfg *Config) (*Responder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
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

	return &Responder{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// GenerateReply asks the model for a structured reply.
func (r *Responder) GenerateReply(ctx context.Context, req *responder.ReplyRequest) (*responder.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(r.model),
		Messages: buildMessages(req),
	}

	completion, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return responder.ParseReply(completion.Choices[0].Message.Content)
}

func buildMessages(req *responder.ReplyRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	messages = append(messages, openai.SystemMessage(responder.SystemPrompt(req)))

	for _, msg := range req.History {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	if req.Greeting {
		messages = append(messages, openai.UserMessage(responder.GreetingInstruction(req)))
	}
	return messages
}
