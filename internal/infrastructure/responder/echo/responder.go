// Package echo provides a backend-free responder for local development.
package echo

import (
	"context"
	"fmt"
	"strings"

	"github.com/unifiedui/livechat-service/internal/core/responder"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// Responder answers by repeating the user's text.
type Responder struct{}

// New creates an echo responder.
func New() *Responder {
	return &Responder{}
}

// GenerateReply echoes the message. Texts mentioning "book" produce a booking intent.
func (r *Responder) GenerateReply(ctx context.Context, req *responder.ReplyRequest) (*responder.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Greeting {
		name := "us"
		if req.Business != nil && req.Business.Name != "" {
			name = req.Business.Name
		}
		return &responder.Reply{
			Text:       fmt.Sprintf("Hi! Thanks for contacting %s. How can I help?", name),
			Intent:     models.IntentGreet,
			Confidence: 1,
		}, nil
	}

	reply := &responder.Reply{
		Text:       "You said: " + req.Message,
		Intent:     "general",
		Confidence: 1,
	}
	if strings.Contains(strings.ToLower(req.Message), "book") {
		reply.Intent = models.IntentBooking + "_request"
		reply.BookingData = map[string]any{"request": req.Message}
	}
	return reply, nil
}
