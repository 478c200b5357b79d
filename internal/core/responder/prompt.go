package responder

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReplyFormatInstructions asks a language model for the structured reply format.
const ReplyFormatInstructions = `Respond with a single JSON object and nothing else:
{"text": "<reply shown to the customer>", "intent": "<short intent label, e.g. general, faq, booking_request>", "confidence": <number between 0 and 1>, "bookingData": <object with service, date, time when the customer wants to book, otherwise null>}`

// SystemPrompt builds the system prompt for an LLM backend.
func SystemPrompt(req *ReplyRequest) string {
	var b strings.Builder
	b.WriteString("You are the live chat assistant")
	if req.Business != nil && req.Business.Name != "" {
		fmt.Fprintf(&b, " of %s", req.Business.Name)
	}
	b.WriteString(". Keep answers short and friendly.\n")

	if req.Business != nil {
		if req.Business.Description != "" {
			fmt.Fprintf(&b, "About the business: %s\n", req.Business.Description)
		}
		if req.Business.Timezone != "" {
			fmt.Fprintf(&b, "The business operates in the %s timezone.\n", req.Business.Timezone)
		}
		if req.Business.BookingEnabled {
			b.WriteString("Customers can book appointments through you; use a booking intent and fill bookingData when they ask to.\n")
		} else {
			b.WriteString("Online booking is not available; never use a booking intent.\n")
		}
	}
	if req.Participant != nil && req.Participant.Name != "" {
		fmt.Fprintf(&b, "The customer's name is %s.\n", req.Participant.Name)
	}
	if req.Participant != nil && req.Participant.Locale != "" {
		fmt.Fprintf(&b, "Reply in the customer's language (%s).\n", req.Participant.Locale)
	}

	b.WriteString(ReplyFormatInstructions)
	return b.String()
}

// GreetingInstruction is the user-side prompt of a greeting turn.
func GreetingInstruction(req *ReplyRequest) string {
	if req.Business != nil && req.Business.Greeting != "" {
		return req.Business.Greeting
	}
	return "A customer just opened the chat. Greet them and ask how you can help."
}

// ParseReply decodes the structured JSON reply of an LLM.
// Code fences around the object are tolerated.
func ParseReply(raw string) (*Reply, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("reply is not a JSON object")
	}

	var reply Reply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if err := Validate(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Validate rejects replies the pipeline cannot deliver.
func Validate(reply *Reply) error {
	if reply == nil {
		return fmt.Errorf("reply is empty")
	}
	if strings.TrimSpace(reply.Text) == "" {
		return fmt.Errorf("reply text is empty")
	}
	if reply.Confidence < 0 || reply.Confidence > 1 {
		return fmt.Errorf("reply confidence %.2f is outside [0,1]", reply.Confidence)
	}
	return nil
}
