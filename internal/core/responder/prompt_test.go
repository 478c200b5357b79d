package responder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/livechat-service/internal/core/responder"
	"github.com/unifiedui/livechat-service/tests/testutils"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		intent  string
		wantErr bool
	}{
		{name: "plain object", raw: `{"text":"Hi","intent":"general","confidence":0.8}`, intent: "general"},
		{name: "fenced", raw: "```json\n{\"text\":\"Hi\",\"intent\":\"faq\",\"confidence\":1}\n```", intent: "faq"},
		{name: "prose around object", raw: `Sure! {"text":"Hi","intent":"general","confidence":0}`, intent: "general"},
		{name: "not json", raw: "hello there", wantErr: true},
		{name: "empty text", raw: `{"text":"  ","intent":"general","confidence":0.5}`, wantErr: true},
		{name: "confidence too high", raw: `{"text":"Hi","intent":"general","confidence":1.5}`, wantErr: true},
		{name: "negative confidence", raw: `{"text":"Hi","intent":"general","confidence":-0.1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := responder.ParseReply(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.intent, reply.Intent)
		})
	}
}

func TestParseReply_BookingData(t *testing.T) {
	reply, err := responder.ParseReply(`{"text":"Booked","intent":"booking_request","confidence":0.9,"bookingData":{"service":"haircut","date":"2024-05-02"}}`)

	require.NoError(t, err)
	assert.Equal(t, "haircut", reply.BookingData["service"])
}

func TestSystemPrompt_UsesBusinessAndParticipant(t *testing.T) {
	req := &responder.ReplyRequest{
		Business:    testutils.NewTestBusinessContext(),
		Participant: testutils.NewTestParticipant(),
	}

	prompt := responder.SystemPrompt(req)

	assert.Contains(t, prompt, "Test Salon")
	assert.Contains(t, prompt, "Europe/Berlin")
	assert.Contains(t, prompt, "Ada")
	assert.Contains(t, prompt, "bookingData")
}

func TestGreetingInstruction(t *testing.T) {
	biz := testutils.NewTestBusinessContext()

	assert.Equal(t, biz.Greeting, responder.GreetingInstruction(&responder.ReplyRequest{Business: biz}))
	assert.Contains(t, responder.GreetingInstruction(&responder.ReplyRequest{}), "Greet")
}
