package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/unifiedui/livechat-service/internal/api/protocol"
	"github.com/unifiedui/livechat-service/internal/client"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// renderEvent prints one client event as a single line.
func renderEvent(w io.Writer, ev client.Event) {
	if ev.Frame == nil {
		if ev.Err != nil {
			fmt.Fprintf(w, "* %s (%v)\n", ev.State, ev.Err)
			return
		}
		fmt.Fprintf(w, "* %s\n", ev.State)
		return
	}

	switch f := ev.Frame.(type) {
	case *protocol.JoinedMessage:
		fmt.Fprintf(w, "* joined, %d earlier messages\n", len(f.RecentHistory))
		for _, msg := range f.RecentHistory {
			fmt.Fprintln(w, formatMessage(msg))
		}
	case *protocol.MessageEvent:
		fmt.Fprintln(w, formatMessage(f.Message))
	case *protocol.TypingEvent:
		if f.Role == models.RoleAssistant && f.IsTyping {
			fmt.Fprintln(w, "  ...")
		}
	case *protocol.BookingIntentEvent:
		fmt.Fprintf(w, "* booking: %s\n", formatBooking(f.BookingData))
	case *protocol.ErrorMessage:
		fmt.Fprintf(w, "! %s: %s\n", f.Code, f.Message)
	case *protocol.SessionReplacedEvent:
		fmt.Fprintln(w, "* session opened elsewhere")
	}
}

func formatMessage(msg models.Message) string {
	who := "you"
	if msg.Role == models.RoleAssistant {
		who = "assistant"
	}
	return fmt.Sprintf("%s %s> %s", msg.Timestamp.Local().Format("15:04"), who, msg.Content)
}

func formatBooking(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, " ")
}
