// Package main provides a terminal chat client for the live chat service.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unifiedui/livechat-service/internal/client"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

var version = "0.1.0"

// rootCmd starts an interactive chat session.
var rootCmd = &cobra.Command{
	Use:   "chat-client",
	Short: "Terminal client for the live chat service",
	Long: `chat-client joins a chat session over websocket and relays lines typed on stdin.
Commands: /retry resumes after repeated connection failures, /end terminates the session, /quit exits.`,
	RunE: runChat,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("chat-client v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("url", "ws://localhost:8080/ws", "Websocket URL of the chat service")
	flags.String("session", "", "Session ID to join or resume [default: random]")
	flags.String("business", "", "Business context ID")
	flags.String("participant", "", "Participant ID")
	flags.String("name", "", "Participant display name")
	flags.Int("max-retries", client.DefaultMaxRetries, "Automatic reconnects before waiting for /retry")
	flags.Duration("retry-delay", client.DefaultRetryDelay, "Delay between automatic reconnects")
	flags.Duration("ping-interval", client.DefaultPingInterval, "Health probe interval")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")

	for _, name := range []string{"url", "session", "business", "participant", "name", "max-retries", "retry-delay", "ping-interval", "log-level"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("CHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

func runChat(cmd *cobra.Command, _ []string) error {
	business := viper.GetString("business")
	if business == "" {
		return fmt.Errorf("--business (or CHAT_BUSINESS) is required")
	}
	sessionID := viper.GetString("session")
	if sessionID == "" {
		sessionID = "sess-" + uuid.NewString()
	}

	logger := newLogger()
	cfg := &client.Config{
		URL:               viper.GetString("url"),
		SessionID:         sessionID,
		BusinessContextID: business,
		ParticipantID:     viper.GetString("participant"),
		MaxRetries:        viper.GetInt("max-retries"),
		RetryDelay:        viper.GetDuration("retry-delay"),
		PingInterval:      viper.GetDuration("ping-interval"),
		Logger:            &logger,
	}
	if name := viper.GetString("name"); name != "" || cfg.ParticipantID != "" {
		cfg.Participant = &models.ParticipantInfo{ID: cfg.ParticipantID, Name: name}
	}

	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s\n", sessionID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.Events():
				renderEvent(out, ev)
			}
		}
	}()

	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(out, "! %v\n", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, out, c, line); done {
				return nil
			}
		}
	}
}

// handleLine runs one input line and reports whether the client should exit.
func handleLine(ctx context.Context, out io.Writer, c *client.Client, line string) bool {
	switch strings.TrimSpace(line) {
	case "/quit":
		return true
	case "/retry":
		if err := c.Retry(ctx); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
		return false
	case "/end":
		if err := c.Terminate(); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
		return false
	}

	if err := c.SendMessage(line); err != nil {
		fmt.Fprintf(out, "! %v\n", err)
	}
	return false
}
