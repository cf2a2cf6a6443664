// Command aistack runs a two-agent support workflow: a chat agent for
// the conversation and a structured agent that turns the transcript into
// a ticket.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/phil65/aistack/config"
	"github.com/phil65/aistack/openrouter"
)

// Global flags (persistent across all commands)
var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "aistack",
	Short: "Chat with an agent and turn the conversation into a ticket",
	Long: `aistack coordinates two cooperating agents that share a session:
a free-form chat agent and a structured-extraction agent that turns the
chat transcript into a validated ticket record.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	// Missing .env is fine; the key may come from the environment.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the CLI logger based on the verbosity flag.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// apiKey returns the OpenRouter API key from the environment.
func apiKey() (string, error) {
	key := os.Getenv("OPENROUTER_API_KEY")
	if key == "" {
		return "", fmt.Errorf("OPENROUTER_API_KEY is not set (put it in the environment or a .env file)")
	}
	return key, nil
}

// newClient builds the provider client from config.
func newClient(key string, cfg config.Config, logger *slog.Logger) *openrouter.Client {
	opts := []openrouter.ClientOption{openrouter.WithClientLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, openrouter.WithBaseURL(cfg.BaseURL))
	}
	return openrouter.NewClient(key, opts...)
}
