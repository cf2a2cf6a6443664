package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phil65/aistack/config"
	"github.com/phil65/aistack/openrouter"
	"github.com/phil65/aistack/session"
	"github.com/phil65/aistack/ticket"
)

var (
	transcriptPath string
	ticketOutPath  string
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Extract a ticket from a transcript file",
	Long: `Extract a ticket record from a saved conversation transcript.

The transcript format is one "ROLE: content" block per message, blocks
separated by blank lines — the same rendering the extraction prompt uses.`,
	RunE: runTicket,
}

func init() {
	ticketCmd.Flags().StringVar(&transcriptPath, "from", "", "Transcript file to extract from (required)")
	ticketCmd.Flags().StringVar(&ticketOutPath, "out", "", "Write the ticket as text to this file")
	_ = ticketCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(ticketCmd)
}

func runTicket(cmd *cobra.Command, args []string) error {
	key, err := apiKey()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return err
	}
	log, err := ticket.ParseTranscript(string(data))
	if err != nil {
		return err
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The parsed log goes to the pipeline as-is; a transcript may contain
	// two legitimately identical messages and the store's dedup must not
	// coalesce them before extraction. The session only receives the
	// extracted record.
	sess := session.New(session.WithLogger(logger))

	client := newClient(key, cfg, logger)
	extractor := openrouter.NewStructuredAgent(client,
		cfg.TicketAgent.Name, cfg.TicketAgent.Model, cfg.TicketAgent.SystemPrompt,
		"ticket", ticket.Schema())
	pipeline := ticket.NewPipeline(sess.Store(), ticket.WithLogger(logger))

	rec, err := pipeline.Extract(ctx, extractor, log)
	if err != nil {
		return err
	}

	if ticketOutPath != "" {
		if err := os.WriteFile(ticketOutPath, []byte(rec.FormatText()), 0644); err != nil {
			return err
		}
		fmt.Printf("Ticket written to %s\n", ticketOutPath)
		return nil
	}

	renderer, err := newMarkdownRenderer()
	if err != nil {
		return err
	}
	return renderer.print(rec.Markdown())
}
