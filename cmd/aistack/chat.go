package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/phil65/aistack/agent"
	"github.com/phil65/aistack/capture"
	"github.com/phil65/aistack/config"
	"github.com/phil65/aistack/openrouter"
	"github.com/phil65/aistack/session"
	"github.com/phil65/aistack/ticket"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat with the conversational agent.

Commands inside the session:
  /ticket   extract a ticket from the conversation so far
  /new      start a new conversation
  /quit     exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("chat requires an interactive terminal")
	}

	key, err := apiKey()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient(key, cfg, logger)

	sess := session.New(session.WithLogger(logger))
	bridge := capture.NewBridge(sess.Store(), capture.WithLogger(logger))
	collector := capture.NewCollector(bridge)
	pipeline := ticket.NewPipeline(sess.Store(), ticket.WithLogger(logger))

	chatID := agent.Identity(cfg.ChatAgent.Name)
	chatAgent := openrouter.NewChatAgent(client, chatID, cfg.ChatAgent.Model, cfg.ChatAgent.SystemPrompt)
	extractor := openrouter.NewStructuredAgent(client,
		cfg.TicketAgent.Name, cfg.TicketAgent.Model, cfg.TicketAgent.SystemPrompt,
		"ticket", ticket.Schema())

	renderer, err := newMarkdownRenderer()
	if err != nil {
		return err
	}

	rl, err := readline.New("you> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("Chatting with %s (%s). /ticket to create a ticket, /quit to exit.\n",
		cfg.ChatAgent.Name, cfg.ChatAgent.Model)

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			sess.Store().Clear(chatID)
			fmt.Println("Started a new conversation.")
			continue
		case "/ticket":
			if err := createTicket(ctx, pipeline, extractor, sess.Store(), chatID, renderer); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			continue
		}

		err = collector.Stream(ctx, chatID, chatAgent, line, func(fragment string) {
			fmt.Print(fragment)
		})
		fmt.Println()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func createTicket(ctx context.Context, pipeline *ticket.Pipeline, extractor ticket.Runner, store *session.Store, chatID agent.Identity, renderer *markdownRenderer) error {
	rec, err := pipeline.Extract(ctx, extractor, store.Messages(chatID))
	if errors.Is(err, ticket.ErrEmptyHistory) {
		return fmt.Errorf("no chat messages yet; have a conversation first")
	}
	if err != nil {
		return err
	}
	return renderer.print(rec.Markdown())
}
