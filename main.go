package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/carver777/health-management/internal/args"
	"github.com/carver777/health-management/internal/auth"
	"github.com/carver777/health-management/internal/client"
	"github.com/carver777/health-management/internal/config"
	"github.com/carver777/health-management/internal/render"
)

// main function to parse arguments and initiate the chat request.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	parsed, err := args.ParseArgs(ctx, *cfg)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if parsed.Verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	if parsed.Command == "login" {
		if _, err := auth.Login(ctx, cfg.BaseURL, parsed.Email, parsed.Password); err != nil {
			return err
		}
		fmt.Println("Logged in.")
		return nil
	}

	token, err := auth.Token()
	if err != nil {
		return err
	}
	backend := client.New(cfg.BaseURL, token, logger)

	if parsed.Command == "history" {
		entries, err := backend.History(ctx, cfg.UserID, 1, 20)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("[%s] %s: %s\n", entry.CreatedAt, entry.Role, entry.Content)
		}
		return nil
	}

	queue, err := backend.Chat(ctx, cfg.UserID, client.ChatRequest{
		Message: strings.Join(parsed.Prompts, "\n\n"),
		Model:   parsed.Model,
	})
	if err != nil {
		return err
	}

	renderer := render.NewTerminalRenderer(parsed.UsePlainText, cfg.Render.Wrap)
	return renderer.Render(ctx, queue)
}
