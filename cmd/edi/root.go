package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edi-chat/edi/internal/config"
	"github.com/edi-chat/edi/internal/model/catalog"
	"github.com/edi-chat/edi/internal/model/chat"
	"github.com/edi-chat/edi/internal/service/ai"
	"github.com/edi-chat/edi/internal/service/conversation"
	"github.com/edi-chat/edi/internal/terminal"
)

var continueSession bool

var rootCmd = &cobra.Command{
	Use:          "edi",
	Short:        "EDI, a terminal client for multi-turn conversations with a remote model",
	Long:         "EDI (Edgar's Delightful Interface) holds a conversation with a remote model,\npersisting the session so it can be continued across runs.",
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.Flags().BoolVar(&continueSession, "continue", false, "continue the previous session")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

	if !cfg.Complete() {
		if !interactive {
			return errors.New("no API key or model configured; set EDI_API_KEY and EDI_MODEL or run edi interactively once")
		}
		if err := firstRunSetup(cfg); err != nil {
			return err
		}
	}

	transport, err := ai.NewService(ctx, cfg.AI, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model transport: %w", err)
	}

	store := chat.NewFileStore(cfg.SessionPath())
	runner := conversation.NewRunner(store, transport, terminal.NewReader(os.Stdin), os.Stdout, logger)

	if !interactive {
		runner.Start(continueSession)
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read piped input: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return errors.New("no input on stdin")
		}
		return runner.RunOnce(ctx, text)
	}

	resume := continueSession
	if !resume {
		setup := terminal.NewSetup(os.Stdin, os.Stdout)
		answer, err := setup.ConfirmContinue()
		if err != nil {
			return err
		}
		resume = answer
	}
	runner.Start(resume)

	fmt.Println()
	fmt.Println("Welcome to EDI! (Edgar's Delightful Interface)")
	fmt.Println()
	fmt.Println("Type 'Ctrl-D' or leave a blank line to end input and get the response.")
	fmt.Println()

	return runner.Run(ctx)
}

// firstRunSetup collects and persists the API key and model choice.
func firstRunSetup(cfg *config.Config) error {
	setup := terminal.NewSetup(os.Stdin, os.Stdout)

	key, err := setup.AskAPIKey(config.ValidateAPIKey)
	if err != nil {
		return err
	}

	models := catalog.NewMemoryStore(catalog.Seed())
	names := make([]string, 0, len(models.List()))
	for _, model := range models.List() {
		names = append(names, model.Name)
	}

	name, err := setup.SelectModel(names)
	if err != nil {
		return err
	}
	if _, ok := models.FindByName(name); !ok {
		name = models.Default().Name
		fmt.Printf("Invalid choice, defaulting to %s.\n", name)
	}

	return cfg.SaveCredentials(key, name)
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if raw := strings.TrimSpace(os.Getenv("EDI_LOG_LEVEL")); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
