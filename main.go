// titanbot - terminal client for the TitanBot chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Abdulkalam-AIML/titanbot/internal/api"
	"github.com/Abdulkalam-AIML/titanbot/internal/auth"
	"github.com/Abdulkalam-AIML/titanbot/internal/chat"
	"github.com/Abdulkalam-AIML/titanbot/internal/config"
	"github.com/Abdulkalam-AIML/titanbot/internal/model"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version":
			fmt.Printf("titanbot %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`titanbot - terminal client for the TitanBot chat backend

Usage:
  titanbot            Start an interactive chat session
  titanbot version    Show version information
  titanbot help       Show this help

Interactive commands:
  /login              Sign in with email and password
  /register           Create an account
  /sessions           List saved conversations
  /open <id>          Open a saved conversation
  /new                Start a new conversation
  /logout             Sign out and discard the stored credential
  /quit               Exit

Configuration lives in ~/.titanbot/config.toml; see also the
TITANBOT_API_URL, TITANBOT_MODEL, TITANBOT_DATA_DIR, and
TITANBOT_LOG_LEVEL environment variables.
`)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	dataDir, err := cfg.DataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	keys := auth.NewFileKeyStore(filepath.Join(dataDir, "credentials.key"))
	tokens, err := auth.NewSQLiteStore(filepath.Join(dataDir, "credentials.db"), keys)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer tokens.Close()

	client := api.NewClient(tokens).
		WithBaseURL(cfg.API.BaseURL).
		WithLogger(log).
		WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second).
		WithAuthRateLimit(cfg.API.AuthRatePerMin)

	printer := &transcriptPrinter{}
	controller := chat.NewController(client, tokens, cfg.Chat.Model).
		WithLogger(log).
		OnUpdate(printer.Render).
		OnLoggedOut(func() {
			fmt.Println("\nSigned out. Use /login to sign in again.")
		})

	// Pick up config edits without a restart. Only the model can change
	// mid-session; endpoint changes need a fresh start.
	if path, pathErr := config.ConfigPath(); pathErr == nil {
		watcher, watchErr := config.NewWatcher(path, log, func(next *config.Config) {
			controller.SetModel(next.Chat.Model)
		})
		if watchErr == nil {
			if err := watcher.Watch(); err != nil {
				log.Warn("config watch disabled", zap.Error(err))
			} else {
				defer watcher.Close()
			}
		}
	}

	return repl(cfg, client, controller, printer)
}

// buildLogger constructs the structured logger from config. Logs go to the
// configured file, or stderr when no path is set.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.Set(cfg.Log.Level); err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Log.Path != "" {
		zc.OutputPaths = []string{cfg.Log.Path}
		zc.ErrorOutputPaths = []string{cfg.Log.Path}
	} else {
		zc.OutputPaths = []string{"stderr"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}
	return zc.Build()
}

// =============================================================================
// TRANSCRIPT PRINTER
// =============================================================================

// transcriptPrinter renders message log snapshots incrementally: streamed
// increments print as they arrive instead of repainting the transcript.
type transcriptPrinter struct {
	printed int  // messages fully printed
	partial int  // bytes of messages[printed] already printed
	open    bool // the current line lacks its trailing newline
}

// Render prints whatever the snapshot added since the last call. A snapshot
// that shrank means the log was replaced; the transcript restarts.
func (p *transcriptPrinter) Render(messages []model.Message) {
	if len(messages) < p.printed ||
		(p.printed < len(messages) && p.partial > len(messages[p.printed].Content)) {
		if p.open {
			fmt.Println()
		}
		p.printed, p.partial, p.open = 0, 0, false
	}

	for p.printed < len(messages) {
		m := messages[p.printed]
		if !p.open {
			fmt.Printf("%s: ", m.Role.DisplayName())
			p.open = true
		}
		fmt.Print(m.Content[p.partial:])
		p.partial = len(m.Content)
		if p.printed == len(messages)-1 {
			// The last message may still be streaming; Finish closes it.
			return
		}
		fmt.Println()
		p.printed++
		p.partial = 0
		p.open = false
	}
}

// Finish closes out the in-progress line once an exchange settles.
func (p *transcriptPrinter) Finish() {
	if p.open {
		fmt.Println()
		p.printed++
		p.partial = 0
		p.open = false
	}
}

// Reset forgets printed state ahead of a transcript replacement.
func (p *transcriptPrinter) Reset() {
	p.printed, p.partial, p.open = 0, 0, false
}

// =============================================================================
// INPUT
// =============================================================================

// inputReader provides input history and line editing for the session.
// USABILITY: Supports arrow keys for history navigation and line editing.
type inputReader struct {
	line        *liner.State
	historyFile string
}

func newInputReader() *inputReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	r := &inputReader{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	r.loadHistory()
	return r
}

func (r *inputReader) loadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

func (r *inputReader) saveHistory() {
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Read reads a line with history support.
func (r *inputReader) Read(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// ReadSecret reads a line without echo or history.
func (r *inputReader) ReadSecret(prompt string) (string, error) {
	return r.line.PasswordPrompt(prompt)
}

// Close saves history and restores the terminal.
func (r *inputReader) Close() {
	r.saveHistory()
	r.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

func repl(cfg *config.Config, client *api.Client, controller *chat.Controller, printer *transcriptPrinter) error {
	input := newInputReader()
	defer input.Close()

	fmt.Printf("titanbot %s - %s\n", Version, cfg.API.BaseURL)
	fmt.Println("Type /help for commands.")

	// Probe the stored credential by fetching the directory; a stale or
	// missing token flips the controller to logged-out immediately.
	if err := controller.RefreshSessions(context.Background()); err != nil {
		if errors.Is(err, chat.ErrLoggedOut) {
			fmt.Println("Not signed in. Use /login or /register.")
		}
	}

	for {
		text, err := input.Read("titanbot> ")
		if err != nil {
			// Ctrl+C at the prompt or EOF both exit cleanly.
			if err != liner.ErrPromptAborted {
				fmt.Println()
			}
			return nil
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "exit") || strings.EqualFold(text, "quit") {
			return nil
		}

		if strings.HasPrefix(text, "/") {
			quit, err := handleCommand(text, input, client, controller, printer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		sendMessage(controller, printer, text)
	}
}

// sendMessage runs one exchange; Ctrl+C abandons it.
func sendMessage(controller *chat.Controller, printer *transcriptPrinter, text string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := controller.Send(ctx, text)
	printer.Finish()
	if errors.Is(err, chat.ErrLoggedOut) {
		fmt.Println("Not signed in. Use /login or /register.")
	}
}

func handleCommand(text string, input *inputReader, client *api.Client, controller *chat.Controller, printer *transcriptPrinter) (quit bool, err error) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/help", "/h":
		printUsage()

	case "/quit", "/q":
		return true, nil

	case "/login":
		return false, signIn(input, client, controller, false)

	case "/register":
		return false, signIn(input, client, controller, true)

	case "/logout":
		controller.Logout()

	case "/sessions", "/s":
		if err := controller.RefreshSessions(context.Background()); err != nil {
			return false, err
		}
		sessions := controller.Sessions()
		if len(sessions) == 0 {
			fmt.Println("No saved conversations.")
			return false, nil
		}
		for _, s := range sessions {
			fmt.Printf("  %d  %s\n", s.ID, s.Title)
		}

	case "/open", "/o":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /open <id>")
		}
		id, perr := strconv.ParseInt(fields[1], 10, 64)
		if perr != nil {
			return false, fmt.Errorf("invalid session id %q", fields[1])
		}
		printer.Reset()
		if err := controller.LoadSession(context.Background(), id); err != nil {
			return false, err
		}
		printer.Finish()

	case "/new", "/n":
		printer.Reset()
		if err := controller.NewSession(); err != nil {
			return false, err
		}
		fmt.Println("Started a new conversation.")

	default:
		return false, fmt.Errorf("unknown command %q (try /help)", fields[0])
	}
	return false, nil
}

// signIn drives the login or register flow and hands the credential to the
// controller.
func signIn(input *inputReader, client *api.Client, controller *chat.Controller, register bool) error {
	email, err := input.Read("email: ")
	if err != nil {
		return nil
	}
	password, err := input.ReadSecret("password: ")
	if err != nil {
		return nil
	}

	ctx := context.Background()
	var token string
	if register {
		fullName, rerr := input.Read("full name: ")
		if rerr != nil {
			return nil
		}
		token, err = client.Register(ctx, strings.TrimSpace(email), password, strings.TrimSpace(fullName))
	} else {
		token, err = client.Login(ctx, strings.TrimSpace(email), password)
	}
	if err != nil {
		return err
	}

	if err := controller.Authenticate(token); err != nil {
		return err
	}
	fmt.Println("Signed in.")
	return nil
}
