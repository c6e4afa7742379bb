package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftwhale/driftwhale/internal/config"
	"github.com/driftwhale/driftwhale/internal/dependency"
	"github.com/driftwhale/driftwhale/internal/schema"
	"github.com/driftwhale/driftwhale/internal/window"
)

var (
	chatMessage string
	chatAgent   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatAgent, "agent", "a", "", "Agent name (default from config)")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}

	agentName := chatAgent
	if agentName == "" {
		agentName = cfg.Agent.Name
	}

	win := newChatWindow(container, agentName)
	defer win.Close()

	if chatMessage != "" {
		return runSingleMessage(container, win, agentName)
	}
	return runInteractive(container, win, agentName)
}

// newChatWindow builds a rolling window seeded with the agent's memory.
func newChatWindow(container *dependency.Container, agentName string) *window.Window {
	cfg := container.Config()
	return window.New(window.Config{
		MaxTokens:          cfg.Memory.MaxTokens,
		TrimThreshold:      cfg.Memory.TrimThreshold,
		SummarizeThreshold: cfg.Memory.SummarizeThreshold,
		RecentKeep:         cfg.Memory.RecentKeep,
		SystemPrompt:       container.Context().BuildSystemPrompt(agentName),
	}, container.Counter(), container.Summarizer())
}

// runSingleMessage sends one message and exits after running the boundary.
func runSingleMessage(container *dependency.Container, win *window.Window, agentName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	if err := respond(ctx, container, win, agentName, chatMessage); err != nil {
		return err
	}
	return closeSession(container, agentName)
}

// runInteractive starts the REPL: reads lines from stdin, sends each to the
// model, and runs the session boundary on exit or /new.
func runInteractive(container *dependency.Container, win *window.Window, agentName string) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit, /new to start over)\n\n", logo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenForSignals(cancel, func() { _ = closeSession(container, agentName) })

	sweep := container.Sweeper()
	if err := sweep.Start(container.Config().Memory.SweepSchedule); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweep.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return closeSession(container, agentName)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return closeSession(container, agentName)
		}

		if line == "/new" {
			if err := closeSession(container, agentName); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
			win.Reset()
			fmt.Println("Started a fresh session.")
			continue
		}

		if err := respond(ctx, container, win, agentName, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// respond runs one conversational turn through the window.
func respond(ctx context.Context, container *dependency.Container, win *window.Window, agentName, input string) error {
	sess := container.Sessions().Active(agentName)

	sess.AddUser(input)
	win.Add(ctx, schema.NewUserMessage(input))

	resp, err := container.Completer().Complete(ctx, win.MessagesForAPI(),
		schema.NewChatOptions(container.Config().Provider.Model, 4096, 0.7))
	if err != nil {
		return err
	}

	text := strings.TrimSpace(resp.Text)
	sess.AddAssistant(text)
	win.Add(ctx, schema.NewAssistantMessage(text, nil, nil))

	if err := container.Sessions().Save(sess); err != nil {
		fmt.Fprintf(os.Stderr, "warning: save session: %v\n", err)
	}

	fmt.Printf("\n%s driftwhale\n%s\n\n", logo, text)
	return nil
}

// closeSession rotates the active session and runs its memory boundary to
// completion.
func closeSession(container *dependency.Container, agentName string) error {
	old, err := container.Sessions().Rotate(agentName)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if old == nil || old.Len() == 0 {
		return nil
	}

	fmt.Fprintln(os.Stderr, "  ↳ updating memory...")
	container.Compactor().Schedule(old)
	container.Compactor().Wait()
	return nil
}

// listenForSignals runs the shutdown hook and cancels ctx on SIGINT/SIGTERM.
func listenForSignals(cancel context.CancelFunc, shutdown func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nGoodbye!")
		shutdown()
		cancel()
		os.Exit(0)
	}()
}
