// Command lexchat is a terminal client for the agent gateway: it drives the
// full conversation engine (websocket supervision, event routing, streaming
// assembly, task board, stall watchdog) behind a minimal REPL.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lexhub/agentstream/internal/api"
	"github.com/lexhub/agentstream/internal/config"
	"github.com/lexhub/agentstream/internal/engine"
	"github.com/lexhub/agentstream/internal/observability"
	"github.com/lexhub/agentstream/internal/session"
	"github.com/lexhub/agentstream/internal/socket"
)

type panelPrinter struct{}

func (panelPrinter) OpenPanel(panel string) {
	fmt.Printf("\n[panel] %s\n", panel)
}

func (panelPrinter) SwitchTab(tab string) {
	fmt.Printf("\n[tab] %s\n", tab)
}

func (panelPrinter) DocumentReady(documentID, name string) {
	fmt.Printf("\n[document ready] %s (%s)\n", name, documentID)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	cfg := config.Load()

	obs, err := observability.NewObservability(observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Environment:    cfg.Environment,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize observability: %v", err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			obs.Logger.ErrorContext(shutdownCtx, "Error during shutdown", "error", err)
		}
	}()

	metrics, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		panic(fmt.Sprintf("Failed to create metrics manager: %v", err))
	}
	ticker := observability.NewMetricsTicker(ctx, metrics)
	defer ticker.Stop()

	eng := engine.New(engine.Options{
		Config:   cfg,
		Logger:   obs.Logger,
		API:      api.NewClient(cfg, obs.Logger),
		Observer: panelPrinter{},
		Metrics:  metrics,
		Trace:    observability.NewTraceManager(cfg.ServiceName),
	})

	health := observability.NewHealthServer(cfg.HealthPort, cfg.ServiceName, cfg.ServiceVersion)
	health.AddChecker("gateway-connection", observability.NewConnectionHealthChecker(
		"gateway-connection",
		func() (string, bool) {
			state := eng.ConnectionState()
			return state.String(), state == socket.StateOpen
		},
	))
	go func() {
		if err := health.Start(ctx); err != nil {
			obs.Logger.ErrorContext(ctx, "Health server stopped", "error", err)
		}
	}()
	defer health.Shutdown(context.Background())

	conversationID := uuid.NewString()
	eng.Open(ctx, conversationID)
	defer eng.Close()

	if err := eng.LoadHistory(ctx); err != nil {
		obs.Logger.WarnContext(ctx, "History load failed", "error", err)
	}

	go printMessages(ctx, eng)

	obs.Logger.InfoContext(ctx, "Chat client started", "conversation_id", conversationID)
	fmt.Println("=== LexHub Agent Chat ===")
	fmt.Println("Type a message and press Enter. Commands: /switch, /canvas <text>, quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("Error reading input: %v\n", err)
			}
			return
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue

		case input == "quit":
			return

		case input == "/switch":
			conversationID = uuid.NewString()
			eng.Open(ctx, conversationID)
			if err := eng.LoadHistory(ctx); err != nil {
				obs.Logger.WarnContext(ctx, "History load failed", "error", err)
			}
			fmt.Printf("Switched to conversation %s\n", conversationID)

		case strings.HasPrefix(input, "/canvas "):
			canvas := eng.Store().Canvas()
			if canvas.DocumentID == "" {
				fmt.Println("No canvas document open.")
				continue
			}
			eng.EditCanvas(ctx, canvas.DocumentID, strings.TrimPrefix(input, "/canvas "))

		default:
			if pending := eng.PendingClarification(); pending != nil {
				if err := eng.RespondClarification(ctx, pending.RequestID, nil, input); err != nil {
					fmt.Printf("Error: %v\n", err)
				}
				continue
			}
			if err := eng.SendChat(ctx, input, engine.ChatOptions{}); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		}
	}
}

// printMessages mirrors newly appended conversation messages to the terminal.
func printMessages(ctx context.Context, eng *engine.Engine) {
	seen := make(map[string]bool)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		store := eng.Store()
		if store == nil {
			continue
		}
		for _, msg := range store.Messages() {
			if seen[msg.ID] || msg.Streaming || msg.Kind == session.KindUser {
				continue
			}
			seen[msg.ID] = true
			printMessage(msg)
		}
	}
}

func printMessage(msg session.Message) {
	label := string(msg.Kind)
	if msg.Agent != "" {
		label = msg.Agent
	}
	switch msg.Kind {
	case session.KindStructuredUI:
		fmt.Printf("\n[%s] structured card with %d components\n", label, len(msg.Components))
	default:
		fmt.Printf("\n[%s] %s\n", label, msg.Body)
		if msg.Retryable {
			fmt.Println("  (retryable: resend the last message to try again)")
		}
	}
	if msg.Attachment != nil {
		fmt.Printf("  attachment: %s (%d bytes)\n", msg.Attachment.Name, msg.Attachment.Size)
	}
}
