package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/relaychat/internal/core/domain"
	"github.com/vietddude/relaychat/internal/health"
	"github.com/vietddude/relaychat/internal/infra/relay/stream"
)

var chatPort int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the relay.

Lines are sent as messages. /reset starts a new conversation, /abort cancels
the pending request and /quit exits. Health and metrics are served on --port.`,
	Run: runChat,
}

func init() {
	chatCmd.Flags().IntVar(&chatPort, "port", 0, "health server port (default server.port)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	w, cleanup := mustWidget()
	defer cleanup()

	port := cfg.Server.Port
	if chatPort != 0 {
		port = chatPort
	}
	healthServer := health.NewServer(health.NewMonitor(w), port)
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	slog.Info("Chat started", "scope", cfg.DispatcherConfig().Scope(), "health_port", port)

	watchStream(w, os.Stdout)
	w.Channel().OnStateChange(func(t stream.Transition) {
		if t.To == domain.ConnectionClosed {
			fmt.Println()
			fmt.Print("> ")
		}
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	sends := make(chan struct{}, 1)
	prompt := func() { fmt.Print("> ") }
	prompt()

loop:
	for {
		select {
		case sig := <-sigChan:
			slog.Info("Received signal, shutting down...", "signal", sig)
			break loop

		case line, ok := <-lines:
			if !ok {
				break loop
			}
			text := strings.TrimSpace(line)
			switch text {
			case "":
				prompt()
			case "/quit":
				break loop
			case "/abort":
				w.Abort()
				prompt()
			case "/reset":
				w.Reset(ctx)
				fmt.Println("-- new conversation --")
				prompt()
			default:
				select {
				case sends <- struct{}{}:
				default:
					fmt.Println("-- still waiting for the previous reply, /abort to cancel --")
					prompt()
					continue
				}
				go func() {
					defer func() { <-sends }()
					res := w.Send(ctx, text, nil)
					switch {
					case !res.Success:
						if msg := w.Store().Get().Error; msg != "" {
							fmt.Printf("!! %s\n", msg)
						}
					case res.Reply != "":
						fmt.Println(res.Reply)
					}
					if res.StreamURL == "" {
						prompt()
					}
				}()
			}
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
