package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/relaychat/internal/control"
	"github.com/vietddude/relaychat/internal/core/domain"
	"github.com/vietddude/relaychat/internal/infra/relay/dispatcher"
	"github.com/vietddude/relaychat/internal/infra/relay/stream"
)

var (
	sendFiles   []string
	sendNoRetry bool
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	Run:   runSend,
}

func init() {
	sendCmd.Flags().StringSliceVarP(&sendFiles, "file", "f", nil, "attach a file (repeatable)")
	sendCmd.Flags().BoolVar(&sendNoRetry, "no-retry", false, "make a single attempt")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files := make([]domain.File, 0, len(sendFiles))
	for _, path := range sendFiles {
		f, err := dispatcher.FileFromPath(path)
		if err != nil {
			slog.Error("Failed to read attachment", "path", path, "error", err)
			os.Exit(1)
		}
		files = append(files, f)
	}

	if sendNoRetry {
		cfg.Retry.MaxAttempts = 1
	}

	w, cleanup := mustWidget()
	defer cleanup()

	closed := watchStream(w, os.Stdout)

	res := w.Send(ctx, strings.Join(args, " "), files)
	if !res.Success {
		slog.Error("Send failed",
			"type", res.Error.Type,
			"status", res.Error.StatusCode,
			"retryable", res.Error.Retryable,
			"message", res.Error.Message,
		)
		os.Exit(1)
	}

	if res.Reply != "" {
		fmt.Println(res.Reply)
	}
	if res.StreamURL == "" {
		return
	}

	select {
	case <-closed:
		fmt.Println()
	case <-ctx.Done():
		w.Close()
	}
}

// watchStream prints streamed chunks to out and returns a channel closed once
// the stream reaches the closed state.
func watchStream(w *control.Widget, out *os.File) <-chan struct{} {
	closed := make(chan struct{})
	var once sync.Once

	w.Channel().OnChunk(func(chunk string) {
		_, _ = fmt.Fprint(out, chunk)
	})
	w.Channel().OnStateChange(func(t stream.Transition) {
		slog.Debug("Stream state changed", "from", t.From, "to", t.To, "reason", t.Reason)
		if t.To == domain.ConnectionClosed {
			once.Do(func() { close(closed) })
		}
	})
	return closed
}
