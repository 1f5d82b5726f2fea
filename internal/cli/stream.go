package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/relaychat/internal/core/domain"
	"github.com/vietddude/relaychat/internal/core/state"
	"github.com/vietddude/relaychat/internal/infra/relay/stream"
)

var streamCmd = &cobra.Command{
	Use:   "stream [url]",
	Short: "Follow a reply stream until it completes",
	Args:  cobra.ExactArgs(1),
	Run:   runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := stream.NewChannel(stream.NewHTTPDialer(nil), cfg.Stream, state.Discard, slog.Default())
	defer ch.Disconnect()

	closed := make(chan struct{})
	var once sync.Once
	ch.OnChunk(func(chunk string) {
		fmt.Print(chunk)
	})
	ch.OnStateChange(func(t stream.Transition) {
		slog.Debug("Stream state changed", "from", t.From, "to", t.To, "reason", t.Reason)
		if t.To == domain.ConnectionClosed {
			once.Do(func() { close(closed) })
		}
	})

	ch.Connect(args[0])

	select {
	case <-closed:
		fmt.Println()
	case <-ctx.Done():
		slog.Info("Interrupted, closing stream")
	}
}
