package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset the widget session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current session",
	Run:   runSessionShow,
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the session and thread so the next message starts a new conversation",
	Run:   runSessionReset,
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionResetCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) {
	w, cleanup := mustWidget()
	defer cleanup()

	ctx := context.Background()
	s := w.Session(ctx)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(tw, "SCOPE\tSESSION\tTHREAD\tSTARTED\tBACKEND")
	_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		cfg.DispatcherConfig().Scope(),
		s.SessionID,
		orDash(s.ThreadID),
		s.StartTime.Format(time.RFC3339),
		cfg.Session.Backend,
	)
	_ = tw.Flush()

	if w.SessionDegraded() {
		slog.Warn("Session storage unavailable, showing an in-memory session")
	}
}

func runSessionReset(cmd *cobra.Command, args []string) {
	w, cleanup := mustWidget()
	defer cleanup()

	w.Reset(context.Background())
	if w.SessionDegraded() {
		slog.Error("Session storage unavailable, reset not persisted")
		os.Exit(1)
	}
	slog.Info("Session reset", "scope", cfg.DispatcherConfig().Scope())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
