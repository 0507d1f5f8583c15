package botctl

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Read the bot's live log",
}

var (
	logsMax    int
	logsRaw    bool
	logsLevels []string
)

var logsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream the live log until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := resolvedContext()
		if err != nil {
			return err
		}
		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return tailLogs(runCtx, ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// channelPublisher hands entries from the stream goroutine to the printer.
type channelPublisher chan logstream.LogEntry

func (p channelPublisher) Publish(ctx context.Context, entry logstream.LogEntry) error {
	select {
	case p <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func tailLogs(ctx context.Context, bot *Context, out, errOut io.Writer) error {
	entries := make(channelPublisher, 64)
	levels := map[string]bool{}
	for _, l := range logsLevels {
		levels[strings.ToUpper(l)] = true
	}

	client := logstream.New(logstream.Options{
		Endpoint:    bot.Server + bot.LiveLogPath,
		Credentials: tokenSource(bot),
		Publisher:   entries,
		Logger:      log.New(io.Discard, "", 0),
		// Failures already arrive as ERROR entries on the stream.
		OnEvent: func(evt logstream.StreamEvent) {
			switch evt.Kind {
			case logstream.EventOpened:
				fmt.Fprintf(errOut, "connected to %s\n", bot.Server)
			case logstream.EventClosed:
				fmt.Fprintf(errOut, "stream closed by server (reconnecting in %s)\n", evt.RetryIn)
			}
		},
	})
	client.Start()
	defer client.Stop()

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry := <-entries:
			if len(levels) > 0 && !levels[strings.ToUpper(entry.Level)] {
				continue
			}
			if err := printEntry(out, entry); err != nil {
				return err
			}
			printed++
			if logsMax > 0 && printed >= logsMax {
				return nil
			}
		}
	}
}

func printEntry(out io.Writer, entry logstream.LogEntry) error {
	if logsRaw {
		b, err := entry.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", b)
		return err
	}
	_, err := fmt.Fprintln(out, formatEntry(entry))
	return err
}

// formatEntry renders "<time> [LEVEL] data".
func formatEntry(entry logstream.LogEntry) string {
	var b strings.Builder
	if t := unixTime(entry.Time); !t.IsZero() {
		b.WriteString(formatTimestamp(t))
		b.WriteByte(' ')
	}
	level := entry.Level
	if level == "" {
		level = "-"
	}
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(level), strings.TrimRight(entry.Data, "\n"))
	return b.String()
}

func init() {
	logsTailCmd.Flags().IntVar(&logsMax, "max", 0, "Exit after printing this many entries (0 streams forever)")
	logsTailCmd.Flags().BoolVar(&logsRaw, "raw", false, "Print entries as JSON lines")
	logsTailCmd.Flags().StringSliceVar(&logsLevels, "level", nil, "Only print these levels (repeatable)")
	logsCmd.AddCommand(logsTailCmd)
}
