// Package audit provides the "rosterbot audit" commands for reading the
// command audit log.
package audit

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/rosterbot/internal/app"
	auditpkg "github.com/klytics/rosterbot/internal/audit"
	"github.com/klytics/rosterbot/internal/output"
)

// NewCommand creates the "audit" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View and manage the command audit log",
		Long:  "Every command the bot answers is appended to a JSONL audit log. Phone numbers in arguments are redacted.",
	}

	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

func auditLogPath(cmd *cobra.Command) (string, error) {
	cfg, err := app.LoadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Audit.Path, nil
}

func newLogCmd() *cobra.Command {
	var (
		last    int
		command string
		since   string
		sender  string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auditLogPath(cmd)
			if err != nil {
				return err
			}
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			var sinceTime time.Time
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date: %w (use YYYY-MM-DD)", err)
				}
				sinceTime = t
			}

			filtered := auditpkg.FilterEntries(entries, sinceTime, sender, command)

			if last > 0 && len(filtered) > last {
				filtered = filtered[len(filtered)-last:]
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.FprintJSON(out, "audit log", filtered)
			}

			if len(filtered) == 0 {
				fmt.Fprintln(out, "No audit log entries found.")
				return nil
			}

			fmt.Fprintf(out, "Audit log: %d entries\n", len(filtered))
			fmt.Fprintf(out, "File: %s\n\n", path)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TIMESTAMP\tSENDER\tCOMMAND\tARGS\tDURATION\tSTATUS\n")
			for _, e := range filtered {
				ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
				dur := fmt.Sprintf("%dms", e.DurationMs)
				if e.DurationMs >= 1000 {
					dur = fmt.Sprintf("%.1fs", float64(e.DurationMs)/1000)
				}
				sender := e.Sender
				if sender == "" {
					sender = "-"
				}
				argText := e.Args
				if argText == "" {
					argText = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", ts, sender, e.Command, argText, dur, e.Status)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show last N entries")
	cmd.Flags().StringVar(&command, "command", "", "Filter by command name")
	cmd.Flags().StringVar(&since, "since", "", "Filter entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sender, "sender", "", "Filter by sender id")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auditLogPath(cmd)
			if err != nil {
				return err
			}
			if err := auditpkg.Clear(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("could not clear audit log: %w", err)
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.FprintJSON(cmd.OutOrStdout(), "audit clear", map[string]string{"cleared": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Audit log cleared: %s\n", path)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show audit log path and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auditLogPath(cmd)
			if err != nil {
				return err
			}
			size := auditpkg.LogSize(path)
			entries, _ := auditpkg.ReadEntries(path)

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.FprintJSON(out, "audit status", map[string]any{
					"path":    path,
					"size":    size,
					"entries": len(entries),
				})
			}

			fmt.Fprintf(out, "Audit log: %s\n", path)
			if size == 0 {
				fmt.Fprintln(out, "Size:      empty (no entries)")
			} else {
				fmt.Fprintf(out, "Size:      %s\n", formatSize(size))
			}
			fmt.Fprintf(out, "Entries:   %d\n", len(entries))
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var (
		since  string
		sender string
		top    int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize bot usage from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auditLogPath(cmd)
			if err != nil {
				return err
			}
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			var sinceTime time.Time
			if since != "" {
				if sinceTime, err = time.Parse("2006-01-02", since); err != nil {
					return fmt.Errorf("invalid --since date: %w (use YYYY-MM-DD)", err)
				}
			}

			s := auditpkg.Summarize(entries, sinceTime, sender)
			if top > 0 {
				if len(s.TopCommands) > top {
					s.TopCommands = s.TopCommands[:top]
				}
				if len(s.TopSenders) > top {
					s.TopSenders = s.TopSenders[:top]
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.FprintJSON(out, "audit stats", s)
			}

			fmt.Fprintf(out, "Commands:       %d\n", s.Commands)
			fmt.Fprintf(out, "Active senders: %d\n", s.ActiveSenders)
			fmt.Fprintf(out, "Errors:         %d (%.1f%%)\n", s.Errors, s.ErrorRate)
			fmt.Fprintf(out, "Avg duration:   %dms\n", s.AvgDurationMs)
			if len(s.TopCommands) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "COMMAND\tCOUNT\tSHARE\n")
			for _, c := range s.TopCommands {
				fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", c.Command, c.Count, c.Pct)
			}
			tw.Flush()

			fmt.Fprintln(out)
			tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "SENDER\tCOUNT\n")
			for _, u := range s.TopSenders {
				fmt.Fprintf(tw, "%s\t%d\n", u.Sender, u.Count)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only count entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sender, "sender", "", "Only count one sender")
	cmd.Flags().IntVar(&top, "top", 10, "Show the N most frequent commands and senders")
	return cmd
}

func formatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}
