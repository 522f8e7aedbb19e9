package audit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	auditpkg "github.com/klytics/rosterbot/internal/audit"
)

func setup(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("PORT", "")
	path := filepath.Join(dir, "audit.jsonl")
	t.Setenv("ROSTER_AUDIT_PATH", path)

	l := auditpkg.NewLogger(path, true)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, e := range []auditpkg.Entry{
		{Sender: "111@c.us", Command: "!liste", Status: auditpkg.StatusOK, DurationMs: 3},
		{Sender: "222@c.us", Command: "!search", Args: "walid", Status: auditpkg.StatusOK, DurationMs: 1500},
		{Sender: "111@c.us", Command: "upload", Args: "data.xlsx", Status: auditpkg.StatusError, Error: "download failed"},
	} {
		e.Timestamp = base.Add(time.Duration(i) * 24 * time.Hour)
		if err := l.Log(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	root := &cobra.Command{Use: "rosterbot", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.PersistentFlags().Bool("json", false, "")
	root.PersistentFlags().Bool("verbose", false, "")
	root.AddCommand(NewCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestLogFilters(t *testing.T) {
	setup(t)

	out, err := execute(t, "audit", "log", "--sender", "111@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 entries") || !strings.Contains(out, "!liste") || strings.Contains(out, "!search") {
		t.Errorf("sender filter:\n%s", out)
	}

	out, _ = execute(t, "audit", "log", "--since", "2026-03-02", "--command", "search")
	if !strings.Contains(out, "1 entries") || !strings.Contains(out, "1.5s") {
		t.Errorf("since+command filter:\n%s", out)
	}

	if _, err := execute(t, "audit", "log", "--since", "yesterday"); err == nil {
		t.Error("expected error for bad --since")
	}
}

func TestLogLast(t *testing.T) {
	setup(t)

	out, err := execute(t, "audit", "log", "--last", "1", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"command": "upload"`) || strings.Contains(out, `"command": "!liste"`) {
		t.Errorf("expected only the last entry:\n%s", out)
	}
}

func TestStatusAndClear(t *testing.T) {
	path := setup(t)

	out, err := execute(t, "audit", "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, path) || !strings.Contains(out, "Entries:   3") {
		t.Errorf("status:\n%s", out)
	}

	if _, err := execute(t, "audit", "clear"); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() != 0 {
		t.Errorf("log not truncated: %v", err)
	}

	out, _ = execute(t, "audit", "log")
	if !strings.Contains(out, "No audit log entries found.") {
		t.Errorf("after clear:\n%s", out)
	}
}

func TestClearMissingLog(t *testing.T) {
	setup(t)
	t.Setenv("ROSTER_AUDIT_PATH", filepath.Join(t.TempDir(), "none.jsonl"))

	if _, err := execute(t, "audit", "clear"); err != nil {
		t.Errorf("clearing a missing log = %v", err)
	}
}

func TestStats(t *testing.T) {
	setup(t)

	out, err := execute(t, "audit", "stats")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Commands:       3", "Active senders: 2", "Errors:         1 (33.3%)", "111@c.us"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	out, _ = execute(t, "audit", "stats", "--top", "1", "--json")
	if !strings.Contains(out, `"command": "audit stats"`) || strings.Count(out, `"count"`) != 2 {
		t.Errorf("unexpected --top 1 JSON:\n%s", out)
	}
}

func TestFormatSize(t *testing.T) {
	for n, want := range map[int64]string{
		12:          "12 B",
		2048:        "2.0 KB",
		3 * 1 << 20: "3.0 MB",
	} {
		if got := formatSize(n); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", n, got, want)
		}
	}
}
