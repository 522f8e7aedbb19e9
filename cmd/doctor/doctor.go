// Package doctor provides the "rosterbot doctor" command for checking that
// the bot can start.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/rosterbot/internal/app"
	"github.com/klytics/rosterbot/internal/config"
	"github.com/klytics/rosterbot/internal/output"
	"github.com/klytics/rosterbot/internal/progress"
	"github.com/klytics/rosterbot/internal/roster"
	"github.com/klytics/rosterbot/internal/transport"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system health and dependencies",
		Long:  "Run diagnostic checks to verify the bridge, the dataset and the session directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(cmd)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")

			spinner := progress.NewSpinner("Running checks")
			if !jsonOut {
				spinner.Start()
			}
			checks := RunChecks(cmd.Context(), cfg)
			spinner.Stop(fmt.Sprintf("%d checks run", len(checks)))

			if jsonOut {
				return output.FprintJSON(cmd.OutOrStdout(), "doctor", checks)
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "rosterbot doctor")
			fmt.Fprintln(out, "================")
			fmt.Fprintln(out)

			okCount, warnCount, errCount := 0, 0, 0
			for _, c := range checks {
				var icon string
				switch c.Status {
				case "ok":
					icon = green("✓")
					okCount++
				case "warning":
					icon = yellow("!")
					warnCount++
				case "error":
					icon = red("✗")
					errCount++
				}
				fmt.Fprintf(out, "  %s %s: %s\n", icon, c.Name, c.Message)
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

// RunChecks inspects the environment described by cfg.
func RunChecks(ctx context.Context, cfg *config.Config) []Check {
	if ctx == nil {
		ctx = context.Background()
	}
	var checks []Check

	checks = append(checks, Check{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	if used := config.FileUsed(); used != "" {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: used})
	} else {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: "none, using defaults and environment"})
	}

	checks = append(checks, checkNode(ctx, cfg.Bridge.Node))
	checks = append(checks, checkBridge(cfg.Bridge.Path)...)
	checks = append(checks, checkDataset(cfg))

	if info, err := os.Stat(cfg.Bridge.SessionDir); err == nil && info.IsDir() {
		checks = append(checks, Check{Name: "Session", Status: "ok", Message: "saved session in " + cfg.Bridge.SessionDir})
	} else {
		checks = append(checks, Check{Name: "Session", Status: "warning", Message: "no saved session, a QR code will be shown on first start"})
	}

	checks = append(checks, checkWritable("Upload Directory", cfg.Upload.TempDir))
	checks = append(checks, checkWritable("Public Directory", cfg.Server.PublicDir))
	return checks
}

func checkNode(ctx context.Context, node string) Check {
	path, err := exec.LookPath(node)
	if err != nil {
		return Check{Name: "Node.js", Status: "error", Message: fmt.Sprintf("%s not found in PATH, install Node.js 18 or newer", node)}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return Check{Name: "Node.js", Status: "warning", Message: fmt.Sprintf("%s found but --version failed: %v", path, err)}
	}
	return Check{Name: "Node.js", Status: "ok", Message: strings.TrimSpace(string(out))}
}

func checkBridge(explicit string) []Check {
	script, err := transport.FindBridge(explicit)
	if err != nil {
		return []Check{{Name: "Bridge", Status: "error", Message: err.Error()}}
	}
	checks := []Check{{Name: "Bridge", Status: "ok", Message: script}}

	modules := filepath.Join(filepath.Dir(script), "node_modules", "whatsapp-web.js")
	if _, err := os.Stat(modules); err != nil {
		checks = append(checks, Check{
			Name:    "Bridge Dependencies",
			Status:  "error",
			Message: fmt.Sprintf("whatsapp-web.js not installed, run 'npm install' in %s", filepath.Dir(script)),
		})
	} else {
		checks = append(checks, Check{Name: "Bridge Dependencies", Status: "ok", Message: "whatsapp-web.js installed"})
	}
	return checks
}

func checkDataset(cfg *config.Config) Check {
	if _, err := os.Stat(cfg.Data.Path); err != nil {
		return Check{Name: "Dataset", Status: "warning", Message: fmt.Sprintf("%s not found, upload %s from WhatsApp to create it", cfg.Data.Path, cfg.Upload.Filename)}
	}
	store := roster.New(cfg.Data.Path, cfg.Data.Sheet)
	if err := store.Load(); err != nil {
		return Check{Name: "Dataset", Status: "error", Message: err.Error()}
	}
	return Check{
		Name:    "Dataset",
		Status:  "ok",
		Message: fmt.Sprintf("%s: %d records, %d columns in %q", cfg.Data.Path, store.Len(), len(store.Columns()), store.Sheet()),
	}
}

func checkWritable(name, dir string) Check {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Check{Name: name, Status: "error", Message: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	f.Close()
	os.Remove(f.Name())
	return Check{Name: name, Status: "ok", Message: dir}
}
