package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/klytics/rosterbot/internal/transport"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Validate checks config values and returns a list of issues.
func Validate() []ConfigIssue {
	var issues []ConfigIssue

	path := viper.GetString("data.path")
	if _, err := os.Stat(path); err != nil {
		issues = append(issues, ConfigIssue{
			Key:      "data.path",
			Severity: "warning",
			Message:  fmt.Sprintf("dataset %s not found; the bot starts with an empty table", path),
			Fix:      "place the spreadsheet there, or send data.xlsx to the bot and confirm with " + viper.GetString("upload.confirm_command"),
		})
	}
	if viper.GetString("data.sheet") == "" {
		issues = append(issues, ConfigIssue{
			Key:      "data.sheet",
			Severity: "error",
			Message:  "sheet name is empty",
			Fix:      "rosterbot config set data.sheet Feuil1",
		})
	}

	name := viper.GetString("upload.filename")
	if name == "" || strings.ContainsAny(name, `/\`) {
		issues = append(issues, ConfigIssue{
			Key:      "upload.filename",
			Severity: "error",
			Message:  fmt.Sprintf("upload filename %q must be a bare file name", name),
			Fix:      "rosterbot config set upload.filename data.xlsx",
		})
	}
	staged := filepath.Join(viper.GetString("upload.temp_dir"), name)
	if samePath(staged, path) {
		issues = append(issues, ConfigIssue{
			Key:      "upload.temp_dir",
			Severity: "error",
			Message:  fmt.Sprintf("uploads would be staged onto the live dataset %s", path),
			Fix:      "rosterbot config set upload.temp_dir " + filepath.Join(filepath.Dir(path), "tmp"),
		})
	}
	if confirm := viper.GetString("upload.confirm_command"); !strings.HasPrefix(confirm, "!") {
		issues = append(issues, ConfigIssue{
			Key:      "upload.confirm_command",
			Severity: "error",
			Message:  fmt.Sprintf("confirm command %q must start with '!'", confirm),
		})
	}
	for _, p := range viper.GetStringSlice("bot.search_prefixes") {
		if !strings.HasPrefix(strings.TrimSpace(p), "!") {
			issues = append(issues, ConfigIssue{
				Key:      "bot.search_prefixes",
				Severity: "warning",
				Message:  fmt.Sprintf("search prefix %q does not start with '!' and will never be seen", p),
			})
		}
	}

	if port := viper.GetInt("server.port"); port <= 0 || port > 65535 {
		issues = append(issues, ConfigIssue{
			Key:      "server.port",
			Severity: "error",
			Message:  fmt.Sprintf("server port %d is out of range", port),
		})
	}
	if f := strings.ToLower(viper.GetString("log.format")); f != "text" && f != "json" {
		issues = append(issues, ConfigIssue{
			Key:      "log.format",
			Severity: "warning",
			Message:  fmt.Sprintf("unknown log format %q, falling back to text", f),
		})
	}

	if script, err := transport.FindBridge(viper.GetString("bridge.path")); err != nil {
		issues = append(issues, ConfigIssue{
			Key:      "bridge.path",
			Severity: "warning",
			Message:  err.Error(),
			Fix:      "set " + transport.BridgeEnv + " or bridge.path; 'rosterbot console' works without it",
		})
	} else {
		issues = append(issues, ConfigIssue{
			Key:      "bridge.path",
			Severity: "info",
			Message:  "WhatsApp bridge found at " + script,
		})
	}

	return issues
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// ShowConfig returns a formatted summary of the current configuration.
func ShowConfig() string {
	var sb strings.Builder

	file := FileUsed()
	if file == "" {
		file = "(defaults)"
	}
	fmt.Fprintf(&sb, "Config: %s\n\n", file)

	sb.WriteString("Data\n")
	fmt.Fprintf(&sb, "  path:      %s\n", viper.GetString("data.path"))
	fmt.Fprintf(&sb, "  sheet:     %s\n", viper.GetString("data.sheet"))
	fmt.Fprintf(&sb, "  watch:     %t\n", viper.GetBool("data.watch"))
	sb.WriteString("\n")

	sb.WriteString("Upload\n")
	fmt.Fprintf(&sb, "  filename:  %s\n", viper.GetString("upload.filename"))
	fmt.Fprintf(&sb, "  temp_dir:  %s\n", viper.GetString("upload.temp_dir"))
	fmt.Fprintf(&sb, "  confirm:   %s\n", viper.GetString("upload.confirm_command"))
	sb.WriteString("\n")

	sb.WriteString("Bot\n")
	fmt.Fprintf(&sb, "  search:    %s\n", strings.Join(viper.GetStringSlice("bot.search_prefixes"), ", "))
	fmt.Fprintf(&sb, "  welcome:   %t\n", viper.GetBool("bot.welcome"))
	sb.WriteString("\n")

	sb.WriteString("Bridge\n")
	fmt.Fprintf(&sb, "  node:      %s\n", viper.GetString("bridge.node"))
	if p := viper.GetString("bridge.path"); p != "" {
		fmt.Fprintf(&sb, "  path:      %s\n", p)
	}
	fmt.Fprintf(&sb, "  session:   %s (%s)\n", viper.GetString("bridge.session_dir"), viper.GetString("bridge.client_id"))
	sb.WriteString("\n")

	sb.WriteString("Server\n")
	fmt.Fprintf(&sb, "  port:      %d\n", viper.GetInt("server.port"))
	if u := viper.GetString("server.external_url"); u != "" {
		fmt.Fprintf(&sb, "  url:       %s\n", u)
	}
	fmt.Fprintf(&sb, "  public:    %s\n", viper.GetString("server.public_dir"))
	sb.WriteString("\n")

	if viper.GetBool("audit.enabled") {
		sb.WriteString("Audit\n")
		fmt.Fprintf(&sb, "  path:      %s\n", viper.GetString("audit.path"))
		sb.WriteString("\n")
	}

	return sb.String()
}

// ShowYAML renders every effective setting as YAML.
func ShowYAML() (string, error) {
	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return "", fmt.Errorf("could not render config: %w", err)
	}
	return string(out), nil
}
