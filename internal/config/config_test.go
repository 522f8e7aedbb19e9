package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setupTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	viper.Reset()
	t.Setenv("HOME", dir)
	t.Cleanup(viper.Reset)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	setupTestConfig(t)
	t.Setenv("PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Path != filepath.Join("data", "data.xlsx") || cfg.Data.Sheet != "Feuil1" {
		t.Errorf("data defaults = %+v", cfg.Data)
	}
	if !cfg.Data.Watch || cfg.Data.Debounce != 500*time.Millisecond {
		t.Errorf("watch defaults = %+v", cfg.Data)
	}
	if cfg.Upload.Filename != "data.xlsx" || cfg.Upload.ConfirmCommand != "!loadnewdata" {
		t.Errorf("upload defaults = %+v", cfg.Upload)
	}
	if len(cfg.Bot.SearchPrefixes) != 2 || cfg.Bot.SearchPrefixes[0] != "!بحث عن" {
		t.Errorf("search prefixes = %q", cfg.Bot.SearchPrefixes)
	}
	if cfg.Fields.Hotel != "الفدق" {
		t.Errorf("hotel field = %q", cfg.Fields.Hotel)
	}
	if cfg.Bridge.ClientID != "session-bot" || cfg.Bridge.SessionDir != ".wwebjs_auth" {
		t.Errorf("bridge defaults = %+v", cfg.Bridge)
	}
	if cfg.Server.Port != 3000 || cfg.Addr() != ":3000" {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if FileUsed() != "" {
		t.Errorf("no config file expected, got %q", FileUsed())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setupTestConfig(t)
	t.Setenv("ROSTER_DATA_SHEET", "Sheet1")
	t.Setenv("ROSTER_AUDIT_ENABLED", "false")
	t.Setenv("ROSTER_BOT_SEARCH_PREFIXES", "!find,!cherche")
	t.Setenv("PORT", "8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Sheet != "Sheet1" {
		t.Errorf("sheet = %q", cfg.Data.Sheet)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled by env")
	}
	if strings.Join(cfg.Bot.SearchPrefixes, "|") != "!find|!cherche" {
		t.Errorf("search prefixes = %q", cfg.Bot.SearchPrefixes)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("PORT not honoured: %d", cfg.Server.Port)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := setupTestConfig(t)
	path := filepath.Join(dir, "custom.yaml")
	content := "data:\n  path: /srv/roster.xlsx\nfields:\n  hotel: الفندق\nserver:\n  port: 9000\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Path != "/srv/roster.xlsx" || cfg.Fields.Hotel != "الفندق" || cfg.Server.Port != 9000 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Fields.Name != "الاسم و اللقب" {
		t.Errorf("unset field lost its default: %q", cfg.Fields.Name)
	}
	if FileUsed() != path {
		t.Errorf("FileUsed = %q", FileUsed())
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	setupTestConfig(t)
	if _, err := Load("/nonexistent/rosterbot.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadHomeConfig(t *testing.T) {
	dir := setupTestConfig(t)
	os.MkdirAll(filepath.Join(dir, ".rosterbot"), 0700)
	os.WriteFile(filepath.Join(dir, ".rosterbot", "config.yaml"), []byte("log:\n  level: debug\n"), 0600)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("home config not read: level = %q", cfg.Log.Level)
	}
}

func TestSetAndGet(t *testing.T) {
	dir := setupTestConfig(t)
	if _, err := Load(""); err != nil {
		t.Fatal(err)
	}

	if err := Set("data.sheet", "Roster"); err != nil {
		t.Fatal(err)
	}
	if got := Get("data.sheet"); got != "Roster" {
		t.Errorf("Get(data.sheet) = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, ".rosterbot", "config.yaml")); err != nil {
		t.Errorf("config not saved: %v", err)
	}
	if got := Get("bot.search_prefixes"); got != "!بحث عن, !search" {
		t.Errorf("Get(bot.search_prefixes) = %q", got)
	}
}

func TestValidate(t *testing.T) {
	setupTestConfig(t)
	if _, err := Load(""); err != nil {
		t.Fatal(err)
	}
	viper.Set("data.path", "/nonexistent/data.xlsx")
	viper.Set("upload.filename", "../data.xlsx")
	viper.Set("server.port", 70000)

	found := map[string]string{}
	for _, issue := range Validate() {
		found[issue.Key] = issue.Severity
	}
	if found["data.path"] != "warning" {
		t.Error("expected warning for missing dataset")
	}
	if found["upload.filename"] != "error" {
		t.Error("expected error for path in upload filename")
	}
	if found["server.port"] != "error" {
		t.Error("expected error for out-of-range port")
	}
	if _, ok := found["upload.confirm_command"]; ok {
		t.Error("default confirm command should be valid")
	}
	if _, ok := found["upload.temp_dir"]; ok {
		t.Error("default temp dir should be valid")
	}
}

func TestValidateStagingOnLiveDataset(t *testing.T) {
	setupTestConfig(t)
	if _, err := Load(""); err != nil {
		t.Fatal(err)
	}
	viper.Set("data.path", filepath.Join("data", "data.xlsx"))
	viper.Set("upload.temp_dir", "data/")
	viper.Set("upload.filename", "data.xlsx")

	for _, issue := range Validate() {
		if issue.Key == "upload.temp_dir" {
			if issue.Severity != "error" {
				t.Errorf("severity = %q, want error", issue.Severity)
			}
			return
		}
	}
	t.Error("expected an issue for staging onto the live dataset")
}

func TestShowConfig(t *testing.T) {
	setupTestConfig(t)
	if _, err := Load(""); err != nil {
		t.Fatal(err)
	}
	viper.Set("data.sheet", "Feuil9")

	output := ShowConfig()
	for _, want := range []string{"(defaults)", "Feuil9", "!loadnewdata", "session-bot"} {
		if !strings.Contains(output, want) {
			t.Errorf("ShowConfig missing %q", want)
		}
	}

	y, err := ShowYAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(y, "sheet: Feuil9") {
		t.Errorf("yaml output missing sheet:\n%s", y)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.Contains(path, ".rosterbot") || !strings.HasSuffix(path, "config.yaml") {
		t.Errorf("unexpected path: %q", path)
	}
}
