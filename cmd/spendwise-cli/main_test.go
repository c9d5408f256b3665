package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spendwise/internal/bridge"
	"spendwise/internal/config"
	"spendwise/internal/gateway/memory"
	"spendwise/internal/log"
	"spendwise/internal/session"
)

var fixedNow = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, picker bridge.Picker) (*app, *bytes.Buffer, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ExportDir:  filepath.Join(dir, "exports"),
		ThemeFile:  filepath.Join(dir, "theme.json"),
		AppVersion: "9.9.9",
	}
	clock := func() time.Time { return fixedNow }
	logger := log.Wrap(slog.New(slog.NewTextHandler(io.Discard, nil)), log.ComponentApp)
	store := memory.New(memory.MockCategories(fixedNow), memory.MockTransactions(fixedNow), memory.WithClock(clock))
	sess := session.New(store, session.WithClock(clock), session.WithLogger(logger))

	var out bytes.Buffer
	a, stop := newApp(context.Background(), cfg, sess, picker, &out, logger)
	a.now = clock
	t.Cleanup(stop)
	return a, &out, cfg
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bank.csv")
	csv := "Date,Description,Amount\n2024-01-16,Lunch,-11.00\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		picker  bridge.Picker
		args    []string
		want    string
		wantLen int
	}{
		{name: "flag", args: []string{"-file", path}, want: "Imported 1 transactions from bank.csv", wantLen: 3},
		{name: "picked", picker: bridge.StaticPicker{Path: path}, want: "Imported 1", wantLen: 3},
		{name: "canceled", picker: bridge.StaticPicker{}, want: "Import canceled.", wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out, _ := newTestApp(t, tt.picker)
			if err := a.run(context.Background(), "import", tt.args); err != nil {
				t.Fatalf("import: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
			if got := len(a.sess.Transactions("", "")); got != tt.wantLen {
				t.Errorf("ledger size = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestExportSavesThroughBridge(t *testing.T) {
	a, out, cfg := newTestApp(t, nil)
	if err := a.run(context.Background(), "export", []string{"-format", "json", "-search", "shell"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	want := filepath.Join(cfg.ExportDir, "transactions-2024-01-20.json")
	b, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(b), "Shell Gas Station") || strings.Contains(string(b), "Starbucks") {
		t.Errorf("export content = %s", b)
	}
	if !strings.Contains(out.String(), "Exported 1 transactions") {
		t.Errorf("output = %q", out.String())
	}

	if err := a.run(context.Background(), "export", []string{"-format", "xml"}); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestReportAndList(t *testing.T) {
	a, out, _ := newTestApp(t, nil)
	if err := a.run(context.Background(), "report", []string{"-local", "-period", "1year"}); err != nil {
		t.Fatalf("report: %v", err)
	}
	text := strings.ToLower(out.String())
	for _, want := range []string{"summary", "transportation", "shell"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := a.run(context.Background(), "list", []string{"-category", "1"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "Starbucks") || strings.Contains(out.String(), "Shell") {
		t.Errorf("list output = %s", out.String())
	}
}

func TestChart(t *testing.T) {
	a, out, _ := newTestApp(t, nil)
	path := filepath.Join(t.TempDir(), "chart.png")
	if err := a.run(context.Background(), "chart", []string{"-local", "-period", "1year", "-out", path}); err != nil {
		t.Fatalf("chart: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chart: %v (output %q)", err, out.String())
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Error("chart is not a PNG")
	}
}

func TestThemeAndVersion(t *testing.T) {
	a, out, cfg := newTestApp(t, nil)
	ctx := context.Background()

	if err := a.run(ctx, "theme", nil); err != nil || strings.TrimSpace(out.String()) != "light" {
		t.Fatalf("default theme = %q, %v", out.String(), err)
	}
	if err := a.run(ctx, "theme", []string{"dark"}); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if b, _ := os.ReadFile(cfg.ThemeFile); !strings.Contains(string(b), "dark") {
		t.Errorf("theme file = %s", b)
	}
	if err := a.run(ctx, "theme", []string{"neon"}); err == nil {
		t.Error("invalid theme should fail")
	}

	out.Reset()
	if err := a.run(ctx, "version", nil); err != nil || !strings.Contains(out.String(), "9.9.9") {
		t.Errorf("version = %q, %v", out.String(), err)
	}
}

func TestChat(t *testing.T) {
	a, out, _ := newTestApp(t, nil)
	if err := a.run(context.Background(), "chat", nil); err != nil || out.Len() == 0 {
		t.Fatalf("suggestions = %q, %v", out.String(), err)
	}
	out.Reset()
	if err := a.run(context.Background(), "chat", []string{"total", "spending"}); err != nil || out.Len() == 0 {
		t.Fatalf("chat = %q, %v", out.String(), err)
	}
	if err := a.run(context.Background(), "nope", nil); err == nil {
		t.Error("unknown command should fail")
	}
}
