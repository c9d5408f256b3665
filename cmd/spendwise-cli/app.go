package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"spendwise/internal/bridge"
	"spendwise/internal/config"
	"spendwise/internal/core"
	"spendwise/internal/export"
	"spendwise/internal/log"
	"spendwise/internal/report"
	"spendwise/internal/session"
)

// app runs one command against a loaded session. File dialogs, saving and
// the theme go through the bridge host like they do in the desktop shell.
type app struct {
	cfg    *config.Config
	sess   *session.Session
	client *bridge.Client
	out    io.Writer
	now    func() time.Time
}

// newApp starts a bridge host for the duration of the command. stop closes
// the bus and waits for the host.
func newApp(ctx context.Context, cfg *config.Config, sess *session.Session, picker bridge.Picker, out io.Writer, logger *log.Logger) (*app, func()) {
	bus := bridge.NewBus(4)
	host := bridge.NewHost(bus, picker, cfg.ExportDir, cfg.ThemeFile, cfg.AppVersion,
		bridge.WithLogger(logger))

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = host.Serve(ctx)
	}()

	a := &app{cfg: cfg, sess: sess, client: bridge.NewClient(bus), out: out, now: time.Now}
	var once sync.Once
	return a, func() {
		once.Do(func() {
			bus.Close()
			<-served
		})
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "import":
		return a.runImport(ctx, args)
	case "list":
		return a.runList(ctx, args)
	case "report":
		return a.runReport(ctx, args)
	case "chart":
		return a.runChart(ctx, args)
	case "export":
		return a.runExport(ctx, args)
	case "chat":
		return a.runChat(ctx, args)
	case "theme":
		return a.runTheme(ctx, args)
	case "version":
		return a.runVersion(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parse uses ContinueOnError so tests can drive commands. Usage goes to
// stderr.
func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	return fs.Parse(args)
}

func (a *app) runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "CSV file to import (prompted when empty)")
	if err := parse(fs, args); err != nil {
		return err
	}

	path := *file
	if path == "" {
		picked, err := a.client.SelectFile(ctx)
		if errors.Is(err, bridge.ErrCanceled) {
			fmt.Fprintln(a.out, "Import canceled.")
			return nil
		}
		if err != nil {
			return err
		}
		path = picked
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := a.sess.UploadCSV(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	return nil
}

func (a *app) runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	search := fs.String("search", "", "match description or merchant")
	category := fs.String("category", "", "category id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.sess.Load(ctx); err != nil {
		return err
	}
	report.Transactions(a.out, a.sess.Transactions(*search, *category), a.sess.Categories())
	return nil
}

func (a *app) snapshot(ctx context.Context, period string, local bool) (core.Snapshot, error) {
	if local {
		return a.sess.LocalSnapshot(period)
	}
	return a.sess.Analytics(ctx, period)
}

func (a *app) runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	period := fs.String("period", "6months", "1month, 3months, 6months or 1year")
	local := fs.Bool("local", false, "compute analytics from the loaded transactions")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.sess.Load(ctx); err != nil {
		return err
	}
	snap, err := a.snapshot(ctx, *period, *local)
	if err != nil {
		return err
	}

	sum := a.sess.Summary()
	fmt.Fprintln(a.out, "Summary")
	report.Summary(a.out, sum.Totals, sum.TransactionCount, sum.AverageMonthlySpend)
	fmt.Fprintf(a.out, "\nSpending by category (%s)\n", *period)
	report.Breakdown(a.out, snap.CategoryBreakdown)
	fmt.Fprintln(a.out, "\nTop merchants")
	report.Merchants(a.out, snap.TopMerchants)
	return nil
}

func (a *app) runChart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ContinueOnError)
	period := fs.String("period", "6months", "1month, 3months, 6months or 1year")
	local := fs.Bool("local", false, "compute analytics from the loaded transactions")
	out := fs.String("out", "", "output PNG (default monthly-spending.png in EXPORT_DIR)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.sess.Load(ctx); err != nil {
		return err
	}
	snap, err := a.snapshot(ctx, *period, *local)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.MonthlyChart(&buf, snap.MonthlySpending, "Monthly spending ("+*period+")"); err != nil {
		if errors.Is(err, report.ErrNoChartData) {
			fmt.Fprintln(a.out, "No spending to chart.")
			return nil
		}
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Join(a.cfg.ExportDir, "monthly-spending.png")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	fmt.Fprintf(a.out, "Chart written to %s\n", path)
	return nil
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	formatFlag := fs.String("format", "csv", "csv or json")
	search := fs.String("search", "", "match description or merchant")
	category := fs.String("category", "", "category id")
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := export.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}
	if err := a.sess.Load(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	txs := a.sess.Transactions(*search, *category)
	if err := export.Write(&buf, format, txs); err != nil {
		return err
	}
	path, err := a.client.SaveFile(ctx, buf.String(), export.FileName(format, a.now()))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported %d transactions to %s\n", len(txs), path)
	return nil
}

func (a *app) runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		for _, s := range a.sess.Suggestions() {
			fmt.Fprintf(a.out, "- %s\n", s)
		}
		return nil
	}
	if err := a.sess.Load(ctx); err != nil {
		return err
	}
	reply, err := a.sess.Chat(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, reply.Response)
	return nil
}

func (a *app) runTheme(ctx context.Context, args []string) error {
	if len(args) == 0 {
		t, err := a.client.Theme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, t)
		return nil
	}
	t, err := bridge.ParseTheme(args[0])
	if err != nil {
		return err
	}
	if err := a.client.SetTheme(ctx, t); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Theme set to %s\n", t)
	return nil
}

func (a *app) runVersion(ctx context.Context) error {
	v, err := a.client.AppVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "SpendWise %s (%s)\n", v, a.client.Platform())
	return nil
}
