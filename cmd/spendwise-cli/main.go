package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"spendwise/internal/bridge"
	"spendwise/internal/cache"
	"spendwise/internal/cli"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/session"
)

const commandTimeout = 5 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}

	cli.LoadEnvFile()
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger := cli.SetupLogger(level, log.ComponentApp, os.Stderr)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res := cli.OpenBackend(ctx, logger, cfg)
	defer res.Close()

	opts := []session.Option{
		session.WithLogger(logger.WithComponent(log.ComponentSession)),
		session.WithSnapshotCache(cache.NewLRUCache[core.Snapshot](cfg.AnalyticsCacheSize, cfg.AnalyticsCacheTTL)),
	}
	if res.Events != nil {
		opts = append(opts, session.WithPublisher(res.Events))
	}
	sess := session.New(res.Backend, opts...)
	defer sess.Close()

	picker := bridge.PromptPicker{In: os.Stdin, Out: os.Stdout}
	a, stop := newApp(ctx, cfg, sess, picker, os.Stdout, logger)
	defer stop()

	err := a.run(ctx, os.Args[1], os.Args[2:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "SpendWise CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  spendwise-cli <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  import    Import transactions from a CSV file")
	fmt.Fprintln(w, "  list      List transactions")
	fmt.Fprintln(w, "  report    Print the summary and analytics tables")
	fmt.Fprintln(w, "  chart     Render monthly spending as a PNG bar chart")
	fmt.Fprintln(w, "  export    Save transactions as CSV or JSON")
	fmt.Fprintln(w, "  chat      Ask the assistant a question")
	fmt.Fprintln(w, "  theme     Show or set the theme (light, dark)")
	fmt.Fprintln(w, "  version   Show the application version")
	fmt.Fprintln(w, "  help      Show this help message")
	fmt.Fprintln(w, "\nRun 'spendwise-cli <command> -h' for more information on a command.")
}

