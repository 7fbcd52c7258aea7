package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/refptr"
	"github.com/wippyai/refptr/resource"
	"github.com/wippyai/refptr/script"
)

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to a YAML scenario")
		configFile  = flag.String("config", "refdemo.yaml", "Path to an optional YAML config")
		budget      = flag.String("budget", "", "Cap live control block bytes (e.g. 4KiB)")
		track       = flag.Bool("track", false, "Track live blocks and report leaks")
		verbose     = flag.Bool("v", false, "Verbose debug logging")
		watch       = flag.Bool("watch", false, "Re-run the scenario whenever it changes")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *scriptFile == "" && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: refdemo -script <scenario.yaml> [-watch] [-budget 4KiB] [-track] [-v]")
		fmt.Fprintln(os.Stderr, "       refdemo -i  (interactive mode)")
		os.Exit(1)
	}

	fileCfg, err := script.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := fileCfg.Merge(script.Config{Budget: *budget, Track: *track, Verbose: *verbose})

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	refptr.SetLogger(log.Named("refptr"))
	resource.SetLogger(log.Named("resource"))

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *watch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := watchScenario(ctx, *scriptFile, cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Stdout, *scriptFile, cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// run executes one scenario and prints its trace and final handle state.
// Config values in the scenario file apply on top of cfg.
func run(w io.Writer, path string, cfg script.Config, log *zap.Logger) error {
	sc, err := script.Load(path)
	if err != nil {
		return err
	}

	r, err := script.NewRunner(cfg.Merge(sc.Config), log)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Scenario: %s (%d steps)\n\n", sc.Name, len(sc.Steps))
	runErr := r.Run(sc)

	for _, e := range r.Trace() {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if hs := r.Handles(); len(hs) > 0 {
		fmt.Fprintf(w, "\nHandles:\n")
		for _, h := range hs {
			fmt.Fprintf(w, "  %s\n", h)
		}
	}

	closeErr := r.Close()
	s := r.Stats()
	fmt.Fprintf(w, "\nBlocks: %d allocated, %d freed, %d failed, peak %d bytes\n",
		s.Allocs, s.Frees, s.Failures, s.PeakBytes)

	if runErr != nil {
		return runErr
	}
	return closeErr
}
