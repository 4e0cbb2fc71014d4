// heapsim runs heap scenarios and reports collection statistics.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/heapcore/config"
	"github.com/chazu/heapcore/gc"
	"github.com/chazu/heapcore/scenario"
	"github.com/chazu/heapcore/telemetry"
)

type options struct {
	configDir string
	verbose   bool
	database  string
	eventLog  string
	linger    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configDir, "C", ".", "Directory to search upward for heap.toml")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose output")
	flag.StringVar(&opts.database, "db", "", "SQLite file for cycle statistics (overrides [telemetry] database)")
	flag.StringVar(&opts.eventLog, "events", "", "CBOR event log output (overrides [telemetry] event-log)")
	flag.DurationVar(&opts.linger, "linger", 0, "Keep the periodic collector running this long after the scenarios")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: heapsim [options] scenario.toml...\n\n")
		fmt.Fprintf(os.Stderr, "Runs heap scenarios against one heap and reports collection statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  heapsim reload.toml                    # Run a scenario\n")
		fmt.Fprintf(os.Stderr, "  heapsim -db cycles.db a.toml b.toml    # Persist cycle statistics\n")
		fmt.Fprintf(os.Stderr, "  heapsim -events run.cbor reload.toml   # Record every heap event\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, paths []string, out io.Writer) error {
	cfg, err := config.FindAndLoad(opts.configDir)
	if err != nil {
		return err
	}

	verbosity := cfg.Log.Verbosity
	if opts.verbose {
		verbosity = 2
	}
	var logPath *string
	if cfg.Log.Path != "" {
		p := cfg.Resolve(cfg.Log.Path)
		logPath = &p
	}
	commonlog.Configure(verbosity, logPath)

	dbPath := firstNonEmpty(opts.database, cfg.Resolve(cfg.Telemetry.Database))
	eventPath := firstNonEmpty(opts.eventLog, cfg.Resolve(cfg.Telemetry.EventLog))

	observers := gc.Observers{telemetry.NewLogObserver()}
	var recorder *telemetry.Recorder
	if eventPath != "" {
		recorder = telemetry.NewRecorder()
		observers = append(observers, recorder)
	}
	heap := gc.New(gc.WithCapacity(cfg.Heap.InitialCapacity), gc.WithObserver(observers))

	var store *telemetry.Store
	if dbPath != "" {
		store, err = telemetry.OpenStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	record := func(stats gc.CycleStats) {
		telemetry.LogCycle(heap, stats)
		if store != nil {
			if err := store.RecordCycle(heap.ID(), stats); err != nil {
				commonlog.GetLogger(telemetry.LoggerName).Errorf("%s", err)
			}
		}
	}

	var periodic *gc.PeriodicCollector
	if interval := cfg.CollectInterval(); interval > 0 {
		periodic = gc.NewPeriodicCollector(heap, interval, record)
		periodic.Start()
		defer periodic.Stop()
	}

	fmt.Fprintf(out, "heap %s\n", heap.ID())
	runner := scenario.NewRunner(heap)
	for _, path := range paths {
		s, err := scenario.Load(path)
		if err != nil {
			return err
		}
		res, err := runner.Run(s)
		if res != nil {
			for _, stats := range res.Cycles {
				record(stats)
			}
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		printResult(out, path, res)
	}

	if periodic != nil && opts.linger > 0 {
		time.Sleep(opts.linger)
		fmt.Fprintf(out, "periodic collector: %d cycles\n", periodic.CycleCount())
	}

	if recorder != nil {
		if err := recorder.WriteEventLog(eventPath, heap.ID()); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d events to %s\n", len(recorder.Records()), eventPath)
	}
	if store != nil {
		sum, err := store.Summarize(heap.ID())
		if err == nil {
			fmt.Fprintf(out, "recorded %d cycles: %d objects, %d bytes reclaimed in %s\n",
				sum.Cycles, sum.Reclaimed, sum.FreedBytes, sum.Total)
		}
	}
	return nil
}

func printResult(out io.Writer, path string, res *scenario.Result) {
	name := res.Name
	if name == "" {
		name = path
	}
	fmt.Fprintf(out, "%s: %d steps, %d collections, %d reloads\n", name, res.Steps, len(res.Cycles), res.Reloads)
	for i, c := range res.Cycles {
		fmt.Fprintf(out, "  cycle %d: reclaimed %d (%d bytes), live %d (%d bytes)\n",
			i+1, c.Reclaimed, c.FreedBytes, c.Live, c.LiveBytes)
	}
	if len(res.Deleted) > 0 {
		fmt.Fprintf(out, "  deleted-type objects: %v\n", res.Deleted)
	}
	fmt.Fprintf(out, "  heap: %d objects, %d bytes\n", res.Stats.Objects, res.Stats.AllocatedBytes)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
