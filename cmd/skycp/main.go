package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/franksops/skycp/config"
	"github.com/franksops/skycp/engine"
	"github.com/franksops/skycp/logging"
	"github.com/franksops/skycp/metrics"
	"github.com/franksops/skycp/provider"
	"github.com/franksops/skycp/store"
	"github.com/franksops/skycp/ui"
)

const (
	tuiInterval   = 500 * time.Millisecond
	plainInterval = 2 * time.Second
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: skycp <command> [options] <args>")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  cp SRC DST     copy a file, directory tree or prefix")
	fmt.Fprintln(os.Stderr, "  ls PATH        list a local directory or remote prefix")
	fmt.Fprintln(os.Stderr, "  status JOB_ID  show the journal of a transfer job")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	fmt.Fprint(os.Stderr, config.Flags("skycp").FlagUsages())
	fmt.Fprintln(os.Stderr, "\nExamples:")
	fmt.Fprintln(os.Stderr, "  skycp cp /data/local s3://bucket/prefix/ -n 64")
	fmt.Fprintln(os.Stderr, "  skycp cp gs://bucket/logs/ ./logs --tui")
	fmt.Fprintln(os.Stderr, "  skycp ls https://account.blob.core.windows.net/container/path/")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var run func(*app, []string) error
	var nargs int
	switch os.Args[1] {
	case "cp":
		run, nargs = runCopy, 2
	case "ls":
		run, nargs = runList, 1
	case "status":
		run, nargs = runStatus, 1
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	flags := config.Flags(os.Args[1])
	if err := flags.Parse(os.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flags.NArg() != nargs {
		usage()
		os.Exit(2)
	}

	a, err := newApp(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skycp: %v\n", err)
		os.Exit(1)
	}

	err = run(a, flags.Args())
	a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skycp: %v\n", err)
		os.Exit(1)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   store.Store
	tracker *engine.JobTracker
	orch    *engine.Orchestrator
}

func newApp(flags *pflag.FlagSet) (*app, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.State.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	logOpts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Development: cfg.Log.Development}
	if cfg.TUI && logOpts.File == "" {
		logOpts.File = filepath.Join(cfg.State.Dir, "skycp.log")
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.State.Engine, cfg.StatePath())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	tracker := engine.NewJobTracker(st, engine.DefaultCheckpointConfig)
	orch := engine.NewOrchestrator(provider.NewOpener(cfg.ProviderOptions()), cfg.EngineOptions(), logger).
		WithTracker(tracker)
	orch.Observe(func(job *engine.Job, unit engine.TransferUnit, err error) {
		metrics.RecordUnit(job.Direction.String(), unit.Size, err)
	})

	if cfg.Metrics.Addr != "" {
		metrics.Init()
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server stopped", zap.String("addr", cfg.Metrics.Addr), zap.Error(err))
			}
		}()
	}

	return &app{cfg: cfg, logger: logger, store: st, tracker: tracker, orch: orch}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close state store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func runCopy(a *app, args []string) error {
	src, dst := args[0], args[1]

	// Signals stop dispatch; units already running finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := a.orch.Prepare(ctx, src, dst)
	if err != nil {
		metrics.RecordJob("unknown", string(engine.StateFailed))
		return err
	}

	var res *engine.Result
	if a.cfg.TUI {
		res, err = a.executeTUI(ctx, stop, job, src+" -> "+dst)
	} else {
		res, err = a.executePlain(ctx, job)
	}
	metrics.RecordJob(job.Direction.String(), string(res.State))

	fmt.Printf("job %s: %s, %d/%d units, %d failed, %s in %s\n",
		res.JobID, res.State, res.UnitsCompleted, res.TotalUnits, res.UnitsFailed,
		humanize.IBytes(uint64(res.BytesCompleted)), res.Elapsed.Round(time.Millisecond))
	return err
}

func (a *app) executePlain(ctx context.Context, job *engine.Job) (*engine.Result, error) {
	reportCtx, cancel := context.WithCancel(context.Background())
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		ui.Report(reportCtx, os.Stderr, plainInterval, job.Progress.Snapshot)
	}()

	res, err := a.orch.Execute(ctx, job)
	cancel()
	<-reported
	return res, err
}

func (a *app) executeTUI(ctx context.Context, stop context.CancelFunc, job *engine.Job, title string) (*engine.Result, error) {
	p := tea.NewProgram(ui.NewTUIModel(title, job.Progress.Snapshot()), tea.WithAltScreen())

	var (
		res  *engine.Result
		err  error
		done = make(chan struct{})
	)
	go func() {
		defer close(done)

		tickCtx, cancel := context.WithCancel(ctx)
		go func() {
			ticker := time.NewTicker(tuiInterval)
			defer ticker.Stop()
			for {
				select {
				case <-tickCtx.Done():
					return
				case now := <-ticker.C:
					p.Send(ui.TUIUpdateMsg{Snapshot: job.Progress.Snapshot(), At: now})
				}
			}
		}()

		res, err = a.orch.Execute(ctx, job)
		cancel()
		p.Send(ui.TUIUpdateMsg{Snapshot: job.Progress.Snapshot(), At: time.Now()})
		p.Send(ui.TUIDoneMsg{Err: err})
	}()

	final, runErr := p.Run()
	if runErr != nil {
		a.logger.Warn("progress display failed", zap.Error(runErr))
	}
	if m, ok := final.(ui.TUIModel); runErr != nil || (ok && m.Interrupted()) {
		stop()
	}
	<-done
	return res, err
}

func runList(a *app, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := a.orch.List(ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		size := humanize.IBytes(uint64(e.Size))
		if e.IsDir {
			size = "-"
		}
		modTime := "-"
		if !e.ModTime.IsZero() {
			modTime = e.ModTime.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", size, modTime, e.Name)
	}
	return w.Flush()
}

func runStatus(a *app, args []string) error {
	records, err := a.tracker.Records(args[0])
	if err != nil {
		return fmt.Errorf("job %s: %w", args[0], err)
	}

	counts := make(map[store.JobState]int)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tBYTES\tSOURCE\tDESTINATION\tERROR")
	for _, r := range records {
		counts[r.State]++
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.State, humanize.IBytes(uint64(r.TotalBytes)), r.SourcePath, r.DestinationPath, r.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d units: %d completed, %d failed, %d in progress, %d pending\n",
		len(records),
		counts[store.StateCompleted], counts[store.StateFailed],
		counts[store.StateInProgress], counts[store.StatePending])
	return nil
}
