package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/franksops/gocopy/config"
	"github.com/franksops/gocopy/engine"
	"github.com/franksops/gocopy/logging"
	"github.com/franksops/gocopy/provider"
	"github.com/franksops/gocopy/store"
	"github.com/franksops/gocopy/ui"
)

type rootOpts struct {
	configFile string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOpts{cfg: config.Default()}

	cmd := &cobra.Command{
		Use:   "gcopy --source DIR --dest DIR [flags]",
		Short: "Copy the top-level files of a directory with a fixed pool of workers",
		Example: "  gcopy --source /data/in --dest /data/out --threads 8\n" +
			"  gcopy --source /data/in --dest s3://bucket/prefix --pattern '*.csv'",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML config file; flags override its values")
	f.StringVarP(&opts.cfg.Source, "source", "s", "", "source directory (local or s3://bucket/prefix)")
	f.StringVarP(&opts.cfg.Destination, "dest", "d", "", "destination directory, deleted and recreated (local or s3://bucket/prefix)")
	f.IntVarP(&opts.cfg.Threads, "threads", "t", opts.cfg.Threads, "number of worker queues")
	f.StringVar(&opts.cfg.Pattern, "pattern", opts.cfg.Pattern, "only copy file names matching this glob")
	f.IntVar(&opts.cfg.BufferSize, "buffer-size", opts.cfg.BufferSize, "copy buffer size in bytes for each worker")
	f.StringVar(&opts.cfg.StateDir, "state-dir", "", "directory for the job ledger (disabled when empty)")
	f.BoolVar(&opts.cfg.NoMetadata, "no-metadata", false, "do not preserve permissions and modification times")
	f.BoolVar(&opts.cfg.TUI, "tui", false, "show the interactive queue view")
	f.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "log level (debug, info, warn, error)")
	f.BoolVar(&opts.cfg.LogJSON, "log-json", false, "log JSON instead of console output")

	return cmd
}

// resolve layers the config file under the flags that were set explicitly.
func (o *rootOpts) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("source", func() { cfg.Source = o.cfg.Source })
	set("dest", func() { cfg.Destination = o.cfg.Destination })
	set("threads", func() { cfg.Threads = o.cfg.Threads })
	set("pattern", func() { cfg.Pattern = o.cfg.Pattern })
	set("buffer-size", func() { cfg.BufferSize = o.cfg.BufferSize })
	set("state-dir", func() { cfg.StateDir = o.cfg.StateDir })
	set("no-metadata", func() { cfg.NoMetadata = o.cfg.NoMetadata })
	set("tui", func() { cfg.TUI = o.cfg.TUI })
	set("log-level", func() { cfg.LogLevel = o.cfg.LogLevel })
	set("log-json", func() { cfg.LogJSON = o.cfg.LogJSON })

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	logOut := stderr
	if cfg.TUI {
		// The TUI owns the terminal; keep logs out of it.
		logOut = io.Discard
	}
	logger := logging.New(logOut, cfg.LogLevel, !cfg.LogJSON)
	ctx = logger.WithContext(ctx)

	srcProvider, srcDir, err := createProvider(ctx, cfg.Source, provider.DefaultMetadataPolicy)
	if err != nil {
		return errors.Errorf("failed to create source provider: %w", err)
	}
	policy := provider.DefaultMetadataPolicy
	if cfg.NoMetadata {
		policy = provider.NoMetadata
	}
	dstProvider, dstDir, err := createProvider(ctx, cfg.Destination, policy)
	if err != nil {
		return errors.Errorf("failed to create destination provider: %w", err)
	}

	opts := []engine.Option{
		engine.WithPattern(cfg.Pattern),
		engine.WithBufferSize(cfg.BufferSize),
	}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return errors.Errorf("failed to create state directory: %w", err)
		}
		stateStore, err := store.NewBoltStore(filepath.Join(cfg.StateDir, "state.db"))
		if err != nil {
			return errors.Errorf("failed to initialize state store: %w", err)
		}
		defer stateStore.Close()
		opts = append(opts, engine.WithStore(stateStore, engine.DefaultCheckpointConfig))
	}

	var report *engine.Report
	if cfg.TUI {
		report, err = runWithTUI(ctx, srcProvider, dstProvider, srcDir, dstDir, cfg.Threads, opts)
	} else {
		report, err = engine.NewDispatcher(srcProvider, dstProvider, opts...).Run(ctx, srcDir, dstDir, cfg.Threads)
	}

	if report != nil {
		printSummary(stdout, report)
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("copy failed")
		if cfg.TUI {
			fmt.Fprintln(stderr, color.New(color.FgRed).Sprint(err))
		}
	}
	return err
}

func runWithTUI(
	ctx context.Context,
	src, dst provider.Provider,
	srcDir, dstDir string,
	threads int,
	opts []engine.Option,
) (*engine.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := ui.NewUIState()
	program := tea.NewProgram(ui.NewTUIModel(state.Snapshot()), tea.WithAltScreen(), tea.WithContext(ctx))

	type outcome struct {
		report *engine.Report
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		d := engine.NewDispatcher(src, dst, append(opts, engine.WithObserver(state))...)
		report, err := d.Run(ctx, srcDir, dstDir, threads)
		if report == nil {
			state.Fail(err)
		}
		done <- outcome{report, err}
	}()

	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				program.Send(ui.TUIUpdateMsg{State: state.Snapshot()})
			}
		}
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return nil, errors.Errorf("tui: %w", err)
	}

	// Quitting the view before the copy is done cancels the remaining jobs.
	cancel()
	out := <-done
	return out.report, out.err
}

// createProvider maps a CLI location to a provider and the directory to use
// inside it.
func createProvider(ctx context.Context, location string, policy provider.MetadataPolicy) (provider.Provider, string, error) {
	if bucket, prefix, ok := provider.ParseS3URL(location); ok {
		p, err := provider.NewS3Provider(ctx, bucket, prefix)
		return p, "", err
	}
	return provider.NewLocalProvider("").WithMetadataPolicy(policy), location, nil
}

func printSummary(w io.Writer, report *engine.Report) {
	status := color.New(color.FgGreen).Sprint("copied")
	if report.Copied() != report.Files {
		status = color.New(color.FgYellow).Sprint("partially copied")
	}
	fmt.Fprintf(w, "%s %d/%d files (%d bytes) with %d workers in %s\n",
		status, report.Copied(), report.Files, report.Bytes, report.Workers,
		color.New(color.Bold).Sprintf("%d ms", report.Elapsed.Milliseconds()))
}
