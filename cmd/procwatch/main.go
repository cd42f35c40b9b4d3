//go:build linux

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/srodi/procwatch/pkg/collector/owner"
	"github.com/srodi/procwatch/pkg/collector/snapshot"
	"github.com/srodi/procwatch/pkg/config"
	"github.com/srodi/procwatch/pkg/engine"
	"github.com/srodi/procwatch/pkg/metadata"
	"github.com/srodi/procwatch/pkg/report"
	"github.com/srodi/procwatch/pkg/types"
	"github.com/srodi/procwatch/pkg/ui"
)

func parseConfig() (config.Config, error) {
	configDir := flag.String("config", ".", "directory holding procwatch.yaml")
	interval := flag.Duration("interval", types.DefaultRefreshInterval, "minimum time between refreshes (e.g. 3s, 1m)")
	poll := flag.Duration("poll", time.Second, "how often the refresh deadline is checked")
	view := flag.String("view", "list", "initial view: list, tree or home")
	sortBy := flag.String("sort", "cpu", "list order: cpu, mem or pid")
	hideKernel := flag.Bool("hide-kernel", false, "hide kernel threads such as kworker, ksoftirqd, etc")
	nameFilter := flag.String("filter", "", "only show processes whose name contains this substring (case-insensitive)")
	once := flag.Bool("once", false, "print a single report and exit")
	output := flag.String("output", "text", "one-shot output format: text or yaml")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warning, error)")
	logFile := flag.String("log-file", "", "write logs to this file instead of stderr")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		return config.Config{}, err
	}

	// flags only win when given explicitly
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			cfg.RefreshInterval = *interval
		case "poll":
			cfg.PollInterval = *poll
		case "view":
			cfg.View = *view
		case "sort":
			cfg.SortBy = *sortBy
		case "hide-kernel":
			cfg.HideKernel = *hideKernel
		case "filter":
			cfg.NameFilter = *nameFilter
		case "once":
			cfg.Once = *once
		case "output":
			cfg.Output = *output
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		}
	})
	return cfg, cfg.Validate()
}

func main() {
	logger.InitLogger("pretty")

	cfg, err := parseConfig()
	if err != nil {
		logger.L().Fatal("invalid configuration", helpers.Error(err))
	}
	if err := logger.L().SetLevel(cfg.LogLevel); err != nil {
		logger.L().Warning("unknown log level, keeping default", helpers.String("level", cfg.LogLevel))
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.L().Fatal("opening log file", helpers.String("path", cfg.LogFile), helpers.Error(err))
		}
		defer f.Close()
		logger.L().SetWriter(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := owner.NewResolver(owner.DefaultProcRoot)
	if err != nil {
		logger.L().Fatal("initializing owner resolver", helpers.Error(err))
	}
	source := snapshot.NewSource()
	cache := metadata.NewCache(source, resolver)
	eng := engine.New(source, cache, engine.Options{
		Interval:    cfg.RefreshInterval,
		SortBy:      report.SortBy(cfg.SortBy),
		Filter:      report.FilterConfig{HideKernel: cfg.HideKernel, NameFilter: cfg.NameFilter},
		EvictExited: cfg.EvictExited,
	})
	defer eng.Close()

	// CPU usage is measured between two reads of the table
	if err := source.Prime(ctx); err != nil {
		logger.L().Fatal("reading process table", helpers.Error(err))
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(cfg.Warmup):
	}

	if cfg.Once {
		if err := printOnce(ctx, eng, cfg); err != nil {
			logger.L().Fatal("one-shot report failed", helpers.Error(err))
		}
		return
	}
	run(ctx, eng, cfg)
}

func printOnce(ctx context.Context, eng *engine.Engine, cfg config.Config) error {
	view := cfg.ParsedView()
	if view == types.ViewNone {
		view = types.ViewList
	}
	r, err := eng.RequestView(ctx, view, time.Now())
	if err != nil {
		return err
	}

	if cfg.Output == "yaml" {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(r)
	}
	var buf bytes.Buffer
	for _, line := range r.Lines {
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}

func run(ctx context.Context, eng *engine.Engine, cfg config.Config) {
	cleanupTerminal := enableSingleView()
	defer cleanupTerminal()

	keyCtx, cancelKeys := context.WithCancel(ctx)
	defer cancelKeys()
	keys := readKeys(keyCtx, os.Stdin)

	show := func(r types.Report, err error) {
		if err != nil {
			logger.L().Debug("refresh failed, showing previous report", helpers.Error(err))
		}
		clearScreen()
		fmt.Print(ui.Frame(r, cfg.RefreshInterval))
	}
	show(eng.RequestView(ctx, cfg.ParsedView(), time.Now()))

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			action, view := decodeKey(b)
			switch action {
			case keyQuit:
				return
			case keyView:
				show(eng.RequestView(ctx, view, time.Now()))
			}
		case now := <-ticker.C:
			before := eng.CurrentReport().GeneratedAt
			r, err := eng.RefreshIfDue(ctx, now)
			if err != nil || !r.GeneratedAt.Equal(before) {
				show(r, err)
			}
		}
	}
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
}

func enableSingleView() func() {
	stdoutFD := int(os.Stdout.Fd())
	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdoutFD) {
		return func() {}
	}

	fmt.Print("\033[?1049h") // switch to alternate buffer
	fmt.Print("\033[?25l")   // hide cursor

	var restore []func()
	if term.IsTerminal(stdinFD) {
		if undo, err := enableKeyInput(stdinFD); err != nil {
			logger.L().Warning("unable to switch stdin to key input", helpers.Error(err))
		} else if undo != nil {
			restore = append(restore, undo)
		}
	}

	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Print("\033[?25h")   // show cursor
		fmt.Print("\033[?1049l") // restore main buffer
	}
}

// enableKeyInput turns off echo and line buffering so single key presses
// reach the driver while the alternate-screen view stays clean.
func enableKeyInput(fd int) (func(), error) {
	termState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	updated := *termState
	updated.Lflag &^= unix.ECHO | unix.ICANON
	updated.Cc[unix.VMIN] = 1
	updated.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &updated); err != nil {
		return nil, err
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, termState)
	}, nil
}
