// xdpfwd attaches a pre-compiled XDP forwarding program to a network
// interface and keeps its rule table synchronized with an on-disk
// configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/frobware/xdpfwd"
	"github.com/frobware/xdpfwd/bpffs"
	"github.com/frobware/xdpfwd/config"
	"github.com/frobware/xdpfwd/kernel"
	"github.com/frobware/xdpfwd/lock"
	"github.com/frobware/xdpfwd/logging"
	"github.com/frobware/xdpfwd/manager"
	"github.com/frobware/xdpfwd/stats"
	"github.com/frobware/xdpfwd/store/sqlite"
)

func usage(w io.Writer, name string) {
	fmt.Fprintf(w, "Usage: %s <COMMAND>\n\n", name)
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  run     Attach the XDP program and run the control loop\n")
	fmt.Fprintf(w, "  list    Print the parsed configuration and forwarding rules\n")
	fmt.Fprintf(w, "  status  Show recorded sessions and current map pins\n")
	fmt.Fprintf(w, "  help    Print this message\n")
}

// runFlags is everything the run subcommand accepts. Fields mirror the
// configuration file; flag presence, not value, decides whether a
// field overrides the file.
type runFlags struct {
	configPath string
	objectPath string
	dbPath     string

	iface            string
	verbose          int
	logFile          string
	pinMaps          bool
	updateTime       int
	noStats          bool
	statsPerSecond   bool
	stdoutUpdateTime int

	duration int
	skb      bool
	offload  bool

	logSpec       string
	logFormat     string
	metricsListen string
}

func cmdRun(args []string) error {
	paths := config.DefaultPaths()

	var rf runFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&rf.configPath, "config", config.DefaultConfigPath, "configuration file path")
	fs.StringVar(&rf.objectPath, "object", config.DefaultObjectPath, "XDP object file path")
	fs.StringVar(&rf.dbPath, "db", paths.DBPath(), "session database path")
	fs.StringVar(&rf.iface, "interface", "", "interface to attach to (overrides config)")
	fs.IntVar(&rf.verbose, "verbose", 0, "verbosity level (overrides config)")
	fs.StringVar(&rf.logFile, "log-file", "", "log to file instead of stdout (overrides config)")
	fs.BoolVar(&rf.pinMaps, "pin-maps", false, "pin maps to bpffs (overrides config)")
	fs.IntVar(&rf.updateTime, "update-time", 0, "config reload interval in seconds (overrides config)")
	fs.BoolVar(&rf.noStats, "no-stats", false, "disable stats output (overrides config)")
	fs.BoolVar(&rf.statsPerSecond, "stats-per-second", false, "report rates instead of totals (overrides config)")
	fs.IntVar(&rf.stdoutUpdateTime, "stdout-update-time", 0, "display interval in seconds (overrides config)")
	fs.IntVar(&rf.duration, "time", 0, "bound the run in seconds (0 = until signalled)")
	fs.BoolVar(&rf.skb, "skb", false, "allow generic/SKB attach fallback")
	fs.BoolVar(&rf.offload, "offload", false, "request hardware offload first")
	fs.StringVar(&rf.logSpec, "log", "", "log spec, e.g. info,manager=debug (overrides "+logging.EnvVar+")")
	fs.StringVar(&rf.logFormat, "log-format", "text", "log format: text or json")
	fs.StringVar(&rf.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (default off)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	overrides := collectOverrides(fs, &rf)

	fileCfg, _, err := config.Load(rf.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg := overrides.Apply(fileCfg)

	logger, closeLog, err := buildLogger(cfg, rf)
	if err != nil {
		return err
	}
	defer closeLog()

	if release, err := kernel.Release(); err == nil {
		logger.Info("starting xdpfwd",
			"kernel", release, "config", rf.configPath, "object", rf.objectPath)
	}

	if err := paths.EnsureDirectories(); err != nil {
		return err
	}

	instance, err := lock.Acquire(paths.LockPath())
	if err != nil {
		return err
	}
	defer instance.Release()

	ctx := context.Background()

	var store xdpfwd.Store
	if store, err = sqlite.New(ctx, rf.dbPath, logger); err != nil {
		logger.Warn("session store unavailable, continuing without history", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	adapter := kernel.New(kernel.WithLogger(logger))

	opts := []manager.Option{manager.WithLogger(logger)}
	if store != nil {
		opts = append(opts, manager.WithStore(store))
	}

	var metricsServer *http.Server
	if rf.metricsListen != "" {
		exporter := stats.NewExporter()
		metricsServer, err = stats.NewMetricsServer(rf.metricsListen, exporter)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		go func() {
			logger.Info("serving metrics", "addr", rf.metricsListen)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer metricsServer.Close()
		opts = append(opts, manager.WithExporter(exporter))
	}

	mgr := manager.New(paths, adapter, opts...)

	// The handler does nothing but flip the termination flag; the
	// control loop notices it at the next iteration boundary.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal", "signal", sig)
		mgr.RequestStop()
	}()

	return mgr.Run(ctx, manager.RunSettings{
		ConfigPath: rf.configPath,
		ObjectPath: rf.objectPath,
		Config:     cfg,
		Overrides:  overrides,
		Attach: xdpfwd.AttachOpts{
			Offload: rf.offload,
			Generic: rf.skb,
		},
	})
}

// collectOverrides records which flags were actually given. Presence
// is what matters: --update-time=0 must beat a non-zero file value.
func collectOverrides(fs *flag.FlagSet, rf *runFlags) config.Overrides {
	var o config.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interface":
			o.Interface = &rf.iface
		case "verbose":
			o.Verbose = &rf.verbose
		case "log-file":
			o.LogFile = &rf.logFile
		case "pin-maps":
			o.PinMaps = &rf.pinMaps
		case "update-time":
			o.UpdateTime = &rf.updateTime
		case "no-stats":
			o.NoStats = &rf.noStats
		case "stats-per-second":
			o.StatsPerSecond = &rf.statsPerSecond
		case "stdout-update-time":
			o.StdoutUpdateTime = &rf.stdoutUpdateTime
		case "time":
			o.Time = &rf.duration
		}
	})
	return o
}

func buildLogger(cfg config.Runtime, rf runFlags) (*slog.Logger, func(), error) {
	format, err := logging.ParseFormat(rf.logFormat)
	if err != nil {
		return nil, nil, err
	}

	output := os.Stdout
	closeLog := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = f
		closeLog = func() { f.Close() }
	}

	logger, err := logging.New(logging.Options{
		CLISpec:   rf.logSpec,
		EnvSpec:   os.Getenv(logging.EnvVar),
		Verbosity: cfg.Verbose,
		Format:    format,
		Output:    output,
	})
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return logger, closeLog, nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "configuration file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, mtime, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	fmt.Printf("config:      %s (modified %s)\n", *configPath, mtime.Format("2006-01-02 15:04:05"))
	fmt.Printf("interface:   %s\n", cfg.Interface)
	fmt.Printf("pin maps:    %t\n", cfg.PinMaps)
	fmt.Printf("reload:      every %ds\n", cfg.UpdateTime)
	fmt.Printf("stats:       enabled=%t per-second=%t every %ds\n",
		!cfg.NoStats, cfg.StatsPerSecond, cfg.StdoutUpdateTime)
	fmt.Printf("rules:       %d\n", len(cfg.Rules))
	for i, r := range cfg.Rules {
		fmt.Printf("  [%d] %s %s:%d -> %s:%d\n",
			i, r.Protocol, r.BindAddr, r.BindPort, r.DestAddr, r.DestPort)
	}
	return nil
}

func cmdStatus(args []string) error {
	paths := config.DefaultPaths()

	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dbPath := fs.String("db", paths.DBPath(), "session database path")
	limit := fs.Int("limit", 10, "number of sessions to show")
	reloads := fs.Bool("reloads", false, "show reload events per session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := logging.FromEnv()
	if err != nil {
		return fmt.Errorf("invalid %s: %w", logging.EnvVar, err)
	}

	ctx := context.Background()
	store, err := sqlite.New(ctx, *dbPath, logger)
	if err != nil {
		return fmt.Errorf("open session database: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(ctx, *limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no recorded sessions")
	}

	for _, s := range sessions {
		state := "running"
		if s.EndedAt != nil {
			state = fmt.Sprintf("ended %s clean=%t",
				s.EndedAt.Format("2006-01-02 15:04:05"), s.Clean)
		}
		fmt.Printf("session %d: %s mode=%s started %s %s\n",
			s.ID, s.Interface, s.Mode,
			s.StartedAt.Format("2006-01-02 15:04:05"), state)

		if !*reloads {
			continue
		}
		events, err := store.ListReloads(ctx, s.ID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("  reload at %s mtime=%s ok=%t\n",
				ev.At.Format("15:04:05"), ev.ConfigMtime.Format("15:04:05"), ev.OK)
		}
	}

	pins, err := bpffs.ListPins(paths.PinDir())
	if err != nil {
		return err
	}
	if len(pins) > 0 {
		fmt.Printf("pins under %s:\n", paths.PinDir())
		for _, pin := range pins {
			fmt.Printf("  %s\n", pin.Name)
		}
	}
	return nil
}

// run dispatches a command line and returns the process exit code.
// Asking for help succeeds; giving no command or an unknown one fails.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr, args[0])
		return 1
	}

	var err error
	switch args[1] {
	case "run":
		err = cmdRun(args[2:])
	case "list":
		err = cmdList(args[2:])
	case "status":
		err = cmdStatus(args[2:])
	case "help", "-h", "--help":
		usage(stdout, args[0])
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		usage(stderr, args[0])
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}
