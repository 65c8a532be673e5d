package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twistedxcom/vigil/internal/config"
	"github.com/twistedxcom/vigil/internal/history"
	"github.com/twistedxcom/vigil/internal/logging"
	"github.com/twistedxcom/vigil/internal/monitor"
	"github.com/twistedxcom/vigil/internal/source"
)

const Version = "0.3.0"

var cliLog = logging.ForComponent(logging.CompCLI)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("Vigil v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "run":
			handleRun(args[1:])
			return
		case "status":
			handleStatus(args[1:])
			return
		case "history":
			handleHistory(args[1:])
			return
		}
	}

	printHelp()
	os.Exit(1)
}

func printHelp() {
	fmt.Print(`Vigil - activity monitor for AI-assisted coding sessions

Usage:
  vigil run [--state-file <path>] [--quiet]   Run the monitor engine
  vigil status [--state-file <path>]          Print the current aggregate status
  vigil history [-n <limit>] [--json]         Show recent status transitions
  vigil version                               Print version

Configuration lives in ~/.vigil/config.toml (override the directory with
VIGIL_DIR). The engine reloads it automatically when it changes.
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatal("%v", err)
	}
	return cfg
}

func initLogging(cfg *config.Config) {
	logDir, err := config.LogDir()
	if err != nil || os.MkdirAll(logDir, 0o700) != nil {
		logDir = "" // fall back to stderr
	}
	logging.Init(logging.Config{
		LogDir:                logDir,
		Level:                 cfg.Logs.Level,
		Format:                cfg.Logs.Format,
		MaxSizeMB:             cfg.Logs.MaxSizeMB,
		MaxBackups:            cfg.Logs.MaxBackups,
		MaxAgeDays:            cfg.Logs.RetentionDays,
		Compress:              cfg.Logs.GetCompress(),
		AggregateIntervalSecs: cfg.Logs.AggregateIntervalS,
	})
}

// buildEngine assembles the source chain and engine for cfg. stateFile
// overrides the configured observation file when non-empty.
func buildEngine(cfg *config.Config, stateFile string) (*monitor.Engine, error) {
	path := stateFile
	if path == "" {
		var err error
		path, err = cfg.StateFilePath()
		if err != nil {
			return nil, err
		}
	}

	var src monitor.Source = source.NewFileSource(path)
	if cfg.Monitor.CaptureRatePerSec > 0 {
		src = source.NewGuarded(src, cfg.Monitor.CaptureRatePerSec)
	}

	eng := monitor.New(monitor.Config{
		PollInterval:  cfg.Monitor.PollInterval(),
		DebounceDelay: cfg.Monitor.Debounce(),
		ActiveRecency: cfg.Monitor.ActiveRecency(),
	}, src, monitor.NewPublisher())
	return eng, nil
}

// runtime is one engine incarnation; config reloads tear it down and
// build a fresh one.
type runtime struct {
	engine *monitor.Engine
	store  *history.Store
}

func startRuntime(cfg *config.Config, stateFile string, quiet bool) (*runtime, error) {
	eng, err := buildEngine(cfg, stateFile)
	if err != nil {
		return nil, err
	}

	rt := &runtime{engine: eng}

	if cfg.History.GetEnabled() {
		dbPath, err := config.HistoryPath()
		if err != nil {
			return nil, err
		}
		store, err := history.Open(dbPath)
		if err != nil {
			return nil, err
		}
		store.Attach(eng.Publisher())
		if _, err := store.Prune(cfg.History.Retention()); err != nil {
			cliLog.Warn("history_prune_failed", slog.String("error", err.Error()))
		}
		rt.store = store
	}

	if !quiet {
		enc := json.NewEncoder(os.Stdout)
		eng.Publisher().Subscribe(func(s monitor.StatusSnapshot) {
			_ = enc.Encode(s)
		})
	}

	eng.Start()
	return rt, nil
}

func (rt *runtime) stop() {
	rt.engine.Stop()
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			cliLog.Warn("history_close_failed", slog.String("error", err.Error()))
		}
	}
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	stateFile := fs.String("state-file", "", "observation state file (overrides config)")
	quiet := fs.Bool("quiet", false, "suppress status output on stdout")
	_ = fs.Parse(args)

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	cfgPath, err := config.Path()
	if err != nil {
		fatal("%v", err)
	}

	// Latest-wins: a reload arriving while a restart is in progress just
	// replaces the queued config.
	reload := make(chan *config.Config, 1)
	watcher, err := config.Watch(cfgPath, func(c *config.Config) {
		for {
			select {
			case reload <- c:
				return
			default:
			}
			select {
			case <-reload:
			default:
			}
		}
	})
	if err != nil {
		// Hot reload is a convenience; run without it.
		cliLog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	cliLog.Info("vigil_starting", slog.String("version", Version))
	for {
		rt, err := startRuntime(cfg, *stateFile, *quiet)
		if err != nil {
			fatal("%v", err)
		}
		select {
		case cfg = <-reload:
			rt.stop()
			cliLog.Info("engine_restarting_after_config_change")
		case s := <-sig:
			rt.stop()
			cliLog.Info("vigil_shutdown", slog.String("signal", s.String()))
			return
		}
	}
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	stateFile := fs.String("state-file", "", "observation state file (overrides config)")
	_ = fs.Parse(args)

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	eng, err := buildEngine(cfg, *stateFile)
	if err != nil {
		fatal("%v", err)
	}

	first := make(chan monitor.StatusSnapshot, 1)
	eng.Publisher().Subscribe(func(s monitor.StatusSnapshot) {
		select {
		case first <- s:
		default:
		}
	})

	eng.Start()
	defer eng.Stop()

	// One tick plus the debounce window, with headroom for slow disks.
	timeout := cfg.Monitor.PollInterval() + cfg.Monitor.Debounce() + 2*time.Second
	var snap monitor.StatusSnapshot
	select {
	case snap = <-first:
	case <-time.After(timeout):
		// Nothing observed and nothing changed: report the empty aggregate.
		snap = eng.Current()
	}

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(string(out))
}

func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "maximum transitions to show")
	asJSON := fs.Bool("json", false, "output as JSON lines")
	_ = fs.Parse(args)

	dbPath, err := config.HistoryPath()
	if err != nil {
		fatal("%v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No history recorded yet. Run 'vigil run' first.")
		return
	}

	store, err := history.Open(dbPath)
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()

	transitions, err := store.Recent(*limit)
	if err != nil {
		fatal("%v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, tr := range transitions {
			_ = enc.Encode(map[string]interface{}{
				"at":     tr.At.Format(time.RFC3339),
				"scope":  tr.Scope,
				"pid":    tr.PID,
				"status": tr.Status,
			})
		}
		return
	}

	if len(transitions) == 0 {
		fmt.Println("No transitions recorded.")
		return
	}
	for _, tr := range transitions {
		scope := tr.Scope
		if tr.PID != 0 {
			scope = fmt.Sprintf("%s[%d]", tr.Scope, tr.PID)
		}
		fmt.Printf("%s  %-24s %s\n", tr.At.Format("2006-01-02 15:04:05"), scope, tr.Status)
	}
}
