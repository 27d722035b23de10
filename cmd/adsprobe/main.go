// =============================================================================
// main.go - adsprobe Entry Point
// =============================================================================
//
// adsprobe is an interactive test driver for Beckhoff TwinCAT controllers.
// It exercises two PLC clients, the callback-style ADS library and the
// persistent beckhoff wrapper, against the same rotating symbol lists and
// prints each result with its round-trip time.
//
// Usage:
//
//	adsprobe                              Use ./settings.yaml
//	adsprobe --settings plc.toml          Use another settings file
//	adsprobe --simulate                   Talk to a built-in simulated PLC
//	adsprobe --watch                      Reload connection settings on change
//
// Settings are layered: file, then ADSPROBE_* environment variables (a .env
// file is read first if present), then flags.
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/mikko80/node-beckhoff/internal/backend"
	"github.com/mikko80/node-beckhoff/internal/catalog"
	"github.com/mikko80/node-beckhoff/internal/dispatch"
	"github.com/mikko80/node-beckhoff/internal/report"
	"github.com/mikko80/node-beckhoff/internal/settings"
	"github.com/mikko80/node-beckhoff/plcsim"
)

const appName = "adsprobe"

var exampleUsage = strings.TrimSpace(`
  adsprobe --settings settings.yaml
  adsprobe --plc-ip 192.168.1.120 --remote-netid 5.43.91.212.1.1
  adsprobe --simulate --debug
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// welcomeBanner is printed when the session starts on a terminal.
func welcomeBanner() string {
	return fmt.Sprintf("%s %s - ADS/AMS client test driver\nType '?' for available commands, 'quit' to exit.\n\n",
		appName, getVersion())
}

// options holds the flags that are not settings.
type options struct {
	settingsPath string
	envFile      string
	simulate     bool
	watch        bool
	logLevel     string
	debug        bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := settings.DefaultConfig()
	var opts options

	root := &cobra.Command{
		Use:           appName,
		Short:         "Interactive ADS/AMS conformance and latency test driver",
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
			return run(cmd.Context(), cfg, opts, changed)
		},
	}

	f := root.Flags()
	f.StringVar(&opts.settingsPath, "settings", settings.DefaultSettingsFile, "settings file (.yaml or .toml)")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with ADSPROBE_* variables")
	f.BoolVar(&opts.simulate, "simulate", false, "start a simulated PLC on 127.0.0.1 and test against it")
	f.BoolVar(&opts.watch, "watch", false, "reload connection settings when the settings file changes")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	f.BoolVar(&opts.debug, "debug", false, "shorthand for --log-level debug")

	f.StringVar(&cfg.PLCHost, "plc-ip", cfg.PLCHost, "PLC address")
	f.IntVar(&cfg.PLCPort, "plc-port", cfg.PLCPort, "PLC AMS/TCP port")
	f.StringVar(&cfg.RemoteNetID, "remote-netid", cfg.RemoteNetID, "PLC AMS net-id")
	f.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "PLC AMS port")
	f.StringVar(&cfg.LocalNetID, "local-netid", cfg.LocalNetID, "local AMS net-id (default: host IPv4 + .1.1)")
	f.IntVar(&cfg.LocalPort, "local-port", cfg.LocalPort, "local AMS port")
	f.DurationVar(&cfg.LibraryTimeout, "timeout", cfg.LibraryTimeout, "library request timeout")
	f.IntVar(&cfg.LibraryVerbose, "library-verbose", cfg.LibraryVerbose, "library verbosity (0-2)")
	f.DurationVar(&cfg.WrapperTimeout, "wrapper-timeout", cfg.WrapperTimeout, "wrapper request timeout")
	f.BoolVar(&cfg.WrapperVerbose, "wrapper-verbose", cfg.WrapperVerbose, "wrapper verbose output")
	f.BoolVar(&cfg.WrapperDebug, "wrapper-debug", cfg.WrapperDebug, "wrapper debug output")

	return root
}

// run loads the settings, wires the backends and drives the session.
func run(ctx context.Context, flagCfg settings.Config, opts options, changed map[string]bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := newLogger(os.Stderr, opts.logLevel, opts.debug)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	if err := settings.LoadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	var sim *plcsim.Server
	load := func() (settings.Config, error) {
		cfg := flagCfg
		if settings.FileExists(opts.settingsPath) {
			fc, err := settings.LoadFileConfig(opts.settingsPath)
			if err != nil {
				return cfg, fmt.Errorf("load settings: %w", err)
			}
			if err := settings.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return cfg, err
			}
		} else if changed["settings"] {
			return cfg, fmt.Errorf("settings file %s not found", opts.settingsPath)
		}
		if err := settings.ApplyEnvConfig(&cfg, changed); err != nil {
			return cfg, err
		}
		if sim != nil {
			pointAtSimulator(&cfg, sim)
		}
		return cfg, nil
	}

	cfg, err := load()
	if err != nil {
		return err
	}
	if opts.simulate {
		sim, err = startSimulator(cfg.Symbols.Catalog(), log)
		if err != nil {
			return err
		}
		defer sim.Close()
		pointAtSimulator(&cfg, sim)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	log.Info().Str("plc", cfg.PLCHost).Int("port", cfg.PLCPort).
		Str("remote", cfg.RemoteNetID).Msg("settings loaded")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := settings.NewStore(cfg)
	if opts.watch && settings.FileExists(opts.settingsPath) {
		w := settings.NewWatcher(opts.settingsPath, store, load, log)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Msg("settings watcher stopped")
			}
		}()
	}

	d := dispatch.New(store, cfg.Symbols.Catalog(), report.New(os.Stdout, log), log,
		backend.NewLibrary(log),
		backend.NewWrapper(log),
	)

	editor := NewLineEditor()
	defer editor.Close()

	s := newSession(editor, d, os.Stdout, log)
	setupSignalHandler(func() {
		cancel()
		s.close()
		editor.Close()
	})

	if editor.IsInteractive() {
		fmt.Print(welcomeBanner())
	}
	s.run(ctx)
	return nil
}

// startSimulator serves every catalog symbol from an in-process PLC.
func startSimulator(cat *catalog.Catalog, log zerolog.Logger) (*plcsim.Server, error) {
	sim := plcsim.New(plcsim.WithLogger(log))
	for _, sym := range cat.Symbols() {
		if err := sim.Seed(sym.Name, sym.Value); err != nil {
			return nil, fmt.Errorf("seed %s: %w", sym.Name, err)
		}
	}
	if err := sim.Start("127.0.0.1:0"); err != nil {
		return nil, err
	}
	log.Info().Str("addr", sim.Addr()).Int("symbols", len(sim.Symbols())).Msg("simulator started")
	return sim, nil
}

func pointAtSimulator(cfg *settings.Config, sim *plcsim.Server) {
	cfg.PLCHost = sim.Host()
	cfg.PLCPort = sim.Port()
	cfg.RemoteNetID = sim.NetID().String()
	if cfg.LocalNetID == "" {
		cfg.LocalNetID = "127.0.0.1.1.1"
	}
}

// setupSignalHandler runs cleanup and exits on SIGINT or SIGTERM.
func setupSignalHandler(cleanup func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()
}
