// banprobe checks whether a Minecraft account is banned on the Hypixel
// network. It logs in with the account's access token, reads the server's
// reaction and prints the outcome as JSON. The serve command runs the same
// check behind a local REST API with history, telemetry and notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/banprobe-project/banprobe/internal/checker"
	"github.com/banprobe-project/banprobe/internal/config"
	"github.com/banprobe-project/banprobe/internal/connector"
	"github.com/banprobe-project/banprobe/internal/db"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/probe"
	"github.com/banprobe-project/banprobe/internal/util"
)

const (
	AppName    = "banprobe"
	AppVersion = "1.0.0"
)

// errExit is returned by commands that already reported their failure and
// only need a non-zero exit status.
var errExit = errors.New("exit")

var configDir string

func main() {
	root := newRootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Check Minecraft accounts for Hypixel bans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "",
		fmt.Sprintf("configuration directory (default $%s or %q)", config.ConfigDirEnv, config.DefaultConfigDir))

	root.AddCommand(
		newRunCommand(),
		newServeCommand(),
		newHistoryCommand(),
		newConfigCommand(),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s/%s)\n", AppName, AppVersion, runtime.GOOS, runtime.GOARCH)
		},
	}
}

// app holds what every command needs: configuration, logging and the
// optional history store.
type app struct {
	cfg     *config.Config
	bus     *events.EventBus
	history *db.HistoryStore
	logFile io.Closer
}

// loadApp reads the configuration and starts logging. Invalid configuration
// is fatal; warnings are logged.
func loadApp() (*app, error) {
	cfg, err := config.Load(config.ResolveDir(configDir))
	if err != nil {
		return nil, err
	}

	logCfg := cfg.GetLogging()
	logFile, err := util.InitLogger(util.LogConfig{
		Level:      logCfg.Level,
		Directory:  logCfg.Directory,
		MaxBackups: logCfg.MaxBackups,
		Console:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		logFile.Close()
		return nil, fmt.Errorf("configuration validation failed, run '%s config init' or fix %s", AppName, cfg.Path())
	}

	return &app{
		cfg:     cfg,
		bus:     events.NewEventBus(),
		logFile: logFile,
	}, nil
}

// openHistory opens the history store when history is enabled.
func (a *app) openHistory() error {
	histCfg := a.cfg.GetHistory()
	if !histCfg.Enabled {
		return nil
	}
	store, err := db.NewHistoryStore(histCfg.DBPath)
	if err != nil {
		return err
	}
	a.history = store
	return nil
}

// newChecker wires the profile resolver, login sessions and probe into a
// checker.
func (a *app) newChecker() (*checker.Checker, *connector.ProfileResolver) {
	probeCfg := a.cfg.GetProbe()
	identityCfg := a.cfg.GetIdentity()
	outputCfg := a.cfg.GetOutput()

	resolver := connector.NewProfileResolver(identityCfg.ProfileURL, identityCfg.Timeout())
	joiner := connector.NewSessionJoiner(identityCfg.SessionJoinURL, identityCfg.Timeout())
	p := probe.New(checker.NewSessionFactory(probeCfg.DialTimeout(), joiner), probeCfg.Timeout())

	opts := checker.Options{
		Target: probe.Target{
			Host:            probeCfg.Host,
			Port:            uint16(probeCfg.Port),
			ProtocolVersion: int32(probeCfg.ProtocolVersion),
		},
		Events: a.bus,
	}
	if outputCfg.DebugDumpEnabled {
		opts.DumpPath = outputCfg.DebugDumpPath
	}
	if a.history != nil {
		opts.History = a.history
	}

	return checker.New(resolver, p, opts), resolver
}

func (a *app) close() {
	a.bus.Stop()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close history database")
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
