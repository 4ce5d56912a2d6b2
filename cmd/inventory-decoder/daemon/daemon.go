// Package daemon provides the inventory decoder daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/insights-inventory/internal/cli"
	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/decoder"
	"github.com/ubuntu/insights-inventory/internal/ingest"
	"github.com/ubuntu/insights-inventory/internal/metrics"
	"github.com/ubuntu/insights-inventory/internal/programs"
	"github.com/ubuntu/insights-inventory/internal/scanfile"
	"github.com/ubuntu/insights-inventory/internal/store"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
}

// storeConfig holds how to reach the record store.
type storeConfig struct {
	Network         string
	Address         string
	ResponseTimeout time.Duration
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	ScanDir    string
	SpoolDir   string
	InvalidDir string

	Store   storeConfig
	Metrics metrics.Config
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:   constants.DecoderCmdName,
		Short: "Inventory scan event decoder",
		Long: `Inventory scan event decoder reads the inventory events spooled by the upstream pipeline,
keeps the scan files of every endpoint and forwards the inventory to the record store.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			if err := cli.InitViperConfig(constants.DecoderCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to decode configuration into struct: %w", err)
			}

			cli.SetSlog(constants.DecoderCmdName, a.config.Verbosity, a.config.JSONLogs)
			slog.Debug("Configuration loaded", "config", a.config)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	if err := installRootCmd(&a); err != nil {
		return nil, err
	}
	cli.InstallConfigFlag(a.cmd)
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) error {
	cmd := app.cmd

	cmd.PersistentFlags().CountP("verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")

	cmd.PersistentFlags().String("scan-dir", constants.DefaultScanDir, "root directory of the scan files")
	cmd.PersistentFlags().String("spool-dir", constants.DefaultSpoolDir, "directory event batches are read from")
	cmd.PersistentFlags().String("invalid-dir", constants.DefaultInvalidDir, "directory events failing to decode are moved to")

	cmd.PersistentFlags().String("store-network", "unix", "network of the record store")
	cmd.PersistentFlags().String("store-address", constants.DefaultStoreSocketPath, "address of the record store")
	cmd.PersistentFlags().Duration("store-response-timeout", 0, "maximum time to wait for a record store answer, 0 to wait forever")

	cmd.PersistentFlags().String("metrics-host", "", "host for the metrics endpoint")
	cmd.PersistentFlags().Int("metrics-port", 2114, "port for the metrics endpoint")
	cmd.PersistentFlags().Duration("metrics-read-timeout", 5*time.Second, "read timeout for the metrics HTTP server")
	cmd.PersistentFlags().Duration("metrics-write-timeout", 10*time.Second, "write timeout for the metrics HTTP server")

	for _, dir := range []string{"scan-dir", "spool-dir", "invalid-dir"} {
		if err := cmd.MarkPersistentFlagDirname(dir); err != nil {
			return fmt.Errorf("failed to mark %s flag as directory: %w", dir, err)
		}
	}

	return bindFlags(app.viper, cmd, map[string]string{
		"verbosity":             "verbose",
		"jsonlogs":              "json-logs",
		"scandir":               "scan-dir",
		"spooldir":              "spool-dir",
		"invaliddir":            "invalid-dir",
		"store.network":         "store-network",
		"store.address":         "store-address",
		"store.responsetimeout": "store-response-timeout",
		"metrics.host":          "metrics-host",
		"metrics.port":          "metrics-port",
		"metrics.readtimeout":   "metrics-read-timeout",
		"metrics.writetimeout":  "metrics-write-timeout",
	})
}

// bindFlags binds each configuration key to its flag, which value wins over the configuration file.
func bindFlags(vip *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		if err := vip.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	// Unblock Quit when the command fails before starting the daemon.
	defer a.setReady()
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.cancel != nil {
		a.cancel()
	}
}

// WaitReady waits for the daemon to be ready, or to have failed starting.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) setReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *App) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.cancel = cancel
	defer a.setReady()

	conn, err := store.Dial(ctx, a.config.Store.Network, a.config.Store.Address)
	if err != nil {
		return err
	}
	defer conn.Close()
	client := store.New(conn, store.WithResponseTimeout(a.config.Store.ResponseTimeout))

	scans, err := scanfile.NewFSStore(a.config.ScanDir)
	if err != nil {
		return fmt.Errorf("failed to prepare scan directory: %v", err)
	}

	registry := prometheus.NewRegistry()
	dec, err := decoder.New(scanfile.New(scans), programs.New(client), client, decoder.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create decoder: %v", err)
	}
	proc, err := ingest.NewProcessor(a.config.SpoolDir, a.config.InvalidDir, dec, registry)
	if err != nil {
		return fmt.Errorf("failed to create batch processor: %v", err)
	}
	metricsServer, err := metrics.Listen(a.config.Metrics, registry)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %v", err)
	}
	slog.Info("Serving metrics", "address", metricsServer.Addr())

	service := ingest.NewService(a.config.SpoolDir, proc)
	a.setReady()

	errCh := make(chan error, 2)
	go func() { errCh <- metricsServer.Serve(ctx) }()
	go func() {
		if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("ingest service error: %v", err)
			return
		}
		errCh <- nil
	}()

	// Whichever stops first brings the other one down.
	err = <-errCh
	cancel()
	err = errors.Join(err, <-errCh)

	slog.Info("Inventory decoder stopped")
	return err
}
