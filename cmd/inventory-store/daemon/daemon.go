// Package daemon provides the record store daemon persisting the inventory into PostgreSQL.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/insights-inventory/internal/cli"
	"github.com/ubuntu/insights-inventory/internal/constants"
	"github.com/ubuntu/insights-inventory/internal/recordstore"
	"github.com/ubuntu/insights-inventory/internal/recordstore/database"
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

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Socket        string
	DBConfig      database.Config
	MigrationsDir string `yaml:"-"`
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:   constants.StoreCmdName,
		Short: "Inventory record store",
		Long: `Inventory record store receives the commands of the inventory decoders on a unix socket
and persists the endpoint records into a PostgreSQL database.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			if err := cli.InitViperConfig(constants.StoreCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to decode configuration into struct: %w", err)
			}

			cli.SetSlog(constants.StoreCmdName, a.config.Verbosity, a.config.JSONLogs)
			slog.Debug("Configuration loaded", "socket", a.config.Socket, "dbhost", a.config.DBConfig.Host)
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
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) error {
	flags := app.cmd.PersistentFlags()

	flags.CountP("verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	flags.Bool("json-logs", false, "enable JSON formatted logs")
	flags.String("socket", constants.DefaultStoreSocketPath, "path of the unix socket to listen on")

	flags.String("db-host", "", "database host")
	flags.IntP("db-port", "p", 5432, "database port")
	flags.StringP("db-user", "u", "", "database user")
	flags.StringP("db-password", "P", "", "database password")
	flags.StringP("db-name", "n", "", "database name")
	flags.StringP("db-sslmode", "s", "", "database SSL mode")

	if err := app.cmd.MarkPersistentFlagFilename("socket"); err != nil {
		return fmt.Errorf("failed to mark socket flag as filename: %w", err)
	}

	for key, name := range map[string]string{
		"verbosity":         "verbose",
		"jsonlogs":          "json-logs",
		"socket":            "socket",
		"dbconfig.host":     "db-host",
		"dbconfig.port":     "db-port",
		"dbconfig.user":     "db-user",
		"dbconfig.password": "db-password",
		"dbconfig.dbname":   "db-name",
		"dbconfig.sslmode":  "db-sslmode",
	} {
		if err := app.viper.BindPFlag(key, flags.Lookup(name)); err != nil {
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

	db, err := database.New(ctx, a.config.DBConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close database", "err", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(a.config.Socket), 0750); err != nil {
		return fmt.Errorf("failed to create socket directory: %v", err)
	}
	srv, err := recordstore.Listen(a.config.Socket, db)
	if err != nil {
		return err
	}
	slog.Info("Record store listening", "socket", srv.Addr())
	a.setReady()

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("record store error: %v", err)
	}
	slog.Info("Record store stopped")
	return nil
}
