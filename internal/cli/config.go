// Package cli provides the shared command line plumbing of the inventory services:
// configuration loading with viper and logging setup with slog.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig loads the configuration of cmdName into vip.
//
// An explicit --config flag wins. Otherwise, the file named after the command is searched in the current
// directory, /etc/<cmdName>, /usr/local/etc/<cmdName> and the directory of the executable.
// Environment variables prefixed with the upper-cased command name override file values; nested keys use "_"
// as separator (INVENTORY_DECODER_STORE_ADDRESS maps to store.address).
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		vip.AddConfigPath("/etc/" + cmdName)
		vip.AddConfigPath("/usr/local/etc/" + cmdName)

		if binPath, err := os.Executable(); err != nil {
			slog.Warn("Failed to get current executable path, not adding it as a config dir", "error", err)
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}

	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
		slog.Info("No configuration file, using defaults, environment variables and flags only", "error", e)
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	return bindEnv(cmdName, vip)
}

// bindEnv binds every environment variable related to cmdName so that it can be unmarshalled into a struct.
// More context on https://github.com/spf13/viper/pull/1429.
func bindEnv(cmdName string, vip *viper.Viper) error {
	prefix := envPrefix(cmdName)
	vip.SetEnvPrefix(prefix)
	vip.AutomaticEnv()

	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix+"_") {
			continue
		}

		name, _, _ := strings.Cut(e, "=")
		k := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, prefix+"_"), "_", "."))
		if err := vip.BindEnv(k, name); err != nil {
			return fmt.Errorf("could not bind environment variable %q: %w", name, err)
		}
	}
	return nil
}

func envPrefix(cmdName string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_"))
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}
