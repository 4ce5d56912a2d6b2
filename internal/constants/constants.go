// Package constants is responsible for defining the constants used in the application.
// It also provides the default data directories of the services.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// DecoderCmdName is the name of the inventory decoder service command.
	DecoderCmdName = "inventory-decoder"

	// StoreCmdName is the name of the record store service command.
	StoreCmdName = "inventory-store"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn
)

// Wire protocol constants.
const (
	// ProducerTag is the provenance tag of the inventory collector producing the events.
	ProducerTag = "syscollector"

	// NullPlaceholder is rendered in place of any absent field of a store command.
	NullPlaceholder = "NULL"

	// CommandTerminator ends every command sent to the record store.
	CommandTerminator byte = 0x00

	// ResponseOK is the record store answer to an accepted program upsert.
	ResponseOK = "ok"

	// MaxCommandSize is the upper bound of an encoded store command, terminator included.
	MaxCommandSize = 65536

	// ResponseBufferSize is the size of the buffer a store response is read into.
	// Longer responses are truncated to it.
	ResponseBufferSize = 65536
)

// Service constants.
const (
	// DefaultServiceFolder is the name of the default root folder for services.
	DefaultServiceFolder = "insights-inventory"

	// SealedSuffix marks a scan file which received its completion marker.
	SealedSuffix = ".lock"

	// BatchExtension is the extension of the spooled event batch files.
	BatchExtension = ".jsonl"

	// DefaultStoreSocket is the default name of the record store socket.
	DefaultStoreSocket = "inventory-store.sock"
)

// Service variables.
var (
	// DefaultServiceDataDir is the default data directory for services.
	DefaultServiceDataDir = DefaultServiceFolder

	// DefaultScanDir is the default root directory of the scan files.
	DefaultScanDir = filepath.Join(DefaultServiceDataDir, "syscollector")

	// DefaultSpoolDir is the default directory event batches are read from.
	DefaultSpoolDir = filepath.Join(DefaultServiceDataDir, "spool")

	// DefaultInvalidDir is the default directory failed events are quarantined to.
	DefaultInvalidDir = filepath.Join(DefaultServiceDataDir, "invalid")

	// DefaultStoreSocketPath is the default path of the record store socket.
	DefaultStoreSocketPath = filepath.Join(DefaultServiceDataDir, DefaultStoreSocket)
)

func init() {
	DefaultServiceDataDir = serviceDataDir(os.UserCacheDir)
	DefaultScanDir = filepath.Join(DefaultServiceDataDir, "syscollector")
	DefaultSpoolDir = filepath.Join(DefaultServiceDataDir, "spool")
	DefaultInvalidDir = filepath.Join(DefaultServiceDataDir, "invalid")
	DefaultStoreSocketPath = filepath.Join(DefaultServiceDataDir, DefaultStoreSocket)
}

// serviceDataDir returns the data directory under the base directory, or the relative default folder on error.
func serviceDataDir(baseDir func() (string, error)) string {
	dir, err := baseDir()
	if err != nil || dir == "" {
		return DefaultServiceFolder
	}
	return filepath.Join(dir, DefaultServiceFolder)
}
