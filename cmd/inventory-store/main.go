// Package main is the entry point of the inventory record store daemon.
package main

import (
	"log/slog"
	"os"

	"github.com/ubuntu/insights-inventory/cmd/inventory-store/daemon"
	"github.com/ubuntu/insights-inventory/internal/cmdutils"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(cmdutils.ExitError)
	}

	os.Exit(cmdutils.RunDaemon(a))
}
