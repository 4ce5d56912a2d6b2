// Package cmdutils runs the inventory daemons: it maps their outcome to an exit code and forwards signals.
package cmdutils

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Daemon is a long running command.
type Daemon interface {
	Run() error
	UsageError() bool
	Hup() bool
	Quit()
}

// Exit codes of RunDaemon.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// RunDaemon runs d until it returns, quitting it on SIGINT and SIGTERM, or on SIGHUP when d asks for it.
// It returns the process exit code.
func RunDaemon(d Daemon) int {
	defer installSignalHandler(d)()

	if err := d.Run(); err != nil {
		slog.Error(err.Error())

		if d.UsageError() {
			return ExitUsage
		}
		return ExitError
	}

	return ExitOK
}

func installSignalHandler(d Daemon) func() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			switch v, ok := <-c; v {
			case syscall.SIGINT, syscall.SIGTERM:
				d.Quit()
				return
			case syscall.SIGHUP:
				if d.Hup() {
					d.Quit()
					return
				}
			default:
				// channel was closed: we exited
				if !ok {
					slog.Debug("Signal channel closed")
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(c)
		close(c)
		wg.Wait()
	}
}
