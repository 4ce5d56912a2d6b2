package cmdutils_test

import (
	"errors"
	"os"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ubuntu/insights-inventory/internal/cmdutils"
)

type fakeDaemon struct {
	done chan struct{}

	runError         bool
	usageErrorReturn bool
	hupReturn        bool
}

func (d *fakeDaemon) Run() error {
	<-d.done
	if d.runError {
		return errors.New("Error requested")
	}
	return nil
}

func (d fakeDaemon) UsageError() bool {
	return d.usageErrorReturn
}

func (d fakeDaemon) Hup() bool {
	return d.hupReturn
}

func (d *fakeDaemon) Quit() {
	close(d.done)
}

//nolint:tparallel // Signal handlers tests: subtests can't be parallel
func TestRunDaemon(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		runError         bool
		usageErrorReturn bool
		hupReturn        bool
		sendSig          syscall.Signal

		wantExited     bool
		wantReturnCode int
	}{
		"Exits successfully":                  {},
		"Exits on error":                      {runError: true, wantReturnCode: cmdutils.ExitError},
		"Exits on usage error":                {usageErrorReturn: true, runError: true, wantReturnCode: cmdutils.ExitUsage},
		"Usage error alone does not fail":     {usageErrorReturn: true},
		"Quits on SIGINT":                     {sendSig: syscall.SIGINT, wantExited: true},
		"Quits on SIGTERM":                    {sendSig: syscall.SIGTERM, wantExited: true},
		"Keeps running on SIGHUP":             {sendSig: syscall.SIGHUP},
		"Quits on SIGHUP when daemon asks to": {sendSig: syscall.SIGHUP, hupReturn: true, wantExited: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if runtime.GOOS == "windows" && tc.sendSig != 0 {
				t.Skipf("Skipping test %s on Windows: signals are not supported", name)
			}

			d := fakeDaemon{
				done:             make(chan struct{}),
				runError:         tc.runError,
				usageErrorReturn: tc.usageErrorReturn,
				hupReturn:        tc.hupReturn,
			}

			var rc int
			wait := make(chan struct{})
			go func() {
				rc = cmdutils.RunDaemon(&d)
				close(wait)
			}()

			time.Sleep(100 * time.Millisecond)

			var exited bool
			if tc.sendSig != 0 {
				p, err := os.FindProcess(os.Getpid())
				require.NoError(t, err, "Setup: finding current process should not fail")
				require.NoError(t, p.Signal(tc.sendSig), "Setup: sending signal should not fail")

				select {
				case <-time.After(50 * time.Millisecond):
				case <-wait:
					exited = true
				}
				require.Equal(t, tc.wantExited, exited, "Daemon should only quit on the expected signals")
			}

			if !exited {
				d.Quit()
				<-wait
			}

			require.Equal(t, tc.wantReturnCode, rc, "RunDaemon should return the expected code")
		})
	}
}
