package cli

import "io"

// SetLogOutput redirects JSON logs to w until the returned function is called.
func SetLogOutput(w io.Writer) (restore func()) {
	orig := logOutput
	logOutput = w
	return func() { logOutput = orig }
}
