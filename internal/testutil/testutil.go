// Package testutil provides shared skip helpers and volume fixtures for
// integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireToolkit(t)
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

// RequireToolkit skips the test if no native reconstruction toolkit library
// can be located. It checks (in order): the TOMOLIB_TOOLKIT_LIB env var, then
// the TOMOREC_LIBRARY_PATH env var, then common system library paths.
func RequireToolkit(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"TOMOLIB_TOOLKIT_LIB", "TOMOREC_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			_, err := os.Stat(p)
			if err == nil {
				return // found
			}

			tb.Skipf("toolkit library not found at %s=%q", env, p)
		}
	}
	// Fall back to common system locations.
	candidates := []string{
		"/usr/lib/libtomorec.so",
		"/usr/local/lib/libtomorec.so",
		"/usr/lib/x86_64-linux-gnu/libtomorec.so",
		"/opt/homebrew/lib/libtomorec.dylib",
	}
	for _, p := range candidates {
		_, err := os.Stat(p)
		if err == nil {
			return // found
		}
	}

	tb.Skip("toolkit shared library not found; set TOMOLIB_TOOLKIT_LIB or TOMOREC_LIBRARY_PATH")
}
