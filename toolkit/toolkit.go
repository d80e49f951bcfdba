// Package toolkit loads the native GPU reconstruction library and registers
// it as the active recon backend.
//
// The shared library is located from an explicit path, the
// TOMOLIB_TOOLKIT_LIB and TOMOREC_LIBRARY_PATH environment variables or a
// small set of well-known install locations, in that order. Bootstrap is
// safe to call more than once; the first call wins.
package toolkit

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/example/go-tomolib/recon"
)

// ErrLibraryNotFound is returned when no native library could be located.
var ErrLibraryNotFound = errors.New("toolkit: native library not found")

// ErrUnsupported is returned on platforms without shared library loading.
var ErrUnsupported = errors.New("toolkit: native library loading is unavailable on this platform")

// Config selects the native library to load.
type Config struct {
	// LibraryPath skips the probe order when set.
	LibraryPath string
}

// Info describes the bootstrapped toolkit.
type Info struct {
	LibraryPath string
	Version     string
	Initialized bool
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

var wellKnownPaths = []string{
	"/usr/lib/libtomorec.so",
	"/usr/local/lib/libtomorec.so",
	"/usr/lib/x86_64-linux-gnu/libtomorec.so",
	"/opt/homebrew/lib/libtomorec.dylib",
}

var (
	bootstrapOnce sync.Once
	bootstrapInfo Info
	bootstrapErr  error
	shutdownFlag  atomic.Bool
	activeLib     *library
)

// Bootstrap locates and loads the native library, then registers it as the
// reconstruction backend. Only the first call does work; later calls return
// the first outcome.
func Bootstrap(cfg Config) (Info, error) {
	bootstrapOnce.Do(func() {
		path, err := DetectLibrary(cfg)
		if err != nil {
			bootstrapErr = err
			return
		}

		lib, err := openLibrary(path)
		if err != nil {
			bootstrapErr = err
			return
		}

		// Process-local marker so later probes resolve the same library.
		if err := os.Setenv("TOMOLIB_TOOLKIT_LIB", path); err != nil {
			_ = lib.close()
			bootstrapErr = fmt.Errorf("toolkit: set TOMOLIB_TOOLKIT_LIB: %w", err)
			return
		}

		version := versionString(lib.version())
		if version == "" {
			version = inferVersionFromPath(path)
		}

		if version == "" {
			version = "unknown"
		}

		activeLib = lib
		bootstrapInfo = Info{LibraryPath: path, Version: version, Initialized: true}

		slog.Info("toolkit loaded", "path", path, "version", version)

		recon.RegisterBackend(&nativeBackend{
			lib: lib,
			info: recon.BackendInfo{
				Name:        "toolkit",
				Version:     version,
				Description: "native GPU reconstruction toolkit",
			},
		})
	})

	if bootstrapErr != nil {
		return Info{}, bootstrapErr
	}

	return bootstrapInfo, nil
}

// Shutdown unregisters the backend and unloads the library. It is a no-op
// when Bootstrap never succeeded, and runs at most once.
func Shutdown() error {
	if !bootstrapInfo.Initialized {
		return nil
	}

	if shutdownFlag.Swap(true) {
		return nil
	}

	recon.RegisterBackend(nil)
	bootstrapInfo.Initialized = false

	if activeLib != nil {
		return activeLib.close()
	}

	return nil
}

// DetectLibrary resolves the native library path without loading it.
func DetectLibrary(cfg Config) (string, error) {
	path := cfg.LibraryPath
	if path == "" {
		path = os.Getenv("TOMOLIB_TOOLKIT_LIB")
	}

	if path == "" {
		path = os.Getenv("TOMOREC_LIBRARY_PATH")
	}

	if path == "" {
		for _, c := range wellKnownPaths {
			_, err := os.Stat(c)
			if err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return "", ErrLibraryNotFound
	}

	_, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("toolkit: library path check failed: %w", err)
	}

	return path, nil
}

// versionString decodes the packed major*10000 + minor*100 + patch version
// the library reports.
func versionString(v int32) string {
	if v <= 0 {
		return ""
	}

	return fmt.Sprintf("%d.%d.%d", v/10000, (v/100)%100, v%100)
}

func inferVersionFromPath(path string) string {
	name := filepath.Base(path)
	if m := versionPattern.FindStringSubmatch(name); len(m) == 2 {
		return m[1]
	}

	return ""
}
