// Package doctor provides environment preflight checks for tomolib.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ToolkitVersion returns the native toolkit's version string (e.g. "2.1.0").
	ToolkitVersion VersionFunc
	// SkipToolkit skips the toolkit library check (pure CPU mode).
	SkipToolkit bool
	// Backend names the reconstruction backend that would serve requests.
	Backend string
	// DataFiles is the list of sinogram container paths to verify on disk.
	DataFiles []string
	// ValidateContainer, when set, is invoked for each data file that exists
	// and should return an error if the container header is malformed.
	ValidateContainer func(path string) error
	// MemoryBudget is the configured chunking budget in bytes. Zero disables
	// chunking; negative values are a configuration error.
	MemoryBudget int64
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- reconstruction backend -------------------------------------------
	if cfg.Backend == "" {
		res.fail("reconstruction backend: none registered")
		fmt.Fprintf(w, "%s reconstruction backend: none registered\n", FailMark)
	} else {
		fmt.Fprintf(w, "%s reconstruction backend: %s\n", PassMark, cfg.Backend)
	}

	// ---- toolkit library --------------------------------------------------
	if cfg.SkipToolkit {
		fmt.Fprintf(w, "%s toolkit library: skipped\n", PassMark)
	} else {
		ver, err := cfg.ToolkitVersion()
		if err != nil {
			res.fail(fmt.Sprintf("toolkit library: %v", err))
			fmt.Fprintf(w, "%s toolkit library: not found (%v)\n", FailMark, err)
		} else if verErr := checkToolkitVersion(ver); verErr != nil {
			res.fail(fmt.Sprintf("toolkit version: %v", verErr))
			fmt.Fprintf(w, "%s toolkit version %s: %v\n", FailMark, ver, verErr)
		} else {
			fmt.Fprintf(w, "%s toolkit library: %s\n", PassMark, ver)
		}
	}

	// ---- data files -------------------------------------------------------
	for _, path := range cfg.DataFiles {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("data file %q: %v", path, err))
			fmt.Fprintf(w, "%s data file %s: not found\n", FailMark, path)

			continue
		}

		fmt.Fprintf(w, "%s data file: %s\n", PassMark, path)

		if cfg.ValidateContainer != nil {
			if err := cfg.ValidateContainer(path); err != nil {
				res.fail(fmt.Sprintf("data file %q validation: %v", path, err))
				fmt.Fprintf(w, "%s data file %s validation: %v\n", FailMark, path, err)
			} else {
				fmt.Fprintf(w, "%s data file %s validation: ok\n", PassMark, path)
			}
		}
	}

	// ---- chunk memory budget ----------------------------------------------
	switch {
	case cfg.MemoryBudget < 0:
		res.fail(fmt.Sprintf("chunk memory budget: must be >= 0, got %d", cfg.MemoryBudget))
		fmt.Fprintf(w, "%s chunk memory budget: must be >= 0, got %d\n", FailMark, cfg.MemoryBudget)
	case cfg.MemoryBudget == 0:
		fmt.Fprintf(w, "%s chunk memory budget: unlimited (chunking disabled)\n", PassMark)
	default:
		fmt.Fprintf(w, "%s chunk memory budget: %d bytes\n", PassMark, cfg.MemoryBudget)
	}

	return res
}

// checkToolkitVersion returns an error if ver is outside [1.0, 3.0).
// ver is expected to be a string like "2.1.0".
func checkToolkitVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major < 1 {
		return fmt.Errorf("requires toolkit >=1.0, got %d.%d", major, minor)
	}
	if major >= 3 {
		return fmt.Errorf("requires toolkit <3.0, got %d.%d", major, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
