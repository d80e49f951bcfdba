package config

import (
	"fmt"
	"strings"
)

const (
	BackendAuto    = "auto"
	BackendCPU     = "cpu"
	BackendToolkit = "toolkit"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendAuto
	}
	switch backend {
	case BackendAuto, BackendCPU, BackendToolkit:
		return backend, nil
	case "native", "gpu":
		return BackendToolkit, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|%s|native|gpu)",
			raw,
			BackendAuto,
			BackendCPU,
			BackendToolkit,
		)
	}
}
