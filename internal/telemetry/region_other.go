//go:build !linux && !windows

package telemetry

import (
	"errors"
	"runtime"
)

func copyRegion(name string, size int) ([]byte, error) {
	return nil, errors.New("shared memory telemetry is not supported on " + runtime.GOOS)
}
