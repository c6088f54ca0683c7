//go:build !linux && !windows

package mumble

import (
	"errors"
	"runtime"
)

const wcharSize = 4

func openRegion(size int) (region, error) {
	return nil, errors.New("mumble link is not supported on " + runtime.GOOS)
}
