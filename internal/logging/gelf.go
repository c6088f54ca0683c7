package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfWriter returns a writer that ships log lines to a Graylog GELF UDP
// input at addr.
func NewGelfWriter(addr, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create gelf writer for %s: %w", addr, err)
	}
	w.Facility = facility
	return w, nil
}
