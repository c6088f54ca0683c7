package telemetry

import (
	"errors"
	"fmt"
)

// DefaultRegionName is the name the game publishes the block under.
const DefaultRegionName = "ManiaPlanet_Telemetry"

// ErrShortRegion means the region exists but is smaller than a snapshot,
// e.g. while the publisher is still sizing it.
var ErrShortRegion = errors.New("telemetry region too small")

// Reader returns the current telemetry snapshot.
type Reader interface {
	Read() (Snapshot, error)
}

// ReadError wraps a failure to obtain a snapshot. It is fatal for the
// polling loop.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("telemetry %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// RegionReader reads the named shared memory region the game publishes.
// Each Read opens, copies and closes the region; no mapping outlives a
// call.
type RegionReader struct {
	Name string
}

// NewRegionReader returns a reader for name, or DefaultRegionName if empty.
func NewRegionReader(name string) *RegionReader {
	if name == "" {
		name = DefaultRegionName
	}
	return &RegionReader{Name: name}
}

// Read copies and validates the region.
func (r *RegionReader) Read() (Snapshot, error) {
	data, err := copyRegion(r.Name, Size)
	if err != nil {
		return Snapshot{}, &ReadError{Op: "open " + r.Name, Err: err}
	}
	return decodeValidated(data)
}

// BytesReader decodes a fixed buffer. It backs replay tooling and tests.
type BytesReader struct {
	Data []byte
}

func (r *BytesReader) Read() (Snapshot, error) {
	return decodeValidated(r.Data)
}

func decodeValidated(data []byte) (Snapshot, error) {
	s, err := Decode(data)
	if err != nil {
		return Snapshot{}, &ReadError{Op: "decode", Err: err}
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, &ReadError{Op: "validate", Err: err}
	}
	return s, nil
}
