package mumble

import (
	"fmt"

	"github.com/tm-proximity/linkbridge/internal/link"
)

// region is a mapped shared memory block.
type region interface {
	Bytes() []byte
	Close() error
}

type sharedLink struct {
	*Memory
	region region
}

func (s *sharedLink) Close() error {
	return s.region.Close()
}

// Connector opens the Link block published by a running Mumble client.
type Connector struct{}

// Connect maps the block and registers the application name.
func (Connector) Connect(appName, description string) (link.Link, error) {
	layout, err := NewLayout(wcharSize)
	if err != nil {
		return nil, err
	}
	r, err := openRegion(layout.Size)
	if err != nil {
		return nil, fmt.Errorf("open mumble link: %w", err)
	}
	mem, err := NewMemory(r.Bytes(), layout)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	if err := mem.Init(appName, description); err != nil {
		_ = r.Close()
		return nil, err
	}
	return &sharedLink{Memory: mem, region: r}, nil
}
