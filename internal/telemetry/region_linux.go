//go:build linux

package telemetry

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// copyRegion copies size bytes out of /dev/shm/<name>. Under Wine the game
// block is bridged there.
func copyRegion(name string, size int) ([]byte, error) {
	path := "/dev/shm/" + name
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	// Touching pages past the end of the file faults with SIGBUS.
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size < int64(size) {
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrShortRegion, path, st.Size, size)
	}

	view, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer unix.Munmap(view)

	out := make([]byte, size)
	copy(out, view)
	return out, nil
}
