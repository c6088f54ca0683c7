//go:build linux

package mumble

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

const wcharSize = 4

type mmapRegion struct {
	data []byte
}

func (r *mmapRegion) Bytes() []byte { return r.data }

func (r *mmapRegion) Close() error {
	return unix.Munmap(r.data)
}

// openRegion maps /dev/shm/MumbleLink.<uid>, which Mumble creates at
// startup.
func openRegion(size int) (region, error) {
	path := "/dev/shm/MumbleLink." + strconv.Itoa(unix.Getuid())
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size < int64(size) {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrShortBuffer, path, st.Size)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mmapRegion{data: data}, nil
}
