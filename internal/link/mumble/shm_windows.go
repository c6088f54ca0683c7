//go:build windows

package mumble

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const wcharSize = 2

type viewRegion struct {
	handle windows.Handle
	addr   uintptr
	data   []byte
}

func (r *viewRegion) Bytes() []byte { return r.data }

func (r *viewRegion) Close() error {
	err := windows.UnmapViewOfFile(r.addr)
	if cerr := windows.CloseHandle(r.handle); err == nil {
		err = cerr
	}
	return err
}

// openRegion maps the "MumbleLink" file mapping, creating it if Mumble has
// not done so yet.
func openRegion(size int) (region, error) {
	name, err := windows.UTF16PtrFromString("MumbleLink")
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), name)
	if h == 0 {
		return nil, fmt.Errorf("create file mapping: %w", err)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, fmt.Errorf("map view: %w", err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &viewRegion{handle: h, addr: addr, data: data}, nil
}
