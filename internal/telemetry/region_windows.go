//go:build windows

package telemetry

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procOpenFileMapping = kernel32.NewProc("OpenFileMappingW")
)

func openFileMapping(access uint32, name string) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	r, _, e := procOpenFileMapping.Call(uintptr(access), 0, uintptr(unsafe.Pointer(p)))
	if r == 0 {
		return 0, e
	}
	return windows.Handle(r), nil
}

func copyRegion(name string, size int) ([]byte, error) {
	h, err := openFileMapping(windows.FILE_MAP_READ, name)
	if err != nil {
		return nil, fmt.Errorf("open file mapping %s: %w", name, err)
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		return nil, fmt.Errorf("map view of %s: %w", name, err)
	}
	defer windows.UnmapViewOfFile(addr)

	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(addr)), size))
	return out, nil
}
