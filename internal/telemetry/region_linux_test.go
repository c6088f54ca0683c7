//go:build linux

package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shmRegion(t *testing.T, data []byte) string {
	t.Helper()
	name := fmt.Sprintf("linkbridge_test_%d_%s", os.Getpid(), filepath.Base(t.Name()))
	path := "/dev/shm/" + name
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Skipf("no writable /dev/shm: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	return name
}

func TestRegionReader_ShortRegion(t *testing.T) {
	for _, size := range []int{0, 16, Size - 1} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			name := shmRegion(t, make([]byte, size))

			_, err := NewRegionReader(name).Read()
			var rerr *ReadError
			require.True(t, errors.As(err, &rerr), "got %v", err)
			assert.ErrorIs(t, err, ErrShortRegion)
		})
	}
}

func TestRegionReader_MissingShm(t *testing.T) {
	_, err := NewRegionReader(fmt.Sprintf("linkbridge_missing_%d", os.Getpid())).Read()
	var rerr *ReadError
	assert.True(t, errors.As(err, &rerr))
}

func TestRegionReader_FullRegion(t *testing.T) {
	name := shmRegion(t, Encode(sampleSnapshot()))

	snap, err := NewRegionReader(name).Read()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), snap.UpdateNumber)
	assert.Equal(t, "ZJw8ZFHRmmx2Wd1hW_RRTfeMJu8", snap.MapID())
}
