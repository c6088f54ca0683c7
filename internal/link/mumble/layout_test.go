package mumble

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-proximity/linkbridge/pkg/core"
)

func TestNewLayout(t *testing.T) {
	tests := []struct {
		wchar int
		size  int
		ctx   int
	}{
		{2, 5460, 1108},
		{4, 10580, 2132},
	}
	for _, tt := range tests {
		l, err := NewLayout(tt.wchar)
		require.NoError(t, err)
		assert.Equal(t, tt.size, l.Size)
		assert.Equal(t, tt.ctx, l.Context)
		assert.Equal(t, 80+256*tt.wchar, l.Identity)
		assert.Equal(t, 340+512*tt.wchar, l.Description)
	}

	_, err := NewLayout(3)
	assert.Error(t, err)
}

func newTestMemory(t *testing.T, wchar int) (*Memory, []byte, Layout) {
	t.Helper()
	l, err := NewLayout(wchar)
	require.NoError(t, err)
	buf := make([]byte, l.Size)
	m, err := NewMemory(buf, l)
	require.NoError(t, err)
	return m, buf, l
}

func TestNewMemory_ShortBuffer(t *testing.T) {
	l, err := NewLayout(2)
	require.NoError(t, err)
	_, err = NewMemory(make([]byte, l.Size-1), l)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestMemory_Update(t *testing.T) {
	m, buf, l := newTestMemory(t, 4)
	cam := core.Position{Pos: core.Vec3{7, 8, 9}, Dir: core.Vec3{1, 0, 0}, Up: core.Vec3{0, 0, 1}}

	require.NoError(t, m.Update(core.NearOrigin, cam))
	require.NoError(t, m.Update(core.NearOrigin, cam))

	assert.Equal(t, uint32(LinkVersion), binary.LittleEndian.Uint32(buf))
	assert.Equal(t, uint32(2), m.Tick())

	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	assert.Equal(t, float32(0.005), f(l.AvatarPos))
	assert.Equal(t, float32(-1), f(l.AvatarPos+20))
	assert.Equal(t, float32(7), f(l.CameraPos))
	assert.Equal(t, float32(1), f(l.CameraPos+32))
}

func TestMemory_Strings(t *testing.T) {
	for _, wchar := range []int{2, 4} {
		m, buf, l := newTestMemory(t, wchar)

		require.NoError(t, m.Init("App", "Desc"))
		require.NoError(t, m.SetIdentity("Alice|a|1"))
		require.NoError(t, m.SetContext([]byte("TM|srv|All")))

		assert.Equal(t, byte('A'), buf[l.Name])
		assert.Equal(t, byte('p'), buf[l.Name+wchar])
		assert.Equal(t, byte('D'), buf[l.Description])
		assert.Equal(t, byte('|'), buf[l.Identity+5*wchar])
		assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(buf[l.ContextLen:]))
		assert.Equal(t, "TM|srv|All", string(buf[l.Context:l.Context+10]))

		// Shorter strings must not leave stale bytes behind.
		require.NoError(t, m.SetIdentity("B"))
		assert.Equal(t, byte(0), buf[l.Identity+wchar])
		require.NoError(t, m.SetContext([]byte("x")))
		assert.Equal(t, byte(0), buf[l.Context+1])
	}
}

func TestMemory_Truncation(t *testing.T) {
	m, buf, l := newTestMemory(t, 2)

	require.NoError(t, m.SetIdentity(strings.Repeat("x", 1000)))
	last := l.Identity + (identityChars-1)*2
	assert.Equal(t, byte('x'), buf[last-2])
	assert.Equal(t, []byte{0, 0}, buf[last:last+2], "terminator")

	require.NoError(t, m.SetContext([]byte(strings.Repeat("y", 1000))))
	assert.Equal(t, uint32(contextBytes), binary.LittleEndian.Uint32(buf[l.ContextLen:]))
	assert.Equal(t, byte(0), buf[l.Description], "description untouched")
}
