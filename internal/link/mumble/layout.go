// Package mumble writes the Mumble "Link" shared memory block.
package mumble

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/tm-proximity/linkbridge/pkg/core"
)

const (
	// LinkVersion is the layout version Mumble expects in uiVersion.
	LinkVersion = 2

	nameChars        = 256
	identityChars    = 256
	contextBytes     = 256
	descriptionChars = 2048
)

// ErrShortBuffer is returned when the mapped region is smaller than the
// layout needs.
var ErrShortBuffer = errors.New("link memory too small")

// Layout holds the byte offsets of every LinkedMem field. They depend on
// the platform's wchar_t width.
type Layout struct {
	Wchar int

	Tick        int
	AvatarPos   int
	Name        int
	CameraPos   int
	Identity    int
	ContextLen  int
	Context     int
	Description int
	Size        int
}

// NewLayout computes the layout for a wchar_t of wchar bytes (2 or 4).
func NewLayout(wchar int) (Layout, error) {
	if wchar != 2 && wchar != 4 {
		return Layout{}, fmt.Errorf("unsupported wchar size %d", wchar)
	}
	l := Layout{Wchar: wchar, Tick: 4, AvatarPos: 8, Name: 44}
	l.CameraPos = l.Name + nameChars*wchar
	l.Identity = l.CameraPos + 36
	l.ContextLen = l.Identity + identityChars*wchar
	l.Context = l.ContextLen + 4
	l.Description = l.Context + contextBytes
	l.Size = l.Description + descriptionChars*wchar
	return l, nil
}

// Memory is a typed view over a LinkedMem block.
type Memory struct {
	buf    []byte
	layout Layout
	wide   *encoding.Encoder
}

// NewMemory wraps buf, which must be at least layout.Size bytes.
func NewMemory(buf []byte, layout Layout) (*Memory, error) {
	if len(buf) < layout.Size {
		return nil, fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(buf), layout.Size)
	}
	var enc encoding.Encoding
	if layout.Wchar == 2 {
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	} else {
		enc = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	}
	return &Memory{buf: buf[:layout.Size], layout: layout, wide: enc.NewEncoder()}, nil
}

// Init writes the application name and description shown by Mumble.
func (m *Memory) Init(name, description string) error {
	if err := m.putWide(m.layout.Name, nameChars, name); err != nil {
		return fmt.Errorf("write name: %w", err)
	}
	if err := m.putWide(m.layout.Description, descriptionChars, description); err != nil {
		return fmt.Errorf("write description: %w", err)
	}
	return nil
}

// Update writes both transforms and advances the tick.
func (m *Memory) Update(player, camera core.Position) error {
	m.putPosition(m.layout.AvatarPos, player)
	m.putPosition(m.layout.CameraPos, camera)
	binary.LittleEndian.PutUint32(m.buf[0:], LinkVersion)
	tick := binary.LittleEndian.Uint32(m.buf[m.layout.Tick:])
	binary.LittleEndian.PutUint32(m.buf[m.layout.Tick:], tick+1)
	return nil
}

// SetIdentity writes the identity, truncated to the field size.
func (m *Memory) SetIdentity(identity string) error {
	if err := m.putWide(m.layout.Identity, identityChars, identity); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// SetContext writes up to 256 context bytes and their length.
func (m *Memory) SetContext(ctx []byte) error {
	field := m.buf[m.layout.Context : m.layout.Context+contextBytes]
	n := copy(field, ctx)
	clear(field[n:])
	binary.LittleEndian.PutUint32(m.buf[m.layout.ContextLen:], uint32(n))
	return nil
}

// Tick returns the current tick counter.
func (m *Memory) Tick() uint32 {
	return binary.LittleEndian.Uint32(m.buf[m.layout.Tick:])
}

func (m *Memory) putPosition(off int, p core.Position) {
	for i, v := range [3]core.Vec3{p.Pos, p.Dir, p.Up} {
		for j, f := range v {
			binary.LittleEndian.PutUint32(m.buf[off+i*12+j*4:], math.Float32bits(f))
		}
	}
}

// putWide encodes s into a zero-terminated field of chars wide characters.
func (m *Memory) putWide(off, chars int, s string) error {
	field := m.buf[off : off+chars*m.layout.Wchar]
	enc, err := m.wide.Bytes([]byte(s))
	if err != nil {
		return err
	}
	limit := (chars - 1) * m.layout.Wchar
	if len(enc) > limit {
		enc = enc[:limit]
	}
	n := copy(field, enc)
	clear(field[n:])
	return nil
}
