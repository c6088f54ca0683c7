package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-proximity/linkbridge/internal/channel"
	"github.com/tm-proximity/linkbridge/internal/codec"
	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/internal/identity"
	"github.com/tm-proximity/linkbridge/pkg/core"
)

type fakeLink struct {
	mu         sync.Mutex
	connected  bool
	updates    []core.Positions
	identities []string
	contexts   []string
	nonce      uint64
}

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) Update(p, c core.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, core.Positions{P: p, C: c})
	return nil
}

func (f *fakeLink) Nonce() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce
}

func (f *fakeLink) SetIdentityAndContext(id string, ctx []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities = append(f.identities, id)
	f.contexts = append(f.contexts, string(ctx))
	f.nonce++
	return nil
}

func (f *fakeLink) lastPush() (string, string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.identities) == 0 {
		return "", "", 0
	}
	return f.identities[len(f.identities)-1], f.contexts[len(f.contexts)-1], len(f.identities)
}

func (f *fakeLink) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type harness struct {
	srv     *Server
	link    *fakeLink
	details *identity.Context
	outbox  *channel.Buffered[events.Event]
	visible *events.Flag
	cancel  context.CancelFunc
	errCh   chan error
}

func startServer(t *testing.T, outboxSize int) *harness {
	t.Helper()
	h := &harness{
		link:    &fakeLink{connected: true},
		details: identity.NewContext(),
		outbox:  channel.NewBuffered[events.Event](outboxSize),
		visible: events.NewFlag(true),
		errCh:   make(chan error, 1),
	}
	srv, err := New(Config{Version: "1.2.3"}, Dependencies{
		Link:       h.link,
		Details:    h.details,
		Outbox:     h.outbox,
		Visibility: h.visible,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	h.srv = srv

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() { h.errCh <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		h.cancel()
		select {
		case <-h.errCh:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	ev := h.next(t)
	require.IsType(t, events.ListeningOn{}, ev)
	assert.Equal(t, "127.0.0.1", ev.(events.ListeningOn).Host)
	return h
}

func (h *harness) next(t *testing.T) events.Event {
	t.Helper()
	select {
	case ev := <-h.outbox.Receive():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outward event")
		return nil
	}
}

func (h *harness) assertNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.outbox.Receive():
		t.Fatalf("unexpected outward event %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

type client struct {
	conn net.Conn
	r    *codec.FrameReader
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	conn, err := net.Dial("tcp", h.srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	c := &client{conn: conn, r: codec.NewFrameReader(conn)}

	ev := h.next(t)
	require.IsType(t, events.Game{}, ev)
	assert.Equal(t, core.KindNetAccepted, ev.(events.Game).Event.Kind())

	assert.Equal(t, codec.LinkAppInfo{Version: "1.2.3", Options: [][2]string{}}, c.read(t))
	assert.Equal(t, codec.ConnectedStatus(true), c.read(t))
	return c
}

func (c *client) send(t *testing.T, data string) {
	t.Helper()
	require.NoError(t, codec.WriteFrame(c.conn, []byte(data)))
}

func (c *client) sendBytes(t *testing.T, data []byte) {
	t.Helper()
	require.NoError(t, codec.WriteFrame(c.conn, data))
}

func (c *client) read(t *testing.T) codec.Reply {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := c.r.ReadFrame()
	require.NoError(t, err)
	r, err := codec.DecodeReply(data)
	require.NoError(t, err)
	return r
}

func gameEvent(t *testing.T, ev events.Event) core.Event {
	t.Helper()
	g, ok := ev.(events.Game)
	require.True(t, ok, "expected Game event, got %#v", ev)
	return g.Event
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:46323", Config{}.Addr())
	assert.Equal(t, "0.0.0.0:9", Config{Host: "0.0.0.0", Port: 9}.Addr())
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	assert.Error(t, err)
}

func TestServer_BinaryPositions(t *testing.T) {
	h := startServer(t, 100)
	c := h.dial(t)

	want := core.Positions{
		P: core.Position{Pos: core.Vec3{1, 2, 3}, Dir: core.Vec3{0, 0, 1}, Up: core.Vec3{0, 1, 0}},
		C: core.NearOrigin,
	}
	c.sendBytes(t, codec.EncodePositionFrame(want.P, want.C))

	assert.Equal(t, want, gameEvent(t, h.next(t)))
	require.Equal(t, 1, h.link.updateCount())
	assert.Equal(t, want, h.link.updates[0])
}

func TestServer_PositionsHiddenObserver(t *testing.T) {
	h := startServer(t, 100)
	c := h.dial(t)
	h.visible.SetVisible(false)

	c.send(t, `{"Positions":{"p":{"pos":[1,2,3],"dir":[0,0,1],"up":[0,1,0]},"c":{"pos":[1,2,3],"dir":[0,0,1],"up":[0,1,0]}}}`)
	c.send(t, `{"Ping":[]}`)

	assert.Equal(t, codec.PingReply{}, c.read(t))
	assert.Equal(t, 1, h.link.updateCount(), "link update is never gated")
	h.assertNoEvent(t)
}

func TestServer_DetailsAndPing(t *testing.T) {
	h := startServer(t, 100)
	c := h.dial(t)

	c.send(t, `{"PlayerDetails":["Alice","alice123"]}`)
	assert.Equal(t, core.PlayerDetails{Name: "Alice", Login: "alice123"}, gameEvent(t, h.next(t)))
	_, _, pushes := h.link.lastPush()
	assert.Equal(t, 0, pushes, "player details alone do not push")

	c.send(t, `{"ServerDetails":["srv","Blue"]}`)
	assert.Equal(t, core.ServerDetails{Server: "srv", Team: "Blue"}, gameEvent(t, h.next(t)))
	id, ctx, pushes := h.link.lastPush()
	assert.Equal(t, "Alice|alice123|0", id)
	assert.Equal(t, "TM|srv|Blue", ctx)
	assert.Equal(t, 1, pushes)

	c.send(t, `{"Ping":[]}`)
	assert.Equal(t, codec.PingReply{}, c.read(t))
	assert.Equal(t, core.Ping{}, gameEvent(t, h.next(t)))
	id, ctx, pushes = h.link.lastPush()
	assert.Equal(t, "Alice|alice123|1", id)
	assert.Equal(t, "TM|srv|Blue", ctx)
	assert.Equal(t, 2, pushes)

	c.send(t, `{"LeftServer":[]}`)
	assert.Equal(t, core.LeftServer{}, gameEvent(t, h.next(t)))
	_, ctx, _ = h.link.lastPush()
	assert.Equal(t, "TM||All", ctx)
}

func TestServer_ProtocolErrorsKeepConnection(t *testing.T) {
	h := startServer(t, 100)
	c := h.dial(t)

	c.sendBytes(t, []byte{codec.TagPosition, 1, 2, 3})
	ev := h.next(t)
	require.IsType(t, events.ProtocolError{}, ev)
	assert.Contains(t, ev.(events.ProtocolError).Message, "malformed")

	c.send(t, `not json`)
	require.IsType(t, events.ProtocolError{}, h.next(t))

	c.send(t, `{"NetAccepted":"1.2.3.4:5"}`)
	ev = h.next(t)
	require.IsType(t, events.ProtocolError{}, ev)
	assert.Contains(t, ev.(events.ProtocolError).Message, "unexpected message")

	c.send(t, `{"Ping":[]}`)
	assert.Equal(t, codec.PingReply{}, c.read(t))
	assert.Equal(t, core.Ping{}, gameEvent(t, h.next(t)))
}

func TestServer_Disconnect(t *testing.T) {
	h := startServer(t, 100)
	c := h.dial(t)

	c.send(t, `{"ServerDetails":["srv","Red"]}`)
	gameEvent(t, h.next(t))
	require.NoError(t, c.conn.Close())

	assert.Equal(t, core.LeftServer{}, gameEvent(t, h.next(t)))
	ev := gameEvent(t, h.next(t))
	require.IsType(t, core.NetDisconnected{}, ev)
	assert.NotEmpty(t, ev.(core.NetDisconnected).Addr)

	_, ctx, pushes := h.link.lastPush()
	assert.Equal(t, "TM||All", ctx)
	assert.Equal(t, 2, pushes)
	assert.Equal(t, identity.DefaultTeam, h.details.Snapshot().Team)
}

func TestServer_ShutdownNotifiesLastPeer(t *testing.T) {
	h := startServer(t, 100)
	c := h.dial(t)

	h.cancel()

	assert.Equal(t, codec.ShutdownNow{}, c.read(t))
	select {
	case err := <-h.errCh:
		assert.NoError(t, err)
		h.errCh <- err
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err := net.DialTimeout("tcp", h.srv.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err, "listener is closed")
}

func TestServer_ObserverGoneShutsDown(t *testing.T) {
	h := startServer(t, 100)
	c := h.dial(t)

	h.outbox.Close()
	c.send(t, `{"Ping":[]}`)

	select {
	case err := <-h.errCh:
		assert.ErrorIs(t, err, events.ErrObserverGone)
		h.errCh <- err
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	<-h.srv.Done()
}

func TestServer_ShutdownBeforeServe(t *testing.T) {
	srv, err := New(Config{}, Dependencies{
		Link:    &fakeLink{},
		Details: identity.NewContext(),
		Outbox:  channel.NewBuffered[events.Event](1),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	srv.Shutdown()
	srv.Shutdown()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, srv.Serve(context.Background(), ln))
}
