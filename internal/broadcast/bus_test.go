package broadcast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeduel/internal/websocket"
	"codeduel/pkg/interfaces"
	"codeduel/pkg/types"
)

type fakeConn struct {
	id      string
	mu      sync.Mutex
	events  []*types.ServerEvent
	failing bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	f.events = append(f.events, v.(*types.ServerEvent))
	return nil
}

func (f *fakeConn) Close() error { return nil }
func (f *fakeConn) ID() string   { return f.id }

func (f *fakeConn) received() []*types.ServerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.ServerEvent(nil), f.events...)
}

func setup(t *testing.T, ids ...string) (*Bus, map[string]*fakeConn) {
	t.Helper()
	reg := websocket.NewRegistry()
	conns := map[string]*fakeConn{}
	for _, id := range ids {
		c := &fakeConn{id: id}
		require.NoError(t, reg.Register(c))
		conns[id] = c
	}
	return NewBus(reg, zerolog.Nop()), conns
}

func TestBus_ImplementsBroadcaster(t *testing.T) {
	var _ interfaces.Broadcaster = &Bus{}
}

func TestBus_ToRoom(t *testing.T) {
	bus, conns := setup(t, "a", "b", "c")
	bus.Subscribe("r1", "a")
	bus.Subscribe("r1", "b")
	bus.Subscribe("r2", "c")

	bus.ToRoom("r1", &types.ServerEvent{Type: types.EventRoomUpdate})

	require.Len(t, conns["a"].received(), 1)
	require.Len(t, conns["b"].received(), 1)
	assert.Empty(t, conns["c"].received())

	got := conns["a"].received()[0]
	assert.Equal(t, "r1", got.RoomID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestBus_ToRoomExcept(t *testing.T) {
	bus, conns := setup(t, "a", "b")
	bus.Subscribe("r1", "a")
	bus.Subscribe("r1", "b")

	bus.ToRoomExcept("r1", "a", &types.ServerEvent{Type: types.EventVoiceStatus, Status: "muted"})

	assert.Empty(t, conns["a"].received())
	require.Len(t, conns["b"].received(), 1)
	assert.Equal(t, "muted", conns["b"].received()[0].Status)
}

func TestBus_FailedConnectionDoesNotBlockOthers(t *testing.T) {
	bus, conns := setup(t, "a", "b")
	conns["a"].failing = true
	bus.Subscribe("r1", "a")
	bus.Subscribe("r1", "b")

	bus.ToRoom("r1", &types.ServerEvent{Type: types.EventRoomUpdate})

	assert.Len(t, conns["b"].received(), 1)
}

func TestBus_ToConnection(t *testing.T) {
	bus, conns := setup(t, "a", "b")

	require.NoError(t, bus.ToConnection("b", &types.ServerEvent{Type: types.EventVoiceSignal, From: "a"}))
	assert.Empty(t, conns["a"].received())
	require.Len(t, conns["b"].received(), 1)
	assert.Equal(t, "a", conns["b"].received()[0].From)

	err := bus.ToConnection("ghost", &types.ServerEvent{Type: types.EventVoiceSignal})
	assert.ErrorIs(t, err, interfaces.ErrConnectionNotFound)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus, conns := setup(t, "a")
	bus.Subscribe("r1", "a")
	bus.Unsubscribe("r1", "a")

	bus.ToRoom("r1", &types.ServerEvent{Type: types.EventRoomUpdate})
	assert.Empty(t, conns["a"].received())
}

// stalledPeer dials a server that upgrades and then never reads, so the
// client's socket buffers eventually fill.
func stalledPeer(t *testing.T) *gorilla.Conn {
	t.Helper()
	upgrader := gorilla.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func TestBus_SlowConsumerDoesNotStallDelivery(t *testing.T) {
	reg := websocket.NewRegistry()
	slow := websocket.NewConnection(stalledPeer(t), 1, 10*time.Second)
	defer slow.Close()
	healthy := &fakeConn{id: "healthy"}
	require.NoError(t, reg.Register(slow))
	require.NoError(t, reg.Register(healthy))

	bus := NewBus(reg, zerolog.Nop())
	bus.Subscribe("r1", slow.ID())
	bus.Subscribe("r1", "healthy")

	payload := strings.Repeat("x", 1<<20)
	sent := 0
	for ; sent < 500; sent++ {
		select {
		case <-slow.Done():
		default:
			start := time.Now()
			bus.ToRoom("r1", &types.ServerEvent{
				Type:    types.EventChatMessage,
				Message: &types.ChatMessage{Username: "bob", Text: payload},
			})
			assert.Less(t, time.Since(start), time.Second, "delivery blocked on a full buffer")
			continue
		}
		break
	}

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow consumer was never closed")
	}
	assert.Len(t, healthy.received(), sent)
}
