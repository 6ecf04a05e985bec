package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/metrics"

	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	fail     bool
	closed   atomic.Bool
	// stall, when set, blocks every write until it is closed.
	stall chan struct{}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	if f.stall != nil {
		<-f.stall
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.messages = append(f.messages, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeConn) received() []dom.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dom.Event, 0, len(f.messages))
	for _, m := range f.messages {
		var evt dom.Event
		if err := json.Unmarshal(m, &evt); err == nil {
			out = append(out, evt)
		}
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *metrics.WebSocketMetrics) {
	t.Helper()
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	r := NewRegistry(nil, m)
	t.Cleanup(r.Close)
	return r, m
}

func TestRegister_AssignsUniqueShortIDs(t *testing.T) {
	r, m := newTestRegistry(t)

	seen := make(map[string]bool)
	for range 50 {
		id := r.Register(&fakeConn{})
		assert.Len(t, id, idLength)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 50, r.Count())
	assert.Equal(t, 50.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestRegister_RetriesOnCollision(t *testing.T) {
	r, _ := newTestRegistry(t)
	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	var n int
	r.newID = func() string {
		id := ids[n]
		n++
		return id
	}

	first := r.Register(&fakeConn{})
	second := r.Register(&fakeConn{})

	assert.Equal(t, "aaaaaaaa", first)
	assert.Equal(t, "bbbbbbbb", second)
}

func TestDisconnect_Idempotent(t *testing.T) {
	r, m := newTestRegistry(t)
	conn := &fakeConn{}
	id := r.Register(conn)

	r.Disconnect(id)
	assert.Equal(t, 0, r.Count())
	assert.True(t, conn.closed.Load())

	r.Disconnect(id)
	r.Disconnect("missing")
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestBroadcast_DeliversToAll(t *testing.T) {
	r, m := newTestRegistry(t)
	conns := []*fakeConn{{}, {}, {}}
	for _, c := range conns {
		r.Register(c)
	}

	r.Broadcast(dom.TaskDeleted(7), "")

	for _, c := range conns {
		events := c.received()
		require.Len(t, events, 1)
		assert.Equal(t, dom.EventTaskDeleted, events[0].Type)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesSent))
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	r, _ := newTestRegistry(t)
	sender := &fakeConn{}
	other := &fakeConn{}
	senderID := r.Register(sender)
	r.Register(other)

	r.Broadcast(dom.UserMessage(senderID, "hi", time.Now()), senderID)

	assert.Empty(t, sender.received())
	require.Len(t, other.received(), 1)
	require.NotNil(t, other.received()[0].Message)
	assert.Equal(t, "hi", *other.received()[0].Message)
}

func TestBroadcast_FailedConnectionRemoved(t *testing.T) {
	r, m := newTestRegistry(t)
	healthy := []*fakeConn{{}, {}, {}}
	broken := &fakeConn{fail: true}
	for _, c := range healthy[:2] {
		r.Register(c)
	}
	brokenID := r.Register(broken)
	r.Register(healthy[2])

	r.Broadcast(dom.TaskDeleted(1), "")

	for _, c := range healthy {
		assert.Len(t, c.received(), 1)
	}
	assert.Equal(t, 3, r.Count())
	assert.True(t, broken.closed.Load())
	assert.False(t, r.SendTo(dom.TaskDeleted(2), brokenID), "evicted id must be gone")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures))
}

func TestBroadcast_StalledClientDoesNotDelayOthers(t *testing.T) {
	r, _ := newTestRegistry(t)
	stalled := &fakeConn{stall: make(chan struct{})}
	r.Register(stalled)
	healthy := []*fakeConn{{}, {}, {}}
	for _, c := range healthy {
		r.Register(c)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Broadcast(dom.TaskDeleted(3), "")
	}()

	assert.Eventually(t, func() bool {
		for _, c := range healthy {
			if len(c.received()) != 1 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond, "healthy clients must not wait behind the stalled one")

	select {
	case <-done:
		t.Fatal("broadcast returned before the stalled write finished")
	default:
	}

	close(stalled.stall)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast did not return after the stalled write finished")
	}
	assert.Len(t, stalled.received(), 1)
	assert.Equal(t, 4, r.Count())
}

func TestSendTo(t *testing.T) {
	r, _ := newTestRegistry(t)
	target := &fakeConn{}
	bystander := &fakeConn{}
	id := r.Register(target)
	r.Register(bystander)

	assert.True(t, r.SendTo(dom.Event{Type: dom.EventConnected, ClientID: id}, id))
	assert.Len(t, target.received(), 1)
	assert.Empty(t, bystander.received())

	assert.False(t, r.SendTo(dom.Event{Type: dom.EventConnected}, "nobody"))
}

func TestSendTo_FailureDisconnects(t *testing.T) {
	r, _ := newTestRegistry(t)
	conn := &fakeConn{fail: true}
	id := r.Register(conn)

	assert.False(t, r.SendTo(dom.TaskDeleted(1), id))
	assert.Equal(t, 0, r.Count())
	assert.True(t, conn.closed.Load())
}

func TestRemove_KeepsNewHolderOfReusedID(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.newID = func() string { return "samesame" }

	old := &fakeConn{}
	r.Register(old)
	stale := r.snapshot()[0]
	r.Disconnect("samesame")

	fresh := &fakeConn{}
	r.Register(fresh)

	r.remove(stale)
	assert.Equal(t, 1, r.Count())
	assert.False(t, fresh.closed.Load())
}

func TestConcurrentRegisterBroadcastDisconnect(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := r.Register(&fakeConn{fail: i%5 == 0})
			r.Broadcast(dom.TaskDeleted(int64(i)), "")
			r.Disconnect(id)
		}()
		go func() {
			defer wg.Done()
			r.Broadcast(dom.TaskDeleted(int64(i)), "")
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}

func TestClose_DisconnectsEveryone(t *testing.T) {
	r, m := newTestRegistry(t)
	a, b := &fakeConn{}, &fakeConn{}
	r.Register(a)
	r.Register(b)

	r.Close()

	assert.Equal(t, 0, r.Count())
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestAccept_OverRealWebSocket(t *testing.T) {
	r, _ := newTestRegistry(t)

	ids := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id, conn, err := r.Accept(w, req)
		if err != nil {
			return
		}
		ids <- id
		go func() {
			defer r.Disconnect(id)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	id := <-ids
	r.Broadcast(dom.TaskCreated(dom.Task{ID: 5, Title: "Buy milk"}), "")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "task_created", got["type"])
	assert.Equal(t, "Buy milk", got["data"].(map[string]any)["title"])

	conn.Close()
	assert.Eventually(t, func() bool { return r.Count() == 0 }, time.Second, 10*time.Millisecond)
	assert.False(t, r.SendTo(dom.TaskDeleted(5), id))
}

func TestAccept_RejectsPlainHTTP(t *testing.T) {
	r, _ := newTestRegistry(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	_, _, err := r.Accept(rec, req)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
}
