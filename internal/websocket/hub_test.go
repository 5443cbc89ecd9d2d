package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-stats/internal/types"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// newHubServer upgrades every request and registers the listener with the hub
func newHubServer(t *testing.T, hub *Hub, initial *types.Snapshot) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		if initial != nil {
			client.Send(NewMessage(MessageTypeInitial, initial))
		}
		if !hub.Register(client) {
			_ = conn.Close()
			return
		}
		client.Start()
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type snapshotEnvelope struct {
	Type      string         `json:"type"`
	Data      types.Snapshot `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) snapshotEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env snapshotEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_InitialAndUpdateMessages(t *testing.T) {
	hub := startHub(t)
	initial := &types.Snapshot{GlobalStats: types.GlobalStats{TotalPlayers: 10}}
	server := newHubServer(t, hub, initial)

	conn := dial(t, server)
	env := readEnvelope(t, conn)
	assert.Equal(t, MessageTypeInitial, env.Type)
	assert.Equal(t, 10, env.Data.GlobalStats.TotalPlayers)
	assert.False(t, env.Timestamp.IsZero())

	require.Eventually(t, func() bool { return hub.ListenerCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.BroadcastUpdate(&types.Snapshot{GlobalStats: types.GlobalStats{TotalPlayers: 20}}))
	env = readEnvelope(t, conn)
	assert.Equal(t, MessageTypeUpdate, env.Type)
	assert.Equal(t, 20, env.Data.GlobalStats.TotalPlayers)
}

func TestHub_BroadcastReachesEveryListener(t *testing.T) {
	hub := startHub(t)
	server := newHubServer(t, hub, nil)

	first := dial(t, server)
	second := dial(t, server)
	require.Eventually(t, func() bool { return hub.ListenerCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.BroadcastUpdate(&types.Snapshot{GlobalStats: types.GlobalStats{ActiveGames: 3}}))
	assert.Equal(t, 3, readEnvelope(t, first).Data.GlobalStats.ActiveGames)
	assert.Equal(t, 3, readEnvelope(t, second).Data.GlobalStats.ActiveGames)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := startHub(t)
	server := newHubServer(t, hub, nil)

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.ListenerCount() == 1 }, time.Second, 5*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.ListenerCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_PingGetsPong(t *testing.T) {
	hub := startHub(t)
	server := newHubServer(t, hub, nil)
	conn := dial(t, server)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestHub_DropsSlowListener(t *testing.T) {
	hub := startHub(t)

	// never started, so nothing drains its buffer
	slow := NewClient(hub, nil)
	require.True(t, hub.Register(slow))
	require.Eventually(t, func() bool { return hub.ListenerCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < sendBufferSize+1; i++ {
		require.NoError(t, hub.Broadcast(NewMessage(MessageTypeUpdate, i)))
	}
	assert.Eventually(t, func() bool { return hub.ListenerCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, slow.Send(NewMessage(MessageTypeUpdate, nil)))
}

func TestHub_RegisterAfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, hub.Run(ctx), context.Canceled)

	assert.False(t, hub.Register(NewClient(hub, nil)))
	// must not block
	hub.Unregister(NewClient(hub, nil))
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypeUpdate, "x")
	assert.Equal(t, MessageTypeUpdate, msg.Type)
	assert.Equal(t, "x", msg.Data)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
}
