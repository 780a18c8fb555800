package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/dfs-qubo/pkg/logger"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

func startHub(t *testing.T, configure ...func(*Hub)) (*Hub, string) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.NewNop())
	for _, fn := range configure {
		fn(hub)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/progress/:client_id", hub.HandleWebSocket)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_SendProgress(t *testing.T) {
	hub, base := startHub(t)

	alice := dial(t, base+"/ws/progress/alice")
	bob := dial(t, base+"/ws/progress/bob")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.SendProgress("alice", "sampling", 1.5, "reads complete")

	alice.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := alice.ReadMessage()
	require.NoError(t, err)

	var update types.ProgressUpdate
	require.NoError(t, json.Unmarshal(raw, &update))
	assert.Equal(t, "progress", update.Type)
	assert.Equal(t, 1.0, update.Progress)
	assert.Equal(t, "sampling", update.CurrentStep)
	assert.Equal(t, "reads complete", update.Message)

	// bob is subscribed to a different client ID
	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err)
}

func TestHub_Disconnect(t *testing.T) {
	hub, base := startHub(t)

	conn := dial(t, base+"/ws/progress/carol")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)

	// Sending to a client without connections is a no-op
	hub.SendProgress("carol", "done", 1, "")
	hub.SendProgress("", "done", 1, "")
}

func fastKeepalive(h *Hub) {
	h.pongWait = 200 * time.Millisecond
	h.pingPeriod = 50 * time.Millisecond
}

func TestHub_KeepaliveHoldsResponsiveClients(t *testing.T) {
	hub, base := startHub(t, fastKeepalive)

	conn := dial(t, base+"/ws/progress/dave")
	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	// The ping handler only runs while the client is reading
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(3 * hub.pongWait)
	assert.Equal(t, 1, hub.ConnectionCount())
	assert.Greater(t, pings.Load(), int32(2))
}

func TestHub_DropsClientsThatStopAnswering(t *testing.T) {
	hub, base := startHub(t, fastKeepalive)

	// Never reads, so pings go unanswered
	dial(t, base+"/ws/progress/erin")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, 2*time.Second, 20*time.Millisecond)
}
