package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-realtime-pong/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer 架起真實的 WebSocket 端點
func wsTestServer(t *testing.T) (*internal.Registry, string, func()) {
	t.Helper()

	reg := newTestRegistry()
	hub := internal.NewHub(reg, testLogger())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return reg, url, func() {
		hub.Stop()
		server.Close()
	}
}

// dialWS 建立一條客戶端連線
func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

// readEvent 讀取下一則指定事件（跳過中途的其他廣播）
func readEvent(t *testing.T, conn *websocket.Conn, event string) internal.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var env internal.Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		if env.Event == event {
			return env
		}
	}
}

// TestWebSocket_JoinHandshake 測試經由真實連線的加入握手
func TestWebSocket_JoinHandshake(t *testing.T) {
	reg, url, teardown := wsTestServer(t)
	defer teardown()

	connA := dialWS(t, url)
	defer connA.Close()

	require.NoError(t, connA.WriteMessage(websocket.TextMessage, joinMsg("abc", "愛麗絲")))

	env := readEvent(t, connA, internal.EventJoinedRoom)
	var joined internal.JoinedRoomPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	require.Len(t, joined.Players, 1)
	assert.Equal(t, "愛麗絲", joined.Players[0].Username)
	assert.Equal(t, joined.Players[0].ID, joined.MyID)

	// 第二位入座：雙方都收到 playersJoined
	connB := dialWS(t, url)
	defer connB.Close()
	require.NoError(t, connB.WriteMessage(websocket.TextMessage, joinMsg("abc", "鮑伯")))

	var paired internal.PlayersJoinedPayload
	env = readEvent(t, connA, internal.EventPlayersJoined)
	require.NoError(t, json.Unmarshal(env.Data, &paired))
	assert.Len(t, paired.Players, 2)

	env = readEvent(t, connB, internal.EventPlayersJoined)
	require.NoError(t, json.Unmarshal(env.Data, &paired))
	assert.Len(t, paired.Players, 2)

	room, ok := reg.Get("abc")
	require.True(t, ok)
	assert.Equal(t, 2, room.Occupancy())
}

// TestWebSocket_ReadyToGameStart 測試經由真實連線的準備握手
func TestWebSocket_ReadyToGameStart(t *testing.T) {
	_, url, teardown := wsTestServer(t)
	defer teardown()

	connA := dialWS(t, url)
	defer connA.Close()
	connB := dialWS(t, url)
	defer connB.Close()

	require.NoError(t, connA.WriteMessage(websocket.TextMessage, joinMsg("abc", "愛麗絲")))
	readEvent(t, connA, internal.EventJoinedRoom)
	require.NoError(t, connB.WriteMessage(websocket.TextMessage, joinMsg("abc", "鮑伯")))
	readEvent(t, connB, internal.EventJoinedRoom)

	ready := []byte(`{"event":"playerReady"}`)
	require.NoError(t, connA.WriteMessage(websocket.TextMessage, ready))
	require.NoError(t, connB.WriteMessage(websocket.TextMessage, ready))

	// 雙方都收到 gameStart
	readEvent(t, connA, internal.EventGameStart)
	readEvent(t, connB, internal.EventGameStart)
}

// TestWebSocket_DisconnectCleansUp 測試斷線後的離座與空房銷毀
func TestWebSocket_DisconnectCleansUp(t *testing.T) {
	reg, url, teardown := wsTestServer(t)
	defer teardown()

	connA := dialWS(t, url)
	connB := dialWS(t, url)
	defer connB.Close()

	require.NoError(t, connA.WriteMessage(websocket.TextMessage, joinMsg("abc", "愛麗絲")))
	readEvent(t, connA, internal.EventJoinedRoom)
	require.NoError(t, connB.WriteMessage(websocket.TextMessage, joinMsg("abc", "鮑伯")))
	readEvent(t, connB, internal.EventJoinedRoom)

	// A 斷線：B 留在房裡，左右歸屬不變
	connA.Close()
	require.Eventually(t, func() bool {
		room, ok := reg.Get("abc")
		return ok && room.Occupancy() == 1
	}, 2*time.Second, 10*time.Millisecond)

	room, _ := reg.Get("abc")
	room.Mu.Lock()
	assert.Equal(t, "", room.Seats[0])
	assert.NotEqual(t, "", room.Seats[1])
	room.Mu.Unlock()

	// 最後一位斷線：房間從註冊表消失
	connB.Close()
	require.Eventually(t, func() bool {
		return reg.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
