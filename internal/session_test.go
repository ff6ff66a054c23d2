package internal_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-realtime-pong/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// joinMsg 組裝一則 joinRoom 訊息
func joinMsg(roomID, username string) []byte {
	return []byte(fmt.Sprintf(`{"event":"joinRoom","data":{"roomId":%q,"username":%q}}`, roomID, username))
}

// TestSession_Join 測試 joinRoom 分派
func TestSession_Join(t *testing.T) {
	t.Run("creates the room and seats the player", func(t *testing.T) {
		reg := newTestRegistry()
		rec := &recorder{}
		sess := internal.NewSession(reg, rec, testLogger())

		sess.HandleMessage(joinMsg("abc", "愛麗絲"))

		room, ok := reg.Get("abc")
		require.True(t, ok)
		assert.Equal(t, 1, room.Occupancy())

		var joined internal.JoinedRoomPayload
		require.True(t, rec.last(t, internal.EventJoinedRoom, &joined))
		assert.Equal(t, sess.ID, joined.MyID)
	})

	t.Run("two sessions pair up in the same room", func(t *testing.T) {
		reg := newTestRegistry()
		recA, recB := &recorder{}, &recorder{}
		sessA := internal.NewSession(reg, recA, testLogger())
		sessB := internal.NewSession(reg, recB, testLogger())

		sessA.HandleMessage(joinMsg("abc", "愛麗絲"))
		sessB.HandleMessage(joinMsg("abc", "鮑伯"))

		room, ok := reg.Get("abc")
		require.True(t, ok)
		assert.Equal(t, 2, room.Occupancy())
		assert.Equal(t, 1, recA.count(t, internal.EventPlayersJoined))
		assert.Equal(t, 1, recB.count(t, internal.EventPlayersJoined))
	})

	t.Run("third session is silently ignored", func(t *testing.T) {
		reg := newTestRegistry()
		sessA := internal.NewSession(reg, &recorder{}, testLogger())
		sessB := internal.NewSession(reg, &recorder{}, testLogger())
		sessA.HandleMessage(joinMsg("abc", "愛麗絲"))
		sessB.HandleMessage(joinMsg("abc", "鮑伯"))

		recC := &recorder{}
		sessC := internal.NewSession(reg, recC, testLogger())
		sessC.HandleMessage(joinMsg("abc", "查理"))

		room, _ := reg.Get("abc")
		assert.Equal(t, 2, room.Occupancy())
		assert.Empty(t, recC.events(t))
	})

	t.Run("missing roomId is dropped", func(t *testing.T) {
		reg := newTestRegistry()
		rec := &recorder{}
		sess := internal.NewSession(reg, rec, testLogger())

		sess.HandleMessage([]byte(`{"event":"joinRoom","data":{"username":"愛麗絲"}}`))

		assert.Equal(t, 0, reg.Count())
		assert.Empty(t, rec.events(t))
	})
}

// TestSession_ReadyFlow 測試完整的準備握手到開賽
func TestSession_ReadyFlow(t *testing.T) {
	reg := newTestRegistry() // 倒數 0 秒，發球立即到期
	recA, recB := &recorder{}, &recorder{}
	sessA := internal.NewSession(reg, recA, testLogger())
	sessB := internal.NewSession(reg, recB, testLogger())

	sessA.HandleMessage(joinMsg("abc", "愛麗絲"))
	sessB.HandleMessage(joinMsg("abc", "鮑伯"))

	sessA.HandleMessage([]byte(`{"event":"playerReady","data":null}`))
	sessB.HandleMessage([]byte(`{"event":"playerReady","data":null}`))

	assert.Equal(t, 1, recA.count(t, internal.EventGameStart))
	assert.Equal(t, 1, recB.count(t, internal.EventGameStart))

	room, ok := reg.Get("abc")
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		return currentPhase(room) == internal.PhaseRunning
	}, time.Second, 5*time.Millisecond)
}

// TestSession_Move 測試 movePaddle 分派（負載是裸數字）
func TestSession_Move(t *testing.T) {
	t.Run("moves own paddle", func(t *testing.T) {
		reg := newTestRegistry()
		sess := internal.NewSession(reg, &recorder{}, testLogger())
		sess.HandleMessage(joinMsg("abc", "愛麗絲"))

		sess.HandleMessage([]byte(`{"event":"movePaddle","data":120}`))

		room, _ := reg.Get("abc")
		room.Mu.Lock()
		assert.Equal(t, 120.0, room.World.Paddles.Left)
		room.Mu.Unlock()
	})

	t.Run("before joining it is a no-op", func(t *testing.T) {
		reg := newTestRegistry()
		sess := internal.NewSession(reg, &recorder{}, testLogger())

		sess.HandleMessage([]byte(`{"event":"movePaddle","data":120}`))
		assert.Equal(t, 0, reg.Count())
	})

	t.Run("non-numeric payload is dropped", func(t *testing.T) {
		reg := newTestRegistry()
		sess := internal.NewSession(reg, &recorder{}, testLogger())
		sess.HandleMessage(joinMsg("abc", "愛麗絲"))

		sess.HandleMessage([]byte(`{"event":"movePaddle","data":"high"}`))

		room, _ := reg.Get("abc")
		room.Mu.Lock()
		assert.Equal(t, 160.0, room.World.Paddles.Left)
		room.Mu.Unlock()
	})
}

// TestSession_MalformedInput 測試格式錯誤與未知事件的容錯
func TestSession_MalformedInput(t *testing.T) {
	reg := newTestRegistry()
	rec := &recorder{}
	sess := internal.NewSession(reg, rec, testLogger())

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `this is not json`},
		{name: "unknown event", raw: `{"event":"teleportBall","data":{}}`},
		{name: "ready before join", raw: `{"event":"playerReady","data":null}`},
		{name: "join payload wrong shape", raw: `{"event":"joinRoom","data":[1,2,3]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 只要不 panic、不產生任何狀態即通過
			sess.HandleMessage([]byte(tt.raw))
			assert.Equal(t, 0, reg.Count())
			assert.Empty(t, rec.events(t))
		})
	}
}

// TestSession_Disconnect 測試斷線轉換
func TestSession_Disconnect(t *testing.T) {
	t.Run("partner stays, room survives", func(t *testing.T) {
		reg := newTestRegistry()
		sessA := internal.NewSession(reg, &recorder{}, testLogger())
		sessB := internal.NewSession(reg, &recorder{}, testLogger())
		sessA.HandleMessage(joinMsg("abc", "愛麗絲"))
		sessB.HandleMessage(joinMsg("abc", "鮑伯"))

		sessA.Disconnect()

		room, ok := reg.Get("abc")
		require.True(t, ok)
		assert.Equal(t, 1, room.Occupancy())
	})

	t.Run("last leaver destroys the room", func(t *testing.T) {
		reg := newTestRegistry()
		sess := internal.NewSession(reg, &recorder{}, testLogger())
		sess.HandleMessage(joinMsg("abc", "愛麗絲"))

		sess.Disconnect()
		assert.Equal(t, 0, reg.Count())
	})

	t.Run("disconnect before joining is a no-op", func(t *testing.T) {
		reg := newTestRegistry()
		sess := internal.NewSession(reg, &recorder{}, testLogger())

		sess.Disconnect()
		assert.Equal(t, 0, reg.Count())
	})

	t.Run("rejoining the same id gets a fresh room", func(t *testing.T) {
		reg := newTestRegistry()
		sess := internal.NewSession(reg, &recorder{}, testLogger())
		sess.HandleMessage(joinMsg("abc", "愛麗絲"))
		old, _ := reg.Get("abc")
		sess.Disconnect()

		sess.HandleMessage(joinMsg("abc", "愛麗絲"))

		fresh, ok := reg.Get("abc")
		require.True(t, ok)
		assert.NotSame(t, old, fresh)
		assert.Equal(t, 1, fresh.Occupancy())
	})
}
