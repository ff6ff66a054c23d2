package internal

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何讓每秒 60 次的狀態廣播不被任何一條慢連線拖住？
//
// 核心挑戰：
//   1. 廣播路徑上不能有同步網路 I/O（房間臨界區更碰不得）
//   2. 死連接偵測：客戶端崩潰、網路異常時要能回收資源
//   3. 佇列回壓：慢客戶端的積壓不能無限增長
//
// 設計方案：
//   ✅ 每連線一條緩衝 Send channel（256 則）+ 獨立寫出 goroutine
//   ✅ Enqueue 非阻塞：佇列滿直接丟棄該則（遊戲快照下一幀就有新的，
//      丟舊保新比阻塞正確）
//   ✅ Ping/Pong 心跳 - 54s Ping / 60s 讀取超時（避開代理的 60s 閾值，
//      留 6 秒餘量）

// Hub WebSocket 連線中心
//
// 只負責傳輸：升級、讀寫泵、心跳與關閉。入站訊息原封交給該連線的
// Session 分派器，出站訊息由 Room 經 Outbound 介面投遞進來 ——
// Hub 對遊戲語義一無所知。
type Hub struct {
	registry *Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	connections map[*Connection]struct{}
	closed      bool
}

// Connection 一條 WebSocket 連線
//
// 實作 Outbound：Room 廣播時呼叫 Enqueue，訊息進入緩衝佇列，
// 由 writePump 在獨立 goroutine 寫出。
type Connection struct {
	session *Session
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub

	mu     sync.Mutex // 保護 closed 與 send 的關閉（投遞與關閉可能並發）
	closed bool
}

// NewHub 創建連線中心
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 允許任意來源的跨域連線
				return true
			},
		},
		connections: make(map[*Connection]struct{}),
	}
}

// ServeWS 處理 WebSocket 升級請求
//
// 每條連線產生一個全新的 Session（UUID 識別碼），之後的房間歸屬
// 全部由客戶端的 joinRoom 事件驅動 —— URL 上不攜帶任何狀態。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := &Connection{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  hub,
	}
	c.session = NewSession(hub.registry, c, hub.logger)

	if !hub.register(c) {
		// Hub 已停止，拒絕新連線
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	hub.logger.Info("WebSocket 連線建立", "session_id", c.session.ID)
}

// Enqueue 非阻塞投遞一則出站訊息
//
// 佇列滿時丟棄：狀態快照每幀重發，丟舊訊息不影響最終一致；
// 絕不能為了慢客戶端阻塞 Tick 循環或房間臨界區。
func (c *Connection) Enqueue(msg []byte) {
	if msg == nil {
		return
	}

	// 持有房間鎖之外的投遞可能與連線關閉並發，closed 旗標擋住
	// 向已關閉 channel 的寫入
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("連線緩衝區滿，丟棄訊息", "session_id", c.session.ID)
	}
}

// closeSend 關閉出站佇列（冪等）
func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// register 登記連線；Hub 已停止時返回 false
func (hub *Hub) register(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.closed {
		return false
	}
	hub.connections[c] = struct{}{}
	return true
}

// unregister 註銷連線
func (hub *Hub) unregister(c *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, ok := hub.connections[c]; ok {
		delete(hub.connections, c)
		c.closeSend()
	}
}

// Stop 關閉所有連線
func (hub *Hub) Stop() {
	hub.mu.Lock()
	hub.closed = true
	for c := range hub.connections {
		c.closeSend()
		c.conn.Close()
	}
	hub.connections = make(map[*Connection]struct{})
	hub.mu.Unlock()

	hub.logger.Info("WebSocket 連線中心已停止")
}

// readPump 讀取客戶端訊息並交給 Session 分派
//
// 讀取 goroutine 退出（斷線、超時、協議錯誤）即觸發離線轉換：
// Session.Disconnect 負責離座與空房銷毀。
func (c *Connection) readPump() {
	defer func() {
		c.session.Disconnect()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	// 讀取超時 60 秒，收到 Pong 即延長
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"session_id", c.session.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.session.HandleMessage(message)
		}
	}
}

// writePump 從 send 佇列寫出到連線，並定期發送 Ping
//
// 54 秒 Ping 間隔配合 readPump 的 60 秒超時：正常情況下每 54 秒
// 重置一次超時；對端失聯則 60 秒後讀取超時、連線回收。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了佇列，送出關閉幀後收工
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 順手清空佇列中已積壓的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
