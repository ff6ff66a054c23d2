package internal

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Session 單一連線的事件分派器
//
// 本身幾乎無狀態：只持有自己的連線識別碼與加入後的房間識別碼，
// 所有遊戲狀態都在 Room 裡。識別碼用 UUID 在連線建立時產生一次，
// 永不重用 —— 不依賴底層連線物件的任何隱含身份。
//
// 並發模型：HandleMessage 與 Disconnect 只會從這條連線的讀取
// goroutine 呼叫（傳輸層保證每連線訊息有序），roomID 因此不需要鎖。
//
// 錯誤處理走 fail-soft：客戶端不可信且盡力而為，非法狀態下的事件
// （未入座就移拍、加入已滿的房間、格式錯誤的負載）一律丟棄，
// 只記 debug 日誌，不回錯誤、不改狀態。
type Session struct {
	ID string

	registry *Registry
	out      Outbound
	logger   *slog.Logger

	roomID string // 加入房間後才有值
}

// NewSession 為一條新連線創建分派器
func NewSession(registry *Registry, out Outbound, logger *slog.Logger) *Session {
	return &Session{
		ID:       uuid.NewString(),
		registry: registry,
		out:      out,
		logger:   logger,
	}
}

// HandleMessage 分派一則入站訊息
func (s *Session) HandleMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Debug("無法解析客戶端訊息", "session_id", s.ID, "error", err)
		return
	}

	switch env.Event {
	case EventJoinRoom:
		s.handleJoin(env.Data)
	case EventPlayerReady:
		s.handleReady()
	case EventMovePaddle:
		s.handleMove(env.Data)
	default:
		s.logger.Debug("收到未知事件", "session_id", s.ID, "event", env.Event)
	}
}

// handleJoin 處理 joinRoom
//
// 對 Registry 做 create-or-attach。拿到的房間可能恰好在這一刻被
// 最後一位斷線者清空（ErrRoomClosed），此時重試一次 GetOrCreate
// 會得到全新的房間；連續失敗兩次只可能是程式錯誤，放棄並記日誌。
func (s *Session) handleJoin(data json.RawMessage) {
	var p JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		s.logger.Debug("joinRoom 負載無效", "session_id", s.ID, "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		room := s.registry.GetOrCreate(p.RoomID)
		err := room.Join(s.ID, p.Username, s.out)
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		if err != nil {
			// 房間已滿：依設計靜默忽略，不回覆、不改狀態
			s.logger.Debug("joinRoom 被忽略",
				"session_id", s.ID,
				"room_id", p.RoomID,
				"reason", err)
			return
		}

		s.roomID = p.RoomID
		s.logger.Info("玩家加入房間",
			"session_id", s.ID,
			"room_id", p.RoomID,
			"username", p.Username)
		return
	}

	s.logger.Warn("joinRoom 重試後仍失敗", "session_id", s.ID, "room_id", p.RoomID)
}

// handleReady 處理 playerReady
//
// 握手完成（雙方都就緒）時房間已廣播 gameStart 並轉入倒數，
// 這裡負責排程倒數到期的發球任務。
func (s *Session) handleReady() {
	room, ok := s.currentRoom()
	if !ok {
		s.logger.Debug("尚未加入房間的 playerReady，丟棄", "session_id", s.ID)
		return
	}

	if room.MarkReady(s.ID) {
		s.registry.ScheduleServe(s.roomID)
		s.logger.Info("雙方就緒，開始倒數", "room_id", s.roomID)
	}
}

// handleMove 處理 movePaddle（負載是裸數字：絕對 y 位移）
func (s *Session) handleMove(data json.RawMessage) {
	room, ok := s.currentRoom()
	if !ok {
		return
	}

	var y float64
	if err := json.Unmarshal(data, &y); err != nil {
		s.logger.Debug("movePaddle 負載無效", "session_id", s.ID, "error", err)
		return
	}

	// 未入座者的輸入同樣靜默丟棄
	_ = room.MovePaddle(s.ID, y)
}

// Disconnect 處理連線終止（傳輸層讀取 goroutine 退出時呼叫）
//
// 從房間離座；房間因此清空時將其從註冊表移除（destroy-on-empty）。
func (s *Session) Disconnect() {
	room, ok := s.currentRoom()
	if !ok {
		return
	}

	if room.Leave(s.ID) {
		s.registry.Remove(s.roomID, room)
	}
	s.logger.Info("玩家離線", "session_id", s.ID, "room_id", s.roomID)
	s.roomID = ""
}

// currentRoom 取得目前所在的房間
func (s *Session) currentRoom() (*Room, bool) {
	if s.roomID == "" {
		return nil, false
	}
	return s.registry.Get(s.roomID)
}
