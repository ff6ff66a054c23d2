package internal

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
)

// 系統設計問題：
//   如何在網路事件（加入、準備、移動、斷線）與固定頻率的 Tick 循環
//   同時改動同一個房間時，保持狀態一致？
//
// 核心挑戰：
//   1. 兩類並發寫入者：Session 分派器（每則入站訊息）與 Tick 調度器（每幀）
//   2. 原子性：任何讀-改-寫序列都不能被撕裂（例如移拍不能插在物理幀中間）
//   3. 廣播不持鎖：發送到慢客戶端絕不能拖住房間的臨界區
//   4. 定時轉換：倒數到期的發球動作不能在延遲期間佔用鎖
//
// 設計方案：
//   ✅ 房間即互斥單位 - 每個 Room 自帶 Mutex，不同房間互不阻塞
//   ✅ 鎖內組裝、鎖外投遞 - 廣播訊息在臨界區內序列化，解鎖後才丟進
//      各連線的緩衝佇列（非阻塞）
//   ✅ 一次性定時任務 - 倒數由 time.AfterFunc 排程，到期時重新驗證
//      房間仍存在且仍在倒數階段，否則視為 no-op

// Phase 房間生命週期階段
//
// 有限狀態機：
//
//	waiting → countdown → running → game_over
//
// 轉換規則：
//   - waiting → countdown：兩位入座玩家都發出 playerReady
//   - countdown → running：倒數到期且房間仍坐滿兩人（發球）
//   - running → game_over：任一方比分達到 PointLimit（終局）
//   - 斷線在任何階段都合法：移除離開者；房間清空即銷毀，
//     留下的一方停在原階段（刻意不做自動判負）
type Phase string

const (
	PhaseWaiting   Phase = "waiting"   // 等待湊滿兩人並完成準備握手
	PhaseCountdown Phase = "countdown" // 雙方就緒，倒數發球中
	PhaseRunning   Phase = "running"   // 對戰進行中，Tick 循環推進物理
	PhaseGameOver  Phase = "game_over" // 本局終局，不再推進物理
)

// MaxSeats 一個房間最多兩個座位
const MaxSeats = 2

// ErrRoomClosed 房間已因清空而關閉（呼叫者應重新向 Registry 取房間）
var ErrRoomClosed = errors.New("房間已關閉")

// ErrRoomFull 房間已坐滿且來者不是已入座玩家
var ErrRoomFull = errors.New("房間已滿")

// ErrNotSeated 操作者不在座位上
var ErrNotSeated = errors.New("玩家不在座位上")

// Outbound 一條連線的出站佇列
//
// Enqueue 必須是非阻塞的「射後不理」投遞：房間在解鎖後呼叫它，
// 佇列滿時由實作自行丟棄，絕不能等待網路 I/O。
type Outbound interface {
	Enqueue(msg []byte)
}

// Room 一場對戰的全部狀態
//
// 並發紀律：
//   - 所有欄位由 Mu 保護；方法自行取鎖，測試直接讀欄位時需先 Lock
//   - 座位順序決定左右：Seats[0] 是左拍，Seats[1] 是右拍；
//     空位以空字串表示，離座只清空該格、不壓縮，
//     倖存玩家的左右歸屬因此永不改變
//   - closed 一旦為 true 即不再接受任何操作（Registry 隨後移除映射）
type Room struct {
	ID string

	Mu        sync.Mutex
	Seats     [MaxSeats]string    // 座位 → 連線識別碼（空字串 = 空位）
	Usernames map[string]string   // 連線識別碼 → 顯示名稱
	Ready     map[string]struct{} // 已發出準備訊號的玩家（Seats 的子集）
	Phase     Phase
	World     World
	Limit     int    // 獲勝所需分數，建房時定死
	WinnerID  string // 終局時得勝座位的連線識別碼

	outputs map[string]Outbound
	rng     *rand.Rand
	closed  bool
	logger  *slog.Logger
}

// NewRoom 創建房間
//
// rng 由呼叫者注入：Registry 以時間種子創建，測試用固定種子重現發球。
func NewRoom(id string, pointLimit int, rng *rand.Rand, logger *slog.Logger) *Room {
	return &Room{
		ID:        id,
		Usernames: make(map[string]string),
		Ready:     make(map[string]struct{}),
		Phase:     PhaseWaiting,
		World:     NewWorld(),
		Limit:     pointLimit,
		outputs:   make(map[string]Outbound),
		rng:       rng,
		logger:    logger,
	}
}

// delivery 一批等待投遞的出站訊息（在臨界區內組裝，解鎖後投遞）
type delivery struct {
	targets []Outbound
	msg     []byte
}

func (d delivery) flush() {
	if d.msg == nil {
		return
	}
	for _, t := range d.targets {
		if t != nil {
			t.Enqueue(d.msg)
		}
	}
}

func flushAll(ds []delivery) {
	for _, d := range ds {
		d.flush()
	}
}

// Join 入座或重附著
//
// 語義（冪等的 create-or-attach）：
//   - 已入座的識別碼重複加入：更新名稱與出站佇列，重發房間快照
//   - 有空位：取最前面的空位（先到者為左，後到者為右）
//   - 坐滿且來者陌生：返回 ErrRoomFull，狀態完全不變（fail-soft，
//     由呼叫者決定只記 debug 日誌）
//
// 第二位玩家入座時向全房間廣播 playersJoined。
func (r *Room) Join(sessionID, username string, out Outbound) error {
	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return ErrRoomClosed
	}

	seat := r.seatIndexLocked(sessionID)
	if seat < 0 {
		seat = r.vacantSeatLocked()
		if seat < 0 {
			r.Mu.Unlock()
			return ErrRoomFull
		}
		r.Seats[seat] = sessionID
	}
	r.Usernames[sessionID] = username
	r.outputs[sessionID] = out

	ds := []delivery{{
		targets: []Outbound{out},
		msg: marshalEvent(EventJoinedRoom, JoinedRoomPayload{
			Players:    r.playerListLocked(),
			MyID:       sessionID,
			PointLimit: r.Limit,
		}),
	}}
	if r.occupancyLocked() == MaxSeats {
		ds = append(ds, r.broadcastLocked(EventPlayersJoined, PlayersJoinedPayload{
			Players: r.playerListLocked(),
		}))
	}
	r.Mu.Unlock()

	flushAll(ds)
	return nil
}

// MarkReady 記錄準備訊號
//
// 未入座者的訊號直接丟棄。每次有效訊號都廣播 playerReady{id}；
// 當兩位入座玩家都就緒且房間仍在 waiting，廣播 gameStart、
// 轉入 countdown，並返回 started=true —— 由呼叫者排程倒數到期的
// 發球任務（房間自身不持有定時器，見 Registry.ScheduleServe）。
func (r *Room) MarkReady(sessionID string) (started bool) {
	r.Mu.Lock()
	if r.closed || r.seatIndexLocked(sessionID) < 0 {
		r.Mu.Unlock()
		return false
	}

	r.Ready[sessionID] = struct{}{}
	ds := []delivery{r.broadcastLocked(EventReadyAck, ReadyPayload{ID: sessionID})}

	if r.Phase == PhaseWaiting && r.occupancyLocked() == MaxSeats && r.allReadyLocked() {
		r.Phase = PhaseCountdown
		started = true
		ds = append(ds, r.broadcastLocked(EventGameStart, nil))
	}
	r.Mu.Unlock()

	flushAll(ds)
	return started
}

// ServeAfterCountdown 倒數到期的一次性動作
//
// 到期時重新驗證前置條件：房間未關閉、仍在 countdown、仍坐滿兩人。
// 任何一項不成立（倒數期間有人斷線）就是 no-op —— 定時器不做顯式
// 取消，過期觸發由這裡兜底。
func (r *Room) ServeAfterCountdown() {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.closed || r.Phase != PhaseCountdown || r.occupancyLocked() != MaxSeats {
		r.logger.Debug("倒數到期但前置條件已失效，跳過發球",
			"room_id", r.ID,
			"phase", r.Phase,
			"occupancy", r.occupancyLocked())
		return
	}

	Serve(&r.World.Ball, r.rng)
	r.Phase = PhaseRunning
}

// MovePaddle 立即套用球拍位移
//
// 不等下一個 Tick：裁剪到合法區間後直接寫入，下一次 gameState
// 廣播自然帶出新位置（沒有獨立的回覆訊息）。倒數期間也接受移動，
// 讓玩家能提前站位。未入座者的輸入丟棄。
func (r *Room) MovePaddle(sessionID string, y float64) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	seat := r.seatIndexLocked(sessionID)
	if r.closed || seat < 0 {
		return ErrNotSeated
	}

	y = ClampPaddle(y)
	if seat == 0 {
		r.World.Paddles.Left = y
	} else {
		r.World.Paddles.Right = y
	}
	return nil
}

// Leave 離座（任何階段都合法）
//
// 清除該玩家在 Seats/Ready/Usernames 的痕跡；座位只清空不壓縮，
// 另一方的左右歸屬不受影響。房間清空時標記 closed 並返回 true，
// 呼叫者應接著從 Registry 移除映射。留下的一方停在當前階段。
func (r *Room) Leave(sessionID string) (empty bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	seat := r.seatIndexLocked(sessionID)
	if seat >= 0 {
		r.Seats[seat] = ""
	}
	delete(r.Ready, sessionID)
	delete(r.Usernames, sessionID)
	delete(r.outputs, sessionID)

	if r.occupancyLocked() == 0 {
		r.closed = true
		return true
	}
	return false
}

// Tick 推進一個物理幀並廣播結果
//
// 只在 running 階段生效，其餘階段直接返回（調度器不需要分辨）。
// 得勝的一幀記錄勝者、轉入 game_over 並廣播 gameOver；
// 其餘每幀廣播 gameState 快照。廣播在解鎖後投遞。
func (r *Room) Tick() {
	r.Mu.Lock()
	if r.closed || r.Phase != PhaseRunning {
		r.Mu.Unlock()
		return
	}

	res := Step(&r.World, r.Limit, r.rng)

	var d delivery
	if res.Winner != SideNone {
		r.Phase = PhaseGameOver
		r.WinnerID = r.seatIDLocked(res.Winner)
		d = r.broadcastLocked(EventGameOver, GameOverPayload{
			Winner: r.WinnerID,
			Scores: r.World.Scores,
		})
	} else {
		d = r.broadcastLocked(EventGameState, GameStatePayload{
			Ball:    r.World.Ball,
			Paddles: r.World.Paddles,
			Scores:  r.World.Scores,
		})
	}
	r.Mu.Unlock()

	d.flush()
}

// Occupancy 當前入座人數
func (r *Room) Occupancy() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.occupancyLocked()
}

// Players 座位順序的玩家列表
func (r *Room) Players() []PlayerInfo {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.playerListLocked()
}

// State 房間摘要（供讀取型 API 序列化）
func (r *Room) State() map[string]any {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	return map[string]any{
		"room_id": r.ID,
		"phase":   r.Phase,
		"players": r.playerListLocked(),
		"scores":  r.World.Scores,
		"limit":   r.Limit,
		"winner":  r.WinnerID,
	}
}

// seatIndexLocked 返回識別碼所在座位，不在座返回 -1
func (r *Room) seatIndexLocked(sessionID string) int {
	for i, id := range r.Seats {
		if id != "" && id == sessionID {
			return i
		}
	}
	return -1
}

// vacantSeatLocked 返回最前面的空位，坐滿返回 -1
func (r *Room) vacantSeatLocked() int {
	for i, id := range r.Seats {
		if id == "" {
			return i
		}
	}
	return -1
}

func (r *Room) occupancyLocked() int {
	n := 0
	for _, id := range r.Seats {
		if id != "" {
			n++
		}
	}
	return n
}

func (r *Room) allReadyLocked() bool {
	for _, id := range r.Seats {
		if id == "" {
			return false
		}
		if _, ok := r.Ready[id]; !ok {
			return false
		}
	}
	return true
}

// seatIDLocked 返回某一側座位上的連線識別碼
func (r *Room) seatIDLocked(side Side) string {
	switch side {
	case SideLeft:
		return r.Seats[0]
	case SideRight:
		return r.Seats[1]
	}
	return ""
}

func (r *Room) playerListLocked() []PlayerInfo {
	players := make([]PlayerInfo, 0, MaxSeats)
	for _, id := range r.Seats {
		if id == "" {
			continue
		}
		players = append(players, PlayerInfo{ID: id, Username: r.Usernames[id]})
	}
	return players
}

// broadcastLocked 在臨界區內組裝一則全房間廣播（解鎖後由呼叫者投遞）
func (r *Room) broadcastLocked(event string, data any) delivery {
	targets := make([]Outbound, 0, len(r.outputs))
	for _, out := range r.outputs {
		targets = append(targets, out)
	}
	return delivery{targets: targets, msg: marshalEvent(event, data)}
}
