package internal

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Registry 房間註冊表
//
// 系統設計考量：
//
//  1. 鎖的範圍（與房間鎖嚴格分離）：
//     註冊表鎖只保護 roomID → Room 的映射本身（查找、插入、刪除），
//     絕不跨越任何房間的臨界區。先拿註冊表鎖取得 *Room、放掉，
//     再進房間操作 —— 兩把鎖永不巢狀，不存在鎖序死鎖。
//
//  2. 生命週期嚴格綁定人數：
//     首次 joinRoom 建房（create-on-first-join），最後一位斷線即銷毀
//     （destroy-on-empty）。因為銷毀是結構性的，不需要另外的閒置
//     掃描回收。
//
//  3. 清空與加入的競態：
//     房間在自己的鎖內先標記 closed，註冊表才移除映射。拿到舊指標的
//     加入者會收到 ErrRoomClosed，重新走一次 GetOrCreate 即可。
//     Remove 以指標比對防止誤刪同名新房間。
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	cfg    *Config
	logger *slog.Logger
}

// NewRegistry 創建房間註冊表
func NewRegistry(cfg *Config, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		logger: logger,
	}
}

// GetOrCreate 查找房間，不存在則創建
//
// 雙重檢查：先讀鎖快路徑，未命中再升級寫鎖並重查，
// 避免兩個同時加入的玩家各建一個同名房間。
func (reg *Registry) GetOrCreate(roomID string) *Room {
	reg.mu.RLock()
	room, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if ok {
		return room
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[roomID]; ok {
		return room
	}

	room = NewRoom(
		roomID,
		reg.cfg.PointLimit,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		reg.logger,
	)
	reg.rooms[roomID] = room
	reg.logger.Info("房間已創建", "room_id", roomID)
	return room
}

// Get 查找房間
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	return room, ok
}

// Remove 移除房間映射
//
// 指標比對：只有映射中的那個實例與呼叫者手上的一致才刪除，
// 防止「舊房間清空、同名新房間已建立」時誤刪新房間。
func (reg *Registry) Remove(roomID string, room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if current, ok := reg.rooms[roomID]; ok && current == room {
		delete(reg.rooms, roomID)
		reg.logger.Info("房間已清空，銷毀", "room_id", roomID)
	}
}

// Snapshot 當前所有房間的切片（供 Tick 調度器迭代）
//
// 只在註冊表鎖內複製指標切片，迭代與逐房操作都在鎖外進行，
// 某個房間的慢 Tick 不會卡住註冊表。
func (reg *Registry) Snapshot() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Count 當前房間數
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// ScheduleServe 排程倒數到期的發球任務
//
// 一次性定時任務只攜帶房間識別碼，不攜帶指標：到期時重新經由
// 註冊表查找，房間已銷毀就什麼都不做；仍存在則由
// Room.ServeAfterCountdown 在自己的鎖內重新驗證階段與人數。
// 倒數期間不佔用任何鎖，也沒有顯式取消 —— 過期觸發天然無害。
func (reg *Registry) ScheduleServe(roomID string) {
	time.AfterFunc(reg.cfg.Countdown(), func() {
		room, ok := reg.Get(roomID)
		if !ok {
			reg.logger.Debug("倒數到期但房間已銷毀", "room_id", roomID)
			return
		}
		room.ServeAfterCountdown()
	})
}

// List 房間摘要列表（大廳展示用）
func (reg *Registry) List() []map[string]any {
	rooms := reg.Snapshot()

	result := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, room.State())
	}
	return result
}

// Stats 聚合統計
func (reg *Registry) Stats() map[string]any {
	rooms := reg.Snapshot()

	byPhase := make(map[Phase]int)
	totalPlayers := 0
	for _, room := range rooms {
		room.Mu.Lock()
		byPhase[room.Phase]++
		totalPlayers += room.occupancyLocked()
		room.Mu.Unlock()
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"by_phase":      byPhase,
	}
}
