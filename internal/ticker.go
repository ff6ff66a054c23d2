package internal

import (
	"log/slog"
	"sync"
	"time"
)

// Ticker 全局物理調度器
//
// 系統設計考量：
//
//  1. 單一循環、多房間：
//     一個 goroutine 以固定頻率（預設 60 Hz）醒來，對註冊表快照中的
//     每個房間呼叫一次 Tick。非 running 的房間在 Tick 內部直接返回，
//     調度器不需要知道任何房間的階段。
//
//  2. 房間彼此獨立：
//     逐房 Tick 只競爭該房間自己的鎖，廣播是對緩衝佇列的非阻塞投遞，
//     一個房間的慢客戶端拖不住其他房間。跨房間沒有任何順序保證，
//     也不需要有。
//
//  3. 與網路事件的關係：
//     調度器與 Session 分派器是同一個房間鎖的兩類競爭者；
//     臨界區都很短（一幀物理或一次欄位更新），60 Hz 下綽綽有餘。
type Ticker struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewTicker 創建調度器（interval 通常取 Config.TickInterval()）
func NewTicker(registry *Registry, interval time.Duration, logger *slog.Logger) *Ticker {
	return &Ticker{
		registry: registry,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start 啟動調度循環
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.loop()
	t.logger.Info("物理調度器啟動", "interval", t.interval)
}

func (t *Ticker) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, room := range t.registry.Snapshot() {
				room.Tick()
			}
		case <-t.stopCh:
			return
		}
	}
}

// Stop 停止調度循環並等待當前一輪結束
func (t *Ticker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
	t.logger.Info("物理調度器已停止")
}
