package internal

import (
	"math"
	"math/rand"
)

// 系統設計問題：
//   如何讓所有客戶端渲染出完全一致的球路，而不需要各自重新模擬？
//
// 核心挑戰：
//   1. 權威性：唯一的模擬來源在服務器，客戶端只渲染快照
//   2. 確定性：同樣的輸入必須推出同樣的下一幀（除了發球的隨機參數）
//   3. 可測試性：物理規則要能脫離網路與房間狀態單獨驗證
//
// 設計方案：
//   ✅ 純函數 - Step 只讀寫傳入的 World，不碰任何全局狀態
//   ✅ 注入亂數源 - 發球角度/方向由呼叫者提供的 *rand.Rand 決定，
//      測試用固定種子即可重現
//   ✅ 常數集中 - 場地與球拍幾何全部定義在此，客戶端用同一組數值

// 場地與球拍幾何（座標原點在左上角）
const (
	// ArenaWidth 場地寬度
	ArenaWidth = 700.0
	// ArenaHeight 場地高度
	ArenaHeight = 400.0

	// WallTop 上牆反彈線
	WallTop = 10.0
	// WallBottom 下牆反彈線
	WallBottom = 390.0

	// LeftPaddleFace 左拍擊球面（拍體橫跨 x∈[20,32]）
	LeftPaddleFace = 32.0
	// RightPaddleFace 右拍擊球面（拍體橫跨 x∈[668,680]）
	RightPaddleFace = 668.0

	// PaddleHeight 球拍高度
	PaddleHeight = 80.0
	// PaddleTravel 球拍縱向位移上限（ArenaHeight - PaddleHeight）
	PaddleTravel = 320.0

	// BallBaseSpeed 發球基準速度（橫向與縱向共用同一常數）
	BallBaseSpeed = 5.0
	// VolleySpeedUp 每次擊拍的加速倍率（逐回合累乘，刻意不設上限）
	VolleySpeedUp = 1.05

	// ServeX, ServeY 發球點（場地中心）
	ServeX = 350.0
	ServeY = 200.0

	// MaxServeAngle 發球角度上限（相對水平線 ±π/8）
	MaxServeAngle = math.Pi / 8
)

// Ball 球的位置與速度
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// Paddles 左右球拍的縱向位移
type Paddles struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Scores 左右比分（到局終前單調遞增）
type Scores struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// World 一個房間的完整物理狀態
type World struct {
	Ball    Ball
	Paddles Paddles
	Scores  Scores
}

// Side 球桌的一側
type Side string

const (
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// StepResult 單幀推進的結果
type StepResult struct {
	Scored Side // 本幀得分的一方（SideNone 表示沒有得分）
	Winner Side // 本幀達到分數上限的一方（SideNone 表示比賽繼續）
}

// NewWorld 創建初始物理狀態：球置中靜止，球拍居中
func NewWorld() World {
	return World{
		Ball:    Ball{X: ServeX, Y: ServeY},
		Paddles: Paddles{Left: 160, Right: 160},
	}
}

// Serve 發球：球回到場地中心，以隨機角度與隨機左右方向射出
//
// 角度均勻分佈在 [-π/8, π/8]，方向 50/50。橫縱速度分量使用同一個
// BallBaseSpeed，確保球速大小與角度無關。
func Serve(b *Ball, rng *rand.Rand) {
	b.X, b.Y = ServeX, ServeY

	angle := rng.Float64()*2*MaxServeAngle - MaxServeAngle
	dir := -1.0
	if rng.Float64() < 0.5 {
		dir = 1.0
	}
	b.VX = BallBaseSpeed * dir * math.Cos(angle)
	b.VY = BallBaseSpeed * math.Sin(angle)
}

// ClampPaddle 將球拍位移裁剪到 [0, PaddleTravel]
func ClampPaddle(y float64) float64 {
	if y < 0 {
		return 0
	}
	if y > PaddleTravel {
		return PaddleTravel
	}
	return y
}

// Step 推進一個物理幀
//
// 幀內順序固定：位移 → 撞牆 → 擊拍 → 得分判定 → 勝負判定。
// 除了得分後的重新發球會消耗 rng，其餘運算完全確定。
//
// 規則細節：
//   - 撞牆只翻轉 vy 的符號，不改變速度大小
//   - 擊拍判定是閉區間：球心 y 恰好等於拍頂或拍底都算命中
//   - 擊拍翻轉 vx 並將其大小乘上 VolleySpeedUp
//   - 單幀最多一方得分（球不可能同幀同時越過左右邊界）
//   - 勝負以「發球前」已更新的比分判定，首先達標者獲勝
func Step(w *World, pointLimit int, rng *rand.Rand) StepResult {
	b := &w.Ball

	// 位移
	b.X += b.VX
	b.Y += b.VY

	// 上下牆反彈
	if b.Y <= WallTop || b.Y >= WallBottom {
		b.VY = -b.VY
	}

	// 擊拍判定（閉區間）
	hitLeft := b.X <= LeftPaddleFace &&
		b.Y >= w.Paddles.Left && b.Y <= w.Paddles.Left+PaddleHeight
	hitRight := b.X >= RightPaddleFace &&
		b.Y >= w.Paddles.Right && b.Y <= w.Paddles.Right+PaddleHeight
	if hitLeft || hitRight {
		b.VX = -b.VX * VolleySpeedUp
	}

	// 得分：出左界右方得分，出右界左方得分，並重新發球
	var res StepResult
	if b.X < 0 {
		w.Scores.Right++
		res.Scored = SideRight
		Serve(b, rng)
	}
	if b.X > ArenaWidth {
		w.Scores.Left++
		res.Scored = SideLeft
		Serve(b, rng)
	}

	// 勝負判定（使用已更新的比分）
	if res.Scored != SideNone {
		if w.Scores.Left >= pointLimit {
			res.Winner = SideLeft
		} else if w.Scores.Right >= pointLimit {
			res.Winner = SideRight
		}
	}

	return res
}
