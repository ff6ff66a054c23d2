// Package realtimepong 實現了一個服務器權威的雙人彈球對戰主機。
//
// 服務器擁有全部對戰狀態：房間生命週期、玩家配對、準備/倒數握手、
// 固定頻率的物理模擬與狀態廣播。客戶端只負責渲染快照與上報輸入，
// 不做任何獨立模擬。
//
// 房間生命週期
//
// 房間在第一個 joinRoom 時創建，最後一位玩家斷線時銷毀：
//   - waiting：等待湊滿兩人並完成準備握手
//   - countdown：雙方就緒後固定 3 秒倒數，到期發球
//   - running：60 Hz 推進物理並廣播 gameState
//   - game_over：任一方達到分數上限，終局
//
// 並發模型
//
// 兩類寫入者並發觸碰同一個房間：每則入站訊息驅動的 Session 分派器，
// 以及獨立定時觸發的全局 Tick 調度器。一致性策略：
//   - 房間是互斥單位：每個 Room 自帶鎖，不同房間互不阻塞
//   - 讀-改-寫序列都是原子臨界區，不會觀察到撕裂的中間狀態
//   - 廣播鎖內組裝、鎖外投遞到各連線的緩衝佇列，持鎖期間無網路 I/O
//   - 倒數發球是一次性排程任務，到期時重新驗證房間仍存在且仍在倒數
//
// 物理引擎
//
// 純函數推進：位移、撞牆反彈、擊拍加速（每回合 ×1.05）、得分與發球。
// 亂數源由外部注入，固定種子下整條球路可重現。
//
// 外部介面
//
// WebSocket（/ws）承載全部遊戲事件：
//   - 入站：joinRoom、playerReady、movePaddle
//   - 出站：joinedRoom、playersJoined、playerReady、gameStart、
//     gameState、gameOver
//
// HTTP 提供唯讀視圖：/api/v1/rooms 大廳列表、/health、/stats。
//
// 啟動服務器：
//
//	go run ./cmd/server -addr :4000 -log-level debug
package realtimepong
