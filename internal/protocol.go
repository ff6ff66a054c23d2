package internal

import "encoding/json"

// 客戶端 → 服務器事件
const (
	EventJoinRoom    = "joinRoom"
	EventPlayerReady = "playerReady"
	EventMovePaddle  = "movePaddle"
)

// 服務器 → 客戶端事件
const (
	EventJoinedRoom    = "joinedRoom"
	EventPlayersJoined = "playersJoined"
	EventReadyAck      = "playerReady"
	EventGameStart     = "gameStart"
	EventGameState     = "gameState"
	EventGameOver      = "gameOver"
)

// Envelope 入站訊息的外層封裝
//
// Data 延遲解析：先辨識事件名稱，再按事件各自的負載結構解碼。
// movePaddle 的負載是裸數字而非物件，RawMessage 兩種都能承接。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outEvent 出站訊息的外層封裝
type outEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// PlayerInfo 玩家識別資訊（對客戶端顯示用）
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// JoinRoomPayload joinRoom 事件負載
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// JoinedRoomPayload joinedRoom 回覆負載（僅發給加入者本人）
type JoinedRoomPayload struct {
	Players    []PlayerInfo `json:"players"`
	MyID       string       `json:"myId"`
	PointLimit int          `json:"pointLimit"`
}

// PlayersJoinedPayload playersJoined 廣播負載（第二位玩家入座時）
type PlayersJoinedPayload struct {
	Players []PlayerInfo `json:"players"`
}

// ReadyPayload playerReady 廣播負載
type ReadyPayload struct {
	ID string `json:"id"`
}

// GameStatePayload gameState 廣播負載（每個 Tick 一份快照）
type GameStatePayload struct {
	Ball    Ball    `json:"ball"`
	Paddles Paddles `json:"paddles"`
	Scores  Scores  `json:"scores"`
}

// GameOverPayload gameOver 廣播負載（單次，終局）
type GameOverPayload struct {
	Winner string `json:"winner"`
	Scores Scores `json:"scores"`
}

// marshalEvent 序列化一則出站事件
//
// 所有出站負載都是本套件定義的簡單結構，序列化不應失敗；
// 若真的失敗則返回 nil，發送端會直接略過。
func marshalEvent(event string, data any) []byte {
	b, err := json.Marshal(outEvent{Event: event, Data: data})
	if err != nil {
		return nil
	}
	return b
}
