package protocol

// Request bodies. Pointer fields tell a missing key apart from a zero value.

type JoinRequest struct {
	UserName *string `json:"userName"`
	MapID    *string `json:"mapId"`
}

type JoinResponse struct {
	AuthToken string `json:"authToken"`
	PlayerID  uint64 `json:"playerId"`
}

type ActionRequest struct {
	Move *string `json:"move"`
}

// TickRequest carries the elapsed game time in milliseconds.
type TickRequest struct {
	TimeDelta *int64 `json:"timeDelta"`
}

type MapSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PlayerInfo struct {
	Name string `json:"name" msgpack:"name"`
}

// PlayersResponse is keyed by dog id rendered as a decimal string.
type PlayersResponse map[string]PlayerInfo

// GameState is a session view shared by the REST state endpoint and
// websocket STATE frames. Keys are decimal ids.
type GameState struct {
	Players     map[string]DogState  `json:"players" msgpack:"players"`
	LostObjects map[string]LootState `json:"lostObjects" msgpack:"lostObjects"`
}

type DogState struct {
	Pos   [2]float64 `json:"pos" msgpack:"pos"`
	Speed [2]float64 `json:"speed" msgpack:"speed"`
	Dir   string     `json:"dir" msgpack:"dir"`
	Bag   []BagItem  `json:"bag" msgpack:"bag"`
	Score int        `json:"score" msgpack:"score"`
}

type BagItem struct {
	ID   uint64 `json:"id" msgpack:"id"`
	Type int    `json:"type" msgpack:"type"`
}

type LootState struct {
	Type int        `json:"type" msgpack:"type"`
	Pos  [2]float64 `json:"pos" msgpack:"pos"`
}

// RecordView is one leaderboard row; PlayTime is in seconds.
type RecordView struct {
	Name     string  `json:"name"`
	Score    int     `json:"score"`
	PlayTime float64 `json:"playTime"`
}
