package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	UserName        string            `json:"user_name"`
	MapID           string            `json:"map_id"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	// Msgpack asks for STATE frames as binary msgpack instead of JSON text.
	Msgpack  bool `json:"msgpack,omitempty"`
	MaxQueue int  `json:"max_queue,omitempty"`
}

// HelloAuth resumes an existing player instead of joining a new dog.
type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	PlayerID        uint64  `json:"player_id"`
	AuthToken       string  `json:"auth_token"`
	MapID           string  `json:"map_id"`
	MapsDigest      string  `json:"maps_digest"`
	DogSpeed        float64 `json:"dog_speed"`
	BagCapacity     int     `json:"bag_capacity"`
}

// STATE (server -> client), sent after every tick.
type StateMsg struct {
	Type            string    `json:"type" msgpack:"type"`
	ProtocolVersion string    `json:"protocol_version" msgpack:"protocol_version"`
	Tick            uint64    `json:"tick" msgpack:"tick"`
	MapID           string    `json:"map_id" msgpack:"map_id"`
	State           GameState `json:"state" msgpack:"state"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Move            string `json:"move"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
