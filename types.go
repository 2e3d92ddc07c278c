package glimesh

// State is the lifecycle state of a Client's connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateJoining
	StateReady
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateJoining:
		return "joining"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionMetadata is the result of Connect.
type ConnectionMetadata struct {
	Connected bool
	ReadOnly  bool
}

// User is the author of a chat message.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// ChatMessage is one message received on the joined channel.
type ChatMessage struct {
	User    User   `json:"user"`
	Message string `json:"message"`
}
