package presence

import (
	"fmt"
	"strings"

	"greendrake/marketdesk/internal/utils"
)

// Event types on the push channel.
const (
	TypeJoin     = "join"  // client -> server
	TypeLeave    = "leave" // client -> server
	TypeMessage  = "message"
	TypePresence = "presence"
	TypeError    = "error"
)

// Event is one frame on the push channel in either direction.
type Event struct {
	Type    string      `json:"type"`
	Room    string      `json:"room,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

type PresencePayload struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
}

type ErrorPayload struct {
	Room  string `json:"room,omitempty"`
	Error string `json:"error"`
}

const threadRoomPrefix = "thread_"

// ThreadRoom names the room of a thread.
func ThreadRoom(threadID utils.SixID) string {
	return threadRoomPrefix + threadID.String()
}

// ParseThreadRoom extracts the thread id from a room name.
func ParseThreadRoom(room string) (utils.SixID, error) {
	raw, ok := strings.CutPrefix(room, threadRoomPrefix)
	if !ok {
		return utils.SixID{}, fmt.Errorf("unknown room %q", room)
	}
	return utils.ParseSixID(raw)
}
