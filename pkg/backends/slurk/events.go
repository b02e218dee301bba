package slurk

// Event is one frame on the slurk event channel. Inbound frames are
// text_message, status and joined_room; the bridge sends text frames.
type Event struct {
	Type    string   `json:"type"`
	Room    int      `json:"room"`
	User    Identity `json:"user,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Identity names one connected user.
type Identity struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

const (
	EventTextMessage = "text_message"
	EventStatus      = "status"
	EventJoinedRoom  = "joined_room"
	EventText        = "text"
)
