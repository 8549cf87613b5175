package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter on the prefix before the dot.
const (
	PushConnected   = "push.connected"
	PushNewMessage  = "push.new_message"
	PushTyping      = "push.typing_update"
	PushMessageRead = "push.message_read"

	TransportStatusChanged = "transport.status_changed"

	StateChats      = "state.chats"
	StateMessages   = "state.messages"
	StateTyping     = "state.typing"
	StateFriends    = "state.friends"
	StateGroups     = "state.groups"
	StateSelection  = "state.selection"
	StateConnection = "state.connection"
	StateRead       = "state.read"

	OutboundSendAck    = "outbound.send_ack"
	OutboundSendFailed = "outbound.send_failed"
)

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
