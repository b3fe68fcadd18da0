package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Kinds published by the client. Subscribers filter by prefix, so
// "message." receives both message kinds.
const (
	KindRelayStatus     = "relay.status_changed"
	KindMessageSent     = "message.sent"
	KindMessageReceived = "message.received"
	KindInviteReceived  = "invite.received"
	KindInviteAccepted  = "invite.accepted"
	KindSyncCompleted   = "sync.completed"
	KindSyncFailed      = "sync.failed"
	KindGroupCreated    = "group.created"
	KindStateReset      = "state.reset"
)
