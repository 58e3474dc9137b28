package blinds

import "fmt"

// State is a handshake state
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateAwaitingMTUAck
	StateAwaitingQueryAck
	StateAwaitingKeyAck
	StateAwaitingTimeAck
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDiscovering:
		return "Discovering"
	case StateAwaitingMTUAck:
		return "AwaitingMTUAck"
	case StateAwaitingQueryAck:
		return "AwaitingQueryAck"
	case StateAwaitingKeyAck:
		return "AwaitingKeyAck"
	case StateAwaitingTimeAck:
		return "AwaitingTimeAck"
	case StateEstablished:
		return "Established"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Awaiting reports whether s waits on the blind (MTU exchange or a write ack)
func (s State) Awaiting() bool {
	switch s {
	case StateAwaitingMTUAck, StateAwaitingQueryAck, StateAwaitingKeyAck, StateAwaitingTimeAck:
		return true
	}
	return false
}

// Connection is the per-session state owned by a Handshake. A fresh value is
// created on every connect.
type Connection struct {
	State        State
	NotifyHandle uint16 // 0 = unresolved
	WriteHandle  uint16 // 0 = unresolved
	MTUConfirmed bool
}

// StateChange is delivered to Watch subscribers
type StateChange struct {
	From  State
	To    State
	Cause EventKind
}
