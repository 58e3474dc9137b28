package blinds

import "fmt"

// EventKind tags the concrete type of an Event
type EventKind int

const (
	KindConnectRequested EventKind = iota
	KindDisconnectRequested
	KindOpened
	KindSearchComplete
	KindNotifyRegistered
	KindMTUConfigured
	KindWriteAck
	KindNotification
	KindDisconnected
	KindDeadlineExpired
)

func (k EventKind) String() string {
	switch k {
	case KindConnectRequested:
		return "ConnectRequested"
	case KindDisconnectRequested:
		return "DisconnectRequested"
	case KindOpened:
		return "Opened"
	case KindSearchComplete:
		return "SearchComplete"
	case KindNotifyRegistered:
		return "NotifyRegistered"
	case KindMTUConfigured:
		return "MTUConfigured"
	case KindWriteAck:
		return "WriteAck"
	case KindNotification:
		return "Notification"
	case KindDisconnected:
		return "Disconnected"
	case KindDeadlineExpired:
		return "DeadlineExpired"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is anything the handshake reacts to. Transports, timers and the
// manager post events; only the dispatcher goroutine handles them.
type Event interface {
	Kind() EventKind
	String() string
}

// ConnectRequested asks for a new session
type ConnectRequested struct{}

// DisconnectRequested asks to tear the session down
type DisconnectRequested struct{}

// Opened reports the link is up; discovery follows
type Opened struct{}

// SearchComplete reports that service discovery finished
type SearchComplete struct{}

// NotifyRegistered reports the outcome of a notification registration
type NotifyRegistered struct {
	Handle uint16
	Err    error
}

// MTUConfigured reports the negotiated MTU
type MTUConfigured struct {
	MTU int
	Err error
}

// WriteAck reports the outcome of a characteristic write
type WriteAck struct {
	Handle uint16
	Err    error
}

// Notification carries a value notified by the blind (still encrypted)
type Notification struct {
	Handle uint16
	Value  []byte
}

// Disconnected reports that the link dropped
type Disconnected struct {
	Reason string
}

// DeadlineExpired is posted by the watchdog timer armed on entry to State
type DeadlineExpired struct {
	State      State
	Generation uint64
}

func (ConnectRequested) Kind() EventKind    { return KindConnectRequested }
func (DisconnectRequested) Kind() EventKind { return KindDisconnectRequested }
func (Opened) Kind() EventKind              { return KindOpened }
func (SearchComplete) Kind() EventKind      { return KindSearchComplete }
func (NotifyRegistered) Kind() EventKind    { return KindNotifyRegistered }
func (MTUConfigured) Kind() EventKind       { return KindMTUConfigured }
func (WriteAck) Kind() EventKind            { return KindWriteAck }
func (Notification) Kind() EventKind        { return KindNotification }
func (Disconnected) Kind() EventKind        { return KindDisconnected }
func (DeadlineExpired) Kind() EventKind     { return KindDeadlineExpired }

func (e ConnectRequested) String() string    { return e.Kind().String() }
func (e DisconnectRequested) String() string { return e.Kind().String() }
func (e Opened) String() string              { return e.Kind().String() }
func (e SearchComplete) String() string      { return e.Kind().String() }

func (e NotifyRegistered) String() string {
	if e.Err != nil {
		return fmt.Sprintf("NotifyRegistered(0x%04X, %v)", e.Handle, e.Err)
	}
	return fmt.Sprintf("NotifyRegistered(0x%04X)", e.Handle)
}

func (e MTUConfigured) String() string {
	if e.Err != nil {
		return fmt.Sprintf("MTUConfigured(%d, %v)", e.MTU, e.Err)
	}
	return fmt.Sprintf("MTUConfigured(%d)", e.MTU)
}

func (e WriteAck) String() string {
	if e.Err != nil {
		return fmt.Sprintf("WriteAck(0x%04X, %v)", e.Handle, e.Err)
	}
	return fmt.Sprintf("WriteAck(0x%04X)", e.Handle)
}

func (e Notification) String() string {
	return fmt.Sprintf("Notification(0x%04X, %d bytes)", e.Handle, len(e.Value))
}

func (e Disconnected) String() string {
	return fmt.Sprintf("Disconnected(%s)", e.Reason)
}

func (e DeadlineExpired) String() string {
	return fmt.Sprintf("DeadlineExpired(%s, #%d)", e.State, e.Generation)
}
