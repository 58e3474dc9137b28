package blinds

// Manager is the public connect/disconnect entry point for a blind
type Manager struct {
	transport Transport
	sink      EventSink
}

func NewManager(t Transport, sink EventSink) *Manager {
	return &Manager{transport: t, sink: sink}
}

// Connect starts a session unless the link is already up. Calling it while a
// handshake is running has no effect. It reports whether a connect was
// requested.
func (m *Manager) Connect() bool {
	if m.transport.Connected() {
		return false
	}
	m.sink.Post(ConnectRequested{})
	return true
}

// Disconnect closes the link and returns the handshake to Idle
func (m *Manager) Disconnect() {
	m.sink.Post(DisconnectRequested{})
}
