package blinds

import (
	"github.com/google/uuid"

	"github.com/user/motionblinds-ble/wire/gatt"
)

// Characteristic is a resolved characteristic value handle and its properties
type Characteristic struct {
	Handle     uint16
	Properties gatt.Property
}

// Transport is the GATT client link to one blind. Methods start operations
// and return immediately; completions arrive as events on the EventSink the
// transport was built with.
type Transport interface {
	Connect() error
	Disconnect() error
	Connected() bool

	// Lookups are valid after SearchComplete
	Characteristic(service, char uuid.UUID) (Characteristic, bool)
	Descriptor(service, char, desc uuid.UUID) (uint16, bool)

	RegisterForNotify(handle uint16) error
	WriteDescriptor(handle uint16, value []byte) error
	RequestMTU(mtu int) error
	Write(handle uint16, data []byte) error
}

// Cipher turns raw hex commands into wire bytes and notifications back into
// hex strings
type Cipher interface {
	Encrypt(raw string) ([]byte, error)
	Decrypt(data []byte) (string, error)
}

// DeviceLogic receives everything the handshake does not consume
type DeviceLogic interface {
	OnNotify(payload string)
	OnDisconnected()
}

// EventSink accepts events for the handshake
type EventSink interface {
	Post(ev Event)
}

// EventHandler consumes events in order
type EventHandler interface {
	HandleEvent(ev Event)
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(ev Event)

// Post implements EventSink
func (f SinkFunc) Post(ev Event) { f(ev) }

// NopDevice ignores everything
type NopDevice struct{}

func (NopDevice) OnNotify(string) {}
func (NopDevice) OnDisconnected() {}
