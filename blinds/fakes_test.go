package blinds

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/user/motionblinds-ble/cipher"
	"github.com/user/motionblinds-ble/wire/codec"
	"github.com/user/motionblinds-ble/wire/gatt"
)

const (
	testNotifyHandle uint16 = 0x0003
	testCCCDHandle   uint16 = 0x0004
	testWriteHandle  uint16 = 0x0006
)

// sampleTime is 2024-06-07 09:05:30.234 with Weekday set explicitly to 3
var sampleTime = codec.Timestamp{
	Year: 2024, Month: 6, Day: 7, Weekday: 3,
	Hour: 9, Minute: 5, Second: 30, Millisecond: 234,
}

const (
	sampleSuffix  = "18060709051e00ea"
	sampleQuery   = "02C005" + sampleSuffix
	sampleUserKey = "02C001" + sampleSuffix
	sampleSetTime = "09A001" + "02" + "09" + "05" + "1e" + "18" + "06" + "07" + sampleSuffix
)

type write struct {
	handle uint16
	data   []byte
}

// fakeTransport records every call and completes nothing on its own
type fakeTransport struct {
	mu sync.Mutex

	connected     bool
	connectErr    error
	omitNotify    bool
	omitWrite     bool
	omitCCCD      bool
	writeNotifies bool

	connects    int
	disconnects int
	registered  []uint16
	descriptors []write
	mtuRequests []int
	writes      []write
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Characteristic(service, char uuid.UUID) (Characteristic, bool) {
	if service != ServiceUUID {
		return Characteristic{}, false
	}
	switch {
	case char == NotifyUUID && !f.omitNotify:
		return Characteristic{Handle: testNotifyHandle, Properties: gatt.PropNotify}, true
	case char == WriteUUID && !f.omitWrite:
		props := gatt.PropWrite
		if f.writeNotifies {
			props |= gatt.PropNotify
		}
		return Characteristic{Handle: testWriteHandle, Properties: props}, true
	}
	return Characteristic{}, false
}

func (f *fakeTransport) Descriptor(service, char, desc uuid.UUID) (uint16, bool) {
	if char == NotifyUUID && desc == CCCDUUID && !f.omitNotify && !f.omitCCCD {
		return testCCCDHandle, true
	}
	return 0, false
}

func (f *fakeTransport) RegisterForNotify(handle uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, handle)
	return nil
}

func (f *fakeTransport) WriteDescriptor(handle uint16, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptors = append(f.descriptors, write{handle, append([]byte(nil), value...)})
	return nil
}

func (f *fakeTransport) RequestMTU(mtu int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtuRequests = append(f.mtuRequests, mtu)
	return nil
}

func (f *fakeTransport) Write(handle uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{handle, append([]byte(nil), data...)})
	return nil
}

// rawWrites decodes the plain-cipher writes back to command strings
func (f *fakeTransport) rawWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, w := range f.writes {
		s, _ := cipher.Plain{}.Decrypt(w.data)
		out = append(out, s)
	}
	return out
}

// countingCipher is the plain cipher with call counters and failure switches
type countingCipher struct {
	cipher.Plain
	encrypts   int
	decrypts   int
	failEncode bool
}

var errCipher = errors.New("cipher broken")

func (c *countingCipher) Encrypt(raw string) ([]byte, error) {
	c.encrypts++
	if c.failEncode {
		return nil, errCipher
	}
	return c.Plain.Encrypt(raw)
}

func (c *countingCipher) Decrypt(data []byte) (string, error) {
	c.decrypts++
	return c.Plain.Decrypt(data)
}

type fakeDevice struct {
	notifications []string
	disconnects   int
}

func (d *fakeDevice) OnNotify(payload string) { d.notifications = append(d.notifications, payload) }
func (d *fakeDevice) OnDisconnected()         { d.disconnects++ }

// harness wires a handshake to fakes. Events are applied synchronously.
type harness struct {
	h         *Handshake
	transport *fakeTransport
	cipher    *countingCipher
	device    *fakeDevice
}

func newHarness(mutate func(*fakeTransport)) *harness {
	ft := &fakeTransport{}
	if mutate != nil {
		mutate(ft)
	}
	c := &countingCipher{}
	d := &fakeDevice{}
	opts := DefaultOptions("AA:BB:CC:DD:EE:FF")
	opts.StateTimeout = 0
	return &harness{
		h:         NewHandshake(ft, c, codec.FixedClock(sampleTime), d, nil, opts),
		transport: ft,
		cipher:    c,
		device:    d,
	}
}

func (hs *harness) send(events ...Event) {
	for _, ev := range events {
		hs.h.HandleEvent(ev)
	}
}

// notify delivers a plain-hex notification on handle
func (hs *harness) notify(handle uint16, payload string) {
	value, err := cipher.Plain{}.Encrypt(payload)
	if err != nil {
		panic(fmt.Sprintf("bad test payload %q: %v", payload, err))
	}
	hs.h.HandleEvent(Notification{Handle: handle, Value: value})
}

// toKeyAck drives the handshake up to AwaitingKeyAck
func (hs *harness) toKeyAck() {
	hs.send(ConnectRequested{}, Opened{}, SearchComplete{},
		NotifyRegistered{Handle: testNotifyHandle}, MTUConfigured{MTU: WantedMTU},
		WriteAck{Handle: testWriteHandle})
	hs.notify(testNotifyHandle, codec.NotifyPhoneUser)
}

func (hs *harness) toEstablished() {
	hs.toKeyAck()
	hs.send(WriteAck{Handle: testWriteHandle}, WriteAck{Handle: testWriteHandle})
}
