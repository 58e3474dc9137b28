// Package blegatt connects the handshake to a real blind through the host
// Bluetooth controller.
package blegatt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/google/uuid"

	"github.com/user/motionblinds-ble/blinds"
	"github.com/user/motionblinds-ble/logger"
	"github.com/user/motionblinds-ble/wire/gatt"
)

// ErrLinkClosing is returned by Connect while the previous link is still
// being torn down
var ErrLinkClosing = errors.New("blegatt: previous link still closing")

// Dialer opens a GATT client to the first advertiser accepted by the filter
type Dialer func(ctx context.Context, f ble.AdvFilter) (ble.Client, error)

// Options configures a Transport
type Options struct {
	Address        string        // MAC of the blind
	ConnectTimeout time.Duration // scan + connect, default 30s
	WriteNoRsp     bool          // write without response
	Dial           Dialer        // default ble.Connect on the default device
}

// link is one connected client and the worker that serialises its requests
type link struct {
	client  ble.Client
	profile *ble.Profile
	chars   map[uint16]*ble.Characteristic // by value handle
	descs   map[uint16]*ble.Descriptor
	ops     chan func()
	done    chan struct{}
	closing bool // CancelConnection issued, guarded by Transport.mu
}

// Transport implements blinds.Transport on github.com/go-ble/ble.
// GATT requests run one at a time on a worker goroutine per connection and
// report back through the event sink.
type Transport struct {
	sink   blinds.EventSink
	opts   Options
	prefix string

	mu         sync.Mutex
	link       *link
	connecting bool
	cancel     context.CancelFunc
}

func New(sink blinds.EventSink, opts Options) *Transport {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = ble.Connect
	}
	return &Transport{
		sink:   sink,
		opts:   opts,
		prefix: opts.Address + " ble",
	}
}

func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link != nil && t.link.closing {
		return ErrLinkClosing
	}
	if t.link != nil || t.connecting {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.ConnectTimeout)
	t.connecting = true
	t.cancel = cancel
	go t.dial(ctx, cancel)
	return nil
}

func (t *Transport) dial(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	want := strings.ToLower(t.opts.Address)
	filter := func(a ble.Advertisement) bool {
		return strings.ToLower(a.Addr().String()) == want
	}

	logger.Debug(t.prefix, "scanning")
	client, err := t.opts.Dial(ctx, filter)
	if err != nil {
		t.mu.Lock()
		t.connecting = false
		t.mu.Unlock()
		t.sink.Post(blinds.Disconnected{Reason: fmt.Sprintf("connect: %v", err)})
		return
	}
	t.sink.Post(blinds.Opened{})

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		logger.Warn(t.prefix, "discovery failed: %v", err)
		t.mu.Lock()
		t.connecting = false
		t.mu.Unlock()
		client.CancelConnection()
		t.sink.Post(blinds.Disconnected{Reason: fmt.Sprintf("discovery: %v", err)})
		return
	}

	l := &link{
		client:  client,
		profile: profile,
		chars:   make(map[uint16]*ble.Characteristic),
		descs:   make(map[uint16]*ble.Descriptor),
		ops:     make(chan func(), 16),
		done:    make(chan struct{}),
	}
	for _, s := range profile.Services {
		for _, c := range s.Characteristics {
			l.chars[c.ValueHandle] = c
			for _, d := range c.Descriptors {
				l.descs[d.Handle] = d
			}
			if c.CCCD != nil {
				l.descs[c.CCCD.Handle] = c.CCCD
			}
		}
	}

	t.mu.Lock()
	t.link = l
	t.connecting = false
	t.mu.Unlock()

	go l.run()
	go t.watch(l)

	logger.Info(t.prefix, "connected, %d characteristics", len(l.chars))
	t.sink.Post(blinds.SearchComplete{})
}

func (l *link) run() {
	for {
		select {
		case <-l.done:
			return
		case op := <-l.ops:
			op()
		}
	}
}

func (t *Transport) watch(l *link) {
	<-l.client.Disconnected()
	close(l.done)

	t.mu.Lock()
	if t.link == l {
		t.link = nil
	}
	t.mu.Unlock()

	t.sink.Post(blinds.Disconnected{Reason: "link closed"})
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	l := t.link
	if l != nil {
		l.closing = true
	}
	if t.connecting && t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	if l == nil {
		return nil
	}
	return l.client.CancelConnection()
}

// Connected reports a link that is up or being dialled. A link whose
// teardown has started does not count.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return (t.link != nil && !t.link.closing) || t.connecting
}

func (t *Transport) current() *link {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link
}

func (t *Transport) find(service, char uuid.UUID) *ble.Characteristic {
	l := t.current()
	if l == nil {
		return nil
	}
	su, cu := toBLE(service), toBLE(char)
	for _, s := range l.profile.Services {
		if !s.UUID.Equal(su) {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID.Equal(cu) {
				return c
			}
		}
	}
	return nil
}

func (t *Transport) Characteristic(service, char uuid.UUID) (blinds.Characteristic, bool) {
	c := t.find(service, char)
	if c == nil {
		return blinds.Characteristic{}, false
	}
	return blinds.Characteristic{Handle: c.ValueHandle, Properties: gatt.Property(c.Property)}, true
}

func (t *Transport) Descriptor(service, char, desc uuid.UUID) (uint16, bool) {
	c := t.find(service, char)
	if c == nil {
		return 0, false
	}
	isCCCD := desc == gatt.CCCDUUID
	if isCCCD && c.CCCD != nil {
		return c.CCCD.Handle, true
	}
	du := toBLE(desc)
	for _, d := range c.Descriptors {
		if d.UUID.Equal(du) || (isCCCD && d.UUID.Equal(ble.ClientCharacteristicConfigUUID)) {
			return d.Handle, true
		}
	}
	return 0, false
}

// enqueue runs op on the link worker
func (t *Transport) enqueue(op func(l *link)) error {
	l := t.current()
	if l == nil {
		return blinds.ErrNotConnected
	}
	select {
	case l.ops <- func() { op(l) }:
		return nil
	case <-l.done:
		return blinds.ErrNotConnected
	}
}

func (t *Transport) RegisterForNotify(handle uint16) error {
	return t.enqueue(func(l *link) {
		c, ok := l.chars[handle]
		if !ok {
			t.sink.Post(blinds.NotifyRegistered{Handle: handle, Err: gatt.ErrInvalidHandle})
			return
		}
		err := l.client.Subscribe(c, false, func(value []byte) {
			t.sink.Post(blinds.Notification{Handle: handle, Value: append([]byte(nil), value...)})
		})
		t.sink.Post(blinds.NotifyRegistered{Handle: handle, Err: err})
	})
}

func (t *Transport) WriteDescriptor(handle uint16, value []byte) error {
	v := append([]byte(nil), value...)
	return t.enqueue(func(l *link) {
		d, ok := l.descs[handle]
		if !ok {
			logger.Warn(t.prefix, "no descriptor at 0x%04X", handle)
			return
		}
		if err := l.client.WriteDescriptor(d, v); err != nil {
			logger.Warn(t.prefix, "descriptor write 0x%04X failed: %v", handle, err)
		}
	})
}

func (t *Transport) RequestMTU(mtu int) error {
	return t.enqueue(func(l *link) {
		tx, err := l.client.ExchangeMTU(mtu)
		if err == nil && tx < mtu {
			mtu = tx
		}
		t.sink.Post(blinds.MTUConfigured{MTU: mtu, Err: err})
	})
}

func (t *Transport) Write(handle uint16, data []byte) error {
	v := append([]byte(nil), data...)
	return t.enqueue(func(l *link) {
		c, ok := l.chars[handle]
		if !ok {
			t.sink.Post(blinds.WriteAck{Handle: handle, Err: gatt.ErrInvalidHandle})
			return
		}
		err := l.client.WriteCharacteristic(c, v, t.opts.WriteNoRsp)
		t.sink.Post(blinds.WriteAck{Handle: handle, Err: err})
	})
}

func toBLE(u uuid.UUID) ble.UUID {
	return ble.MustParse(u.String())
}
