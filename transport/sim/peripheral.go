// Package sim is an in-memory Motion blind. It serves the blind's attribute
// table, answers the handshake and posts completions as blinds events.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/user/motionblinds-ble/blinds"
	"github.com/user/motionblinds-ble/cipher"
	"github.com/user/motionblinds-ble/logger"
	"github.com/user/motionblinds-ble/wire/codec"
	"github.com/user/motionblinds-ble/wire/gatt"
)

var ErrConnectRefused = errors.New("sim: connection refused")

// Options shape the simulated blind
type Options struct {
	Name string
	MTU  int // largest MTU the blind agrees to, default 512

	OmitNotify    bool // no notification characteristic
	OmitWrite     bool // no write characteristic
	OmitCCCD      bool // notification characteristic without CCCD
	WriteNotifies bool // write characteristic also has the notify property

	DropAcks       bool // never acknowledge writes
	SilentOnQuery  bool // do not answer the user query
	RefuseConnect  bool
	PhoneUserExtra string // hex appended to the phone-user marker

	Cipher blinds.Cipher // default cipher.Plain
}

// Peripheral implements blinds.Transport against an in-memory GATT server.
// Completions are posted to the sink synchronously, so it must be driven
// through a blinds.Dispatcher.
type Peripheral struct {
	sink   blinds.EventSink
	opts   Options
	prefix string

	db      *gatt.AttributeDatabase
	profile *gatt.Profile
	cccd    *gatt.CCCDManager

	notifyHandle uint16
	writeHandle  uint16

	mu        sync.Mutex
	connected bool
	mtu       int
	commands  []codec.Command
	raw       []string
}

// New builds a blind posting to sink
func New(sink blinds.EventSink, opts Options) *Peripheral {
	if opts.MTU == 0 {
		opts.MTU = blinds.WantedMTU
	}
	if opts.Cipher == nil {
		opts.Cipher = cipher.Plain{}
	}
	if opts.Name == "" {
		opts.Name = "sim"
	}

	var chars []gatt.Characteristic
	if !opts.OmitNotify {
		chars = append(chars, gatt.Characteristic{
			UUID:       blinds.NotifyUUID,
			Properties: gatt.PropNotify,
			OmitCCCD:   opts.OmitCCCD,
		})
	}
	if !opts.OmitWrite {
		props := gatt.PropWrite | gatt.PropWriteWithoutResponse
		if opts.WriteNotifies {
			props |= gatt.PropNotify
		}
		chars = append(chars, gatt.Characteristic{UUID: blinds.WriteUUID, Properties: props})
	}

	db := gatt.BuildAttributeDatabase([]gatt.Service{{UUID: blinds.ServiceUUID, Characteristics: chars}})
	p := &Peripheral{
		sink:    sink,
		opts:    opts,
		prefix:  opts.Name + " sim",
		db:      db,
		profile: gatt.Discover(db),
		cccd:    gatt.NewCCCDManager(),
		mtu:     23,
	}
	if c, ok := p.profile.Characteristic(blinds.ServiceUUID, blinds.NotifyUUID); ok {
		p.notifyHandle = c.ValueHandle
	}
	if c, ok := p.profile.Characteristic(blinds.ServiceUUID, blinds.WriteUUID); ok {
		p.writeHandle = c.ValueHandle
	}
	return p
}

// NotifyHandle returns the value handle of the notification characteristic
func (p *Peripheral) NotifyHandle() uint16 { return p.notifyHandle }

// WriteHandle returns the value handle of the write characteristic
func (p *Peripheral) WriteHandle() uint16 { return p.writeHandle }

func (p *Peripheral) Connect() error {
	if p.opts.RefuseConnect {
		return ErrConnectRefused
	}
	p.mu.Lock()
	p.connected = true
	p.mtu = 23
	p.mu.Unlock()

	logger.Debug(p.prefix, "central connected")
	p.sink.Post(blinds.Opened{})
	p.sink.Post(blinds.SearchComplete{})
	return nil
}

func (p *Peripheral) Disconnect() error {
	p.drop("local disconnect")
	return nil
}

// Drop simulates the blind closing the link
func (p *Peripheral) Drop(reason string) {
	p.drop(reason)
}

func (p *Peripheral) drop(reason string) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	p.mu.Unlock()

	p.cccd.Clear()
	logger.Debug(p.prefix, "link closed: %s", reason)
	p.sink.Post(blinds.Disconnected{Reason: reason})
}

func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Peripheral) Characteristic(service, char uuid.UUID) (blinds.Characteristic, bool) {
	if !p.Connected() {
		return blinds.Characteristic{}, false
	}
	c, ok := p.profile.Characteristic(service, char)
	if !ok {
		return blinds.Characteristic{}, false
	}
	return blinds.Characteristic{Handle: c.ValueHandle, Properties: c.Properties}, true
}

func (p *Peripheral) Descriptor(service, char, desc uuid.UUID) (uint16, bool) {
	if !p.Connected() {
		return 0, false
	}
	c, ok := p.profile.Characteristic(service, char)
	if !ok {
		return 0, false
	}
	return c.Descriptor(desc)
}

func (p *Peripheral) RegisterForNotify(handle uint16) error {
	if !p.Connected() {
		return blinds.ErrNotConnected
	}
	var err error
	c, ok := p.profile.CharacteristicByValueHandle(handle)
	if !ok || !c.Properties.Has(gatt.PropNotify) {
		err = gatt.ErrRequestNotSupported
	}
	p.sink.Post(blinds.NotifyRegistered{Handle: handle, Err: err})
	return nil
}

func (p *Peripheral) WriteDescriptor(handle uint16, value []byte) error {
	if !p.Connected() {
		return blinds.ErrNotConnected
	}
	c, ok := p.profile.CharacteristicByDescriptor(handle)
	if !ok {
		return fmt.Errorf("descriptor 0x%04X: %w", handle, gatt.ErrInvalidHandle)
	}
	if err := p.db.SetAttributeValue(handle, value); err != nil {
		return err
	}
	return p.cccd.SetSubscription(c.ValueHandle, value)
}

func (p *Peripheral) RequestMTU(mtu int) error {
	if !p.Connected() {
		return blinds.ErrNotConnected
	}
	if mtu > p.opts.MTU {
		mtu = p.opts.MTU
	}
	p.mu.Lock()
	p.mtu = mtu
	p.mu.Unlock()

	p.sink.Post(blinds.MTUConfigured{MTU: mtu})
	return nil
}

// MTU returns the negotiated MTU
func (p *Peripheral) MTU() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mtu
}

func (p *Peripheral) Write(handle uint16, data []byte) error {
	if !p.Connected() {
		return blinds.ErrNotConnected
	}
	if err := p.db.SetAttributeValue(handle, data); err != nil {
		p.sink.Post(blinds.WriteAck{Handle: handle, Err: err})
		return nil
	}

	raw, err := p.opts.Cipher.Decrypt(data)
	if err != nil {
		logger.Warn(p.prefix, "undecryptable write: %v", err)
		p.sink.Post(blinds.WriteAck{Handle: handle, Err: gatt.ErrUnlikelyError})
		return nil
	}
	cmd, err := codec.ParseCommand(raw)
	if err != nil {
		logger.Warn(p.prefix, "rejecting %s: %v", raw, err)
		p.sink.Post(blinds.WriteAck{Handle: handle, Err: gatt.ErrInvalidAttributeValueLength})
		return nil
	}

	p.mu.Lock()
	p.commands = append(p.commands, cmd)
	p.raw = append(p.raw, raw)
	p.mu.Unlock()
	logger.Debug(p.prefix, "received %s", codec.OpcodeName(cmd.Opcode))

	if !p.opts.DropAcks {
		p.sink.Post(blinds.WriteAck{Handle: handle})
	}
	if cmd.Opcode == codec.OpcodeUserQuery && !p.opts.SilentOnQuery {
		if err := p.Notify(codec.NotifyPhoneUser + p.opts.PhoneUserExtra); err != nil {
			logger.Debug(p.prefix, "phone-user notification not sent: %v", err)
		}
	}
	return nil
}

// Notify sends payload (hex) on the notification characteristic if the
// central subscribed to it
func (p *Peripheral) Notify(payload string) error {
	return p.NotifyOn(p.notifyHandle, payload)
}

// NotifyOn sends payload on any notifying characteristic
func (p *Peripheral) NotifyOn(handle uint16, payload string) error {
	if !p.Connected() {
		return blinds.ErrNotConnected
	}
	if handle == 0 {
		return gatt.ErrInvalidHandle
	}
	if handle == p.notifyHandle && !p.opts.OmitCCCD && !p.cccd.IsNotifyEnabled(handle) {
		return gatt.ErrCCCDImproperlyConfigured
	}
	value, err := p.opts.Cipher.Encrypt(payload)
	if err != nil {
		return err
	}
	p.sink.Post(blinds.Notification{Handle: handle, Value: value})
	return nil
}

// Commands returns the decoded commands received so far
func (p *Peripheral) Commands() []codec.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]codec.Command(nil), p.commands...)
}

// RawCommands returns the decrypted command strings received so far
func (p *Peripheral) RawCommands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.raw...)
}
