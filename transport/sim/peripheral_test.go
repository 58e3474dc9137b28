package sim

import (
	"errors"
	"testing"

	"github.com/user/motionblinds-ble/blinds"
	"github.com/user/motionblinds-ble/cipher"
	"github.com/user/motionblinds-ble/wire/codec"
	"github.com/user/motionblinds-ble/wire/gatt"
)

type recorder struct {
	events []blinds.Event
}

func (r *recorder) Post(ev blinds.Event) { r.events = append(r.events, ev) }

func (r *recorder) last() blinds.Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func connected(t *testing.T, opts Options) (*Peripheral, *recorder) {
	t.Helper()
	rec := &recorder{}
	p := New(rec, opts)
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return p, rec
}

func TestConnectPostsOpenedAndSearchComplete(t *testing.T) {
	p, rec := connected(t, Options{})

	if len(rec.events) != 2 {
		t.Fatalf("Expected 2 events, got %v", rec.events)
	}
	if rec.events[0].Kind() != blinds.KindOpened || rec.events[1].Kind() != blinds.KindSearchComplete {
		t.Errorf("Unexpected events: %v", rec.events)
	}
	if !p.Connected() {
		t.Error("Expected connected")
	}
}

func TestRefuseConnect(t *testing.T) {
	p := New(&recorder{}, Options{RefuseConnect: true})
	if err := p.Connect(); !errors.Is(err, ErrConnectRefused) {
		t.Errorf("Expected ErrConnectRefused, got %v", err)
	}
}

func TestAttributeLayout(t *testing.T) {
	p, _ := connected(t, Options{})

	notify, ok := p.Characteristic(blinds.ServiceUUID, blinds.NotifyUUID)
	if !ok || notify.Handle != 3 || !notify.Properties.Has(gatt.PropNotify) {
		t.Errorf("Unexpected notify characteristic: %+v %v", notify, ok)
	}
	cccd, ok := p.Descriptor(blinds.ServiceUUID, blinds.NotifyUUID, blinds.CCCDUUID)
	if !ok || cccd != 4 {
		t.Errorf("Expected CCCD at 0x0004, got 0x%04X %v", cccd, ok)
	}
	write, ok := p.Characteristic(blinds.ServiceUUID, blinds.WriteUUID)
	if !ok || write.Handle != 6 || write.Properties.Has(gatt.PropNotify) {
		t.Errorf("Unexpected write characteristic: %+v %v", write, ok)
	}
}

func TestOmittedCharacteristics(t *testing.T) {
	p, _ := connected(t, Options{OmitNotify: true, OmitWrite: true})

	if _, ok := p.Characteristic(blinds.ServiceUUID, blinds.NotifyUUID); ok {
		t.Error("Notify characteristic should be missing")
	}
	if _, ok := p.Characteristic(blinds.ServiceUUID, blinds.WriteUUID); ok {
		t.Error("Write characteristic should be missing")
	}
}

func TestRegisterForNotify(t *testing.T) {
	p, rec := connected(t, Options{})

	p.RegisterForNotify(p.NotifyHandle())
	if ev, ok := rec.last().(blinds.NotifyRegistered); !ok || ev.Err != nil || ev.Handle != p.NotifyHandle() {
		t.Errorf("Unexpected event %v", rec.last())
	}

	p.RegisterForNotify(p.WriteHandle())
	if ev, ok := rec.last().(blinds.NotifyRegistered); !ok || ev.Err == nil {
		t.Errorf("Expected registration on write handle to fail, got %v", rec.last())
	}
}

func TestRequestMTUClampsToPeripheralMax(t *testing.T) {
	p, rec := connected(t, Options{MTU: 247})

	p.RequestMTU(512)
	ev, ok := rec.last().(blinds.MTUConfigured)
	if !ok || ev.MTU != 247 {
		t.Errorf("Expected MTUConfigured(247), got %v", rec.last())
	}
	if p.MTU() != 247 {
		t.Errorf("MTU() = %d", p.MTU())
	}
}

func TestQueryIsAnsweredWithPhoneUserMarker(t *testing.T) {
	p, rec := connected(t, Options{})
	p.WriteDescriptor(4, gatt.EnableNotificationsValue())

	raw := codec.BuildCommand(codec.OpcodeUserQuery, codec.Timestamp{Year: 2024, Month: 6, Day: 7})
	payload, _ := cipher.Plain{}.Encrypt(raw)
	if err := p.Write(p.WriteHandle(), payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	n := len(rec.events)
	ack, ok := rec.events[n-2].(blinds.WriteAck)
	if !ok || ack.Err != nil {
		t.Fatalf("Expected successful ack, got %v", rec.events[n-2])
	}
	note, ok := rec.events[n-1].(blinds.Notification)
	if !ok || note.Handle != p.NotifyHandle() {
		t.Fatalf("Expected notification, got %v", rec.events[n-1])
	}
	decoded, _ := cipher.Plain{}.Decrypt(note.Value)
	if !codec.IsPhoneUserNotification(decoded) {
		t.Errorf("Expected phone-user marker, got %s", decoded)
	}

	if got := p.RawCommands(); len(got) != 1 || got[0] != raw {
		t.Errorf("RawCommands = %v", got)
	}
	if cmds := p.Commands(); len(cmds) != 1 || cmds[0].Opcode != codec.OpcodeUserQuery {
		t.Errorf("Commands = %+v", cmds)
	}
}

func TestNotifyRequiresSubscription(t *testing.T) {
	p, _ := connected(t, Options{})

	if err := p.Notify("0cc0060505"); !errors.Is(err, gatt.ErrCCCDImproperlyConfigured) {
		t.Errorf("Expected CCCD error, got %v", err)
	}
}

func TestMalformedWriteIsRejected(t *testing.T) {
	p, rec := connected(t, Options{})

	p.Write(p.WriteHandle(), []byte{0xFF, 0x00})
	if ack, ok := rec.last().(blinds.WriteAck); !ok || ack.Err == nil {
		t.Errorf("Expected failed ack, got %v", rec.last())
	}
	if len(p.Commands()) != 0 {
		t.Error("Malformed write should not be recorded")
	}
}

func TestWriteToNotifyCharacteristicIsNotPermitted(t *testing.T) {
	p, rec := connected(t, Options{})

	p.Write(p.NotifyHandle(), []byte{0x02})
	ack, ok := rec.last().(blinds.WriteAck)
	if !ok || !errors.Is(ack.Err, gatt.ErrWriteNotPermitted) {
		t.Errorf("Expected ErrWriteNotPermitted, got %v", rec.last())
	}
}

func TestDropPostsDisconnectedOnce(t *testing.T) {
	p, rec := connected(t, Options{})

	p.Drop("out of range")
	p.Disconnect()

	var count int
	for _, ev := range rec.events {
		if ev.Kind() == blinds.KindDisconnected {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected 1 Disconnected event, got %d", count)
	}
	if p.Connected() {
		t.Error("Expected disconnected")
	}
	if err := p.Write(p.WriteHandle(), []byte{0x02}); !errors.Is(err, blinds.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}
