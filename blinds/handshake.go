package blinds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/motionblinds-ble/logger"
	"github.com/user/motionblinds-ble/tracer"
	"github.com/user/motionblinds-ble/wire/codec"
	"github.com/user/motionblinds-ble/wire/debug"
	"github.com/user/motionblinds-ble/wire/gatt"
)

// Options configures a Handshake
type Options struct {
	Name        string // blind address or label, used in log prefixes
	ServiceUUID uuid.UUID
	NotifyUUID  uuid.UUID
	WriteUUID   uuid.UUID
	MTU         int

	// StateTimeout arms a deadline on entry to Discovering and every
	// awaiting state. Zero disables the watchdog.
	StateTimeout time.Duration
	MaxRetries   int

	Debug *debug.DebugLogger // optional JSONL recorder
}

// DefaultOptions returns options for the stock Motion layout
func DefaultOptions(name string) Options {
	return Options{
		Name:         name,
		ServiceUUID:  ServiceUUID,
		NotifyUUID:   NotifyUUID,
		WriteUUID:    WriteUUID,
		MTU:          WantedMTU,
		StateTimeout: DefaultStateTimeout,
		MaxRetries:   DefaultMaxRetries,
	}
}

// accepts lists the events that can act in each state. Everything else is
// logged and dropped. Notification, Disconnected, DisconnectRequested and
// DeadlineExpired are handled in every state.
var accepts = map[State]map[EventKind]bool{
	StateIdle: {
		KindConnectRequested: true,
	},
	StateDiscovering: {
		KindOpened:           true,
		KindSearchComplete:   true,
		KindNotifyRegistered: true,
		KindMTUConfigured:    true,
	},
	StateAwaitingMTUAck: {
		KindMTUConfigured: true,
	},
	StateAwaitingQueryAck: {
		KindMTUConfigured: true,
		KindWriteAck:      true,
	},
	StateAwaitingKeyAck: {
		KindMTUConfigured: true,
		KindWriteAck:      true,
	},
	StateAwaitingTimeAck: {
		KindMTUConfigured: true,
		KindWriteAck:      true,
	},
	StateEstablished: {
		KindMTUConfigured: true,
		KindWriteAck:      true,
	},
}

func accepted(state State, kind EventKind) bool {
	switch kind {
	case KindNotification, KindDisconnected, KindDisconnectRequested, KindDeadlineExpired:
		return true
	}
	return accepts[state][kind]
}

// Handshake drives one blind from connect to an established session.
// HandleEvent must only be called from one goroutine (see Dispatcher);
// Snapshot, State and Watch are safe from anywhere.
type Handshake struct {
	transport Transport
	cipher    Cipher
	clock     codec.Clock
	device    DeviceLogic
	sink      EventSink
	router    *Router
	opts      Options
	prefix    string

	mu   sync.RWMutex // guards conn for readers off the dispatcher goroutine
	conn Connection

	pending *codec.PendingCommand

	timer      *time.Timer
	generation uint64
	retries    int

	span trace.Span

	watchMu  sync.Mutex
	watchers map[chan StateChange]struct{}
}

// NewHandshake creates a handshake in Idle. sink receives watchdog
// deadlines; with a nil sink the watchdog stays off.
func NewHandshake(t Transport, c Cipher, clock codec.Clock, device DeviceLogic, sink EventSink, opts Options) *Handshake {
	if device == nil {
		device = NopDevice{}
	}
	if opts.MTU == 0 {
		opts.MTU = WantedMTU
	}
	prefix := "blinds"
	if opts.Name != "" {
		prefix = opts.Name + " blinds"
	}
	return &Handshake{
		transport: t,
		cipher:    c,
		clock:     clock,
		device:    device,
		sink:      sink,
		router:    NewRouter(device, prefix),
		opts:      opts,
		prefix:    prefix,
		watchers:  make(map[chan StateChange]struct{}),
	}
}

// State returns the current state
func (h *Handshake) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn.State
}

// Snapshot returns a copy of the connection state
func (h *Handshake) Snapshot() Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

// Pending returns a copy of the command awaiting its ack, if any
func (h *Handshake) Pending() (codec.PendingCommand, bool) {
	if h.pending == nil {
		return codec.PendingCommand{}, false
	}
	return *h.pending, true
}

// Watch subscribes to state changes. Slow readers miss changes rather than
// block the handshake. The returned function unsubscribes.
func (h *Handshake) Watch() (<-chan StateChange, func()) {
	ch := make(chan StateChange, 32)
	h.watchMu.Lock()
	h.watchers[ch] = struct{}{}
	h.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.watchMu.Lock()
			delete(h.watchers, ch)
			h.watchMu.Unlock()
		})
	}
}

// HandleEvent applies one event
func (h *Handshake) HandleEvent(ev Event) {
	state := h.conn.State
	logger.Trace(h.prefix, "%s in %s", ev, state)

	if !accepted(state, ev.Kind()) {
		logger.Debug(h.prefix, "ignoring %s in %s", ev, state)
		return
	}

	switch e := ev.(type) {
	case ConnectRequested:
		h.onConnectRequested(e)
	case DisconnectRequested:
		h.onDisconnectRequested(e)
	case Opened:
		logger.Debug(h.prefix, "link open, waiting for discovery")
	case SearchComplete:
		h.onSearchComplete()
	case NotifyRegistered:
		h.onNotifyRegistered(e)
	case MTUConfigured:
		h.onMTUConfigured(e)
	case WriteAck:
		h.onWriteAck(e)
	case Notification:
		h.onNotification(e)
	case Disconnected:
		h.onDisconnected(e)
	case DeadlineExpired:
		h.onDeadlineExpired(e)
	default:
		logger.Debug(h.prefix, "unhandled event %s", ev)
	}
}

func (h *Handshake) onConnectRequested(ev Event) {
	h.mu.Lock()
	h.conn = Connection{}
	h.mu.Unlock()
	h.pending = nil

	_, h.span = tracer.StartSpan(context.Background(), "motionblinds.handshake",
		trace.WithAttributes(tracer.StringAttr("blind", h.opts.Name)))

	logger.Info(h.prefix, "connecting")
	h.setState(StateDiscovering, ev)

	if err := h.transport.Connect(); err != nil {
		logger.Warn(h.prefix, "connect failed: %v", err)
		h.setState(StateIdle, ev)
	}
}

func (h *Handshake) onDisconnectRequested(ev Event) {
	logger.Info(h.prefix, "disconnecting")
	if err := h.transport.Disconnect(); err != nil {
		logger.Warn(h.prefix, "disconnect failed: %v", err)
	}
	h.setState(StateIdle, ev)
}

func (h *Handshake) onSearchComplete() {
	svc := h.opts.ServiceUUID

	if notify, ok := h.transport.Characteristic(svc, h.opts.NotifyUUID); ok {
		h.mu.Lock()
		h.conn.NotifyHandle = notify.Handle
		h.mu.Unlock()

		if err := h.transport.RegisterForNotify(notify.Handle); err != nil {
			logger.Warn(h.prefix, "register for notify on 0x%04X failed: %v", notify.Handle, err)
		}
		if desc, ok := h.transport.Descriptor(svc, h.opts.NotifyUUID, gatt.CCCDUUID); ok {
			if err := h.transport.WriteDescriptor(desc, gatt.EnableNotificationsValue()); err != nil {
				logger.Warn(h.prefix, "enable notifications failed: %v", err)
			}
		} else {
			logger.Warn(h.prefix, "notification characteristic has no CCCD")
		}
	} else {
		logger.Warn(h.prefix, "could not find notification characteristic %s", h.opts.NotifyUUID)
	}

	if write, ok := h.transport.Characteristic(svc, h.opts.WriteUUID); ok {
		h.mu.Lock()
		h.conn.WriteHandle = write.Handle
		h.mu.Unlock()

		if write.Properties.Has(gatt.PropNotify) {
			if err := h.transport.RegisterForNotify(write.Handle); err != nil {
				logger.Warn(h.prefix, "register for notify on 0x%04X failed: %v", write.Handle, err)
			}
		}
	} else {
		logger.Warn(h.prefix, "could not find write characteristic %s", h.opts.WriteUUID)
	}

	logger.DebugJSON(h.prefix, "discovered", h.snapshotStruct())
}

func (h *Handshake) onNotifyRegistered(ev NotifyRegistered) {
	if ev.Err != nil {
		logger.Warn(h.prefix, "notification registration on 0x%04X failed: %v", ev.Handle, ev.Err)
		return
	}

	if h.conn.MTUConfirmed {
		if h.sendCommand(codec.OpcodeUserQuery, codec.OpcodeUserQuery) {
			h.setState(StateAwaitingQueryAck, ev)
		}
		return
	}

	if err := h.transport.RequestMTU(h.opts.MTU); err != nil {
		logger.Warn(h.prefix, "MTU request failed: %v", err)
		return
	}
	h.setState(StateAwaitingMTUAck, ev)
}

func (h *Handshake) onMTUConfigured(ev MTUConfigured) {
	if ev.Err != nil {
		logger.Warn(h.prefix, "MTU exchange failed: %v", ev.Err)
		return
	}
	if ev.MTU != h.opts.MTU {
		logger.Warn(h.prefix, "negotiated MTU %d, want %d", ev.MTU, h.opts.MTU)
		return
	}

	h.mu.Lock()
	h.conn.MTUConfirmed = true
	h.mu.Unlock()

	if h.conn.State != StateAwaitingMTUAck {
		logger.Debug(h.prefix, "MTU %d confirmed in %s", ev.MTU, h.conn.State)
		return
	}
	if h.sendCommand(codec.OpcodeUserQuery, codec.OpcodeUserQuery) {
		h.setState(StateAwaitingQueryAck, ev)
	}
}

func (h *Handshake) onWriteAck(ev WriteAck) {
	if ev.Err != nil {
		logger.Warn(h.prefix, "write to 0x%04X failed: %v", ev.Handle, ev.Err)
		return
	}

	switch h.conn.State {
	case StateAwaitingQueryAck:
		if h.pending.Matches(codec.OpcodeUserQuery) {
			logger.Debug(h.prefix, "user query acknowledged, waiting for phone-user notification")
			return
		}
	case StateAwaitingKeyAck:
		if h.pending.Matches(codec.OpcodeSetUserKey) {
			if h.sendSetTime() {
				h.setState(StateAwaitingTimeAck, ev)
			}
			return
		}
	case StateAwaitingTimeAck:
		if h.pending.Matches(codec.OpcodeSetTime) {
			h.setState(StateEstablished, ev)
			return
		}
	}
	logger.Debug(h.prefix, "ignoring ack for %s in %s", h.pending, h.conn.State)
}

func (h *Handshake) onNotification(ev Notification) {
	if h.conn.NotifyHandle == 0 || ev.Handle != h.conn.NotifyHandle {
		logger.Debug(h.prefix, "dropping notification on 0x%04X (notify handle 0x%04X)", ev.Handle, h.conn.NotifyHandle)
		return
	}

	payload, err := h.cipher.Decrypt(ev.Value)
	if err != nil {
		logger.Warn(h.prefix, "could not decrypt notification: %v", err)
		return
	}
	logger.Trace(h.prefix, "notification %s", payload)
	h.opts.Debug.LogNotification(ev.Handle, ev.Value, payload)

	if h.router.Route(payload) != RouteKeyExchange {
		return
	}
	if !h.conn.State.Awaiting() {
		logger.Debug(h.prefix, "phone-user notification in %s ignored", h.conn.State)
		return
	}
	if h.sendCommand(codec.OpcodeSetUserKey, codec.OpcodeSetUserKey) {
		h.setState(StateAwaitingKeyAck, ev)
	}
}

func (h *Handshake) onDisconnected(ev Disconnected) {
	logger.Info(h.prefix, "disconnected: %s", ev.Reason)

	h.mu.Lock()
	from := h.conn.State
	h.conn = Connection{State: from}
	h.mu.Unlock()
	h.pending = nil

	// device logic hears about the drop before watchers see Idle
	h.device.OnDisconnected()
	h.setState(StateIdle, ev)
}

func (h *Handshake) onDeadlineExpired(ev DeadlineExpired) {
	if ev.Generation != h.generation || ev.State != h.conn.State {
		logger.Trace(h.prefix, "stale %s", ev)
		return
	}
	h.timer = nil

	h.retries++
	if h.retries > h.opts.MaxRetries {
		logger.Error(h.prefix, "no progress in %s after %d retries, disconnecting", ev.State, h.opts.MaxRetries)
		if h.span != nil {
			tracer.AddEvent(h.span, "gave up", tracer.StringAttr("state", ev.State.String()))
		}
		h.onDisconnectRequested(ev)
		return
	}

	logger.Warn(h.prefix, "no progress in %s, retrying (%d/%d)", ev.State, h.retries, h.opts.MaxRetries)
	if h.span != nil {
		tracer.AddEvent(h.span, "retry", tracer.StringAttr("state", ev.State.String()), tracer.IntAttr("attempt", h.retries))
	}
	h.retryStep()
	h.armDeadline()
}

// retryStep repeats the request the current state is waiting on. Commands are
// rebuilt so they carry a fresh timestamp.
func (h *Handshake) retryStep() {
	switch h.conn.State {
	case StateAwaitingMTUAck:
		if err := h.transport.RequestMTU(h.opts.MTU); err != nil {
			logger.Warn(h.prefix, "MTU request failed: %v", err)
		}
	case StateAwaitingQueryAck:
		h.sendCommand(codec.OpcodeUserQuery, codec.OpcodeUserQuery)
	case StateAwaitingKeyAck:
		h.sendCommand(codec.OpcodeSetUserKey, codec.OpcodeSetUserKey)
	case StateAwaitingTimeAck:
		h.sendSetTime()
	}
}

func (h *Handshake) sendSetTime() bool {
	return h.sendCommand(codec.OpcodeSetTime, codec.BuildSetTimeCommand(h.clock.Now()))
}

// sendCommand timestamps body, encrypts it and writes it to the write
// characteristic. It reports whether a write was attempted; the command
// replaces whatever was pending.
func (h *Handshake) sendCommand(opcode, body string) bool {
	if h.conn.WriteHandle == 0 {
		logger.Warn(h.prefix, "cannot send %s: %v", codec.OpcodeName(opcode), ErrNoWriteHandle)
		return false
	}

	raw := codec.BuildCommand(body, h.clock.Now())
	payload, err := h.cipher.Encrypt(raw)
	if err != nil {
		logger.Warn(h.prefix, "cannot encrypt %s: %v", codec.OpcodeName(opcode), err)
		return false
	}

	h.pending = &codec.PendingCommand{Opcode: opcode, Raw: raw, Payload: payload}
	logger.Debug(h.prefix, "sending %s", h.pending)
	h.opts.Debug.LogCommand(opcode, raw, payload)

	if err := h.transport.Write(h.conn.WriteHandle, payload); err != nil {
		logger.Warn(h.prefix, "write %s failed: %v", codec.OpcodeName(opcode), err)
	}
	return true
}

func (h *Handshake) setState(to State, cause Event) {
	h.mu.Lock()
	from := h.conn.State
	h.conn.State = to
	h.mu.Unlock()

	if from == to {
		return
	}

	logger.Info(h.prefix, "%s -> %s (%s)", from, to, cause)
	h.opts.Debug.LogTransition(from.String(), to.String(), cause.String())

	h.retries = 0
	if to == StateDiscovering || to.Awaiting() {
		h.armDeadline()
	} else {
		h.stopDeadline()
	}

	h.traceTransition(from, to)
	if to == StateEstablished {
		logger.DebugJSON(h.prefix, "session established", h.snapshotStruct())
	}

	change := StateChange{From: from, To: to, Cause: cause.Kind()}
	h.watchMu.Lock()
	for ch := range h.watchers {
		select {
		case ch <- change:
		default:
		}
	}
	h.watchMu.Unlock()
}

func (h *Handshake) traceTransition(from, to State) {
	if h.span == nil {
		return
	}
	tracer.AddEvent(h.span, "transition",
		tracer.StringAttr("from", from.String()),
		tracer.StringAttr("to", to.String()))

	switch to {
	case StateEstablished:
		tracer.SetOK(h.span)
	case StateIdle:
		tracer.RecordError(h.span, fmt.Errorf("%w in %s", ErrHandshakeAborted, from))
	default:
		return
	}
	h.span.End()
	h.span = nil
}

func (h *Handshake) armDeadline() {
	h.stopDeadline()
	if h.opts.StateTimeout <= 0 || h.sink == nil {
		return
	}
	ev := DeadlineExpired{State: h.conn.State, Generation: h.generation}
	sink := h.sink
	h.timer = time.AfterFunc(h.opts.StateTimeout, func() { sink.Post(ev) })
}

// stopDeadline cancels the armed deadline; bumping the generation makes an
// expiry already in the queue stale.
func (h *Handshake) stopDeadline() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.generation++
}

func (h *Handshake) snapshotStruct() *structpb.Struct {
	conn := h.Snapshot()
	s, err := structpb.NewStruct(map[string]interface{}{
		"name":          h.opts.Name,
		"state":         conn.State.String(),
		"notify_handle": int(conn.NotifyHandle),
		"write_handle":  int(conn.WriteHandle),
		"mtu_confirmed": conn.MTUConfirmed,
	})
	if err != nil {
		return &structpb.Struct{}
	}
	return s
}
