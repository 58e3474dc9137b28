package blinds

import (
	"github.com/user/motionblinds-ble/logger"
	"github.com/user/motionblinds-ble/wire/codec"
)

// Route says what happened to a decrypted notification
type Route int

const (
	RouteForwarded Route = iota
	RouteKeyExchange
)

func (r Route) String() string {
	if r == RouteKeyExchange {
		return "KeyExchange"
	}
	return "Forwarded"
}

// Router splits decrypted notifications between the handshake and the
// device logic. The phone-user marker never reaches the device.
type Router struct {
	device DeviceLogic
	prefix string
}

// NewRouter forwards non-handshake notifications to device
func NewRouter(device DeviceLogic, prefix string) *Router {
	if device == nil {
		device = NopDevice{}
	}
	return &Router{device: device, prefix: prefix}
}

// Route classifies payload and forwards it when it is not the marker
func (r *Router) Route(payload string) Route {
	if codec.IsPhoneUserNotification(payload) {
		return RouteKeyExchange
	}
	logger.Trace(r.prefix, "forwarding %s", payload)
	r.device.OnNotify(payload)
	return RouteForwarded
}
