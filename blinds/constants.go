package blinds

import (
	"time"

	"github.com/google/uuid"

	"github.com/user/motionblinds-ble/wire/gatt"
)

// Motion blinds GATT layout
var (
	ServiceUUID = uuid.MustParse("d973f2e0-b19e-11e2-9e96-0800200c9a66")
	NotifyUUID  = uuid.MustParse("d973f2e1-b19e-11e2-9e96-0800200c9a66")
	WriteUUID   = uuid.MustParse("d973f2e2-b19e-11e2-9e96-0800200c9a66")
	CCCDUUID    = gatt.CCCDUUID
)

const (
	// WantedMTU is the only MTU the handshake accepts before querying
	WantedMTU = 512

	DefaultStateTimeout = 10 * time.Second
	DefaultMaxRetries   = 2
)
