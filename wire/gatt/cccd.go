package gatt

import (
	"encoding/binary"
	"sync"
)

// CCCD (Client Characteristic Configuration Descriptor) values
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
)

// SubscriptionState is the CCCD state of one characteristic
type SubscriptionState struct {
	Handle          uint16 // Characteristic value handle
	NotifyEnabled   bool
	IndicateEnabled bool
}

// CCCDManager tracks CCCD subscriptions for a single connection.
// State is per connection and is cleared when the connection closes.
type CCCDManager struct {
	mu            sync.RWMutex
	subscriptions map[uint16]*SubscriptionState
}

// NewCCCDManager creates a new CCCD manager for a connection
func NewCCCDManager() *CCCDManager {
	return &CCCDManager{
		subscriptions: make(map[uint16]*SubscriptionState),
	}
}

// SetSubscription applies a 2-byte little-endian CCCD value written by the client
func (cm *CCCDManager) SetSubscription(charHandle uint16, cccdValue []byte) error {
	notify, indicate, err := DecodeCCCDValue(cccdValue)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !notify && !indicate {
		delete(cm.subscriptions, charHandle)
		return nil
	}
	cm.subscriptions[charHandle] = &SubscriptionState{
		Handle:          charHandle,
		NotifyEnabled:   notify,
		IndicateEnabled: indicate,
	}
	return nil
}

// IsNotifyEnabled returns true if notifications are enabled for a characteristic
func (cm *CCCDManager) IsNotifyEnabled(charHandle uint16) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	state, exists := cm.subscriptions[charHandle]
	return exists && state.NotifyEnabled
}

// Clear removes all subscriptions (called when connection is closed)
func (cm *CCCDManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.subscriptions = make(map[uint16]*SubscriptionState)
}

// Count returns the number of active subscriptions
func (cm *CCCDManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.subscriptions)
}

// EncodeCCCDValue converts subscription flags to CCCD value bytes (little-endian)
func EncodeCCCDValue(notifyEnabled, indicateEnabled bool) []byte {
	var value uint16
	if notifyEnabled {
		value |= CCCDNotificationsEnabled
	}
	if indicateEnabled {
		value |= CCCDIndicationsEnabled
	}

	cccdValue := make([]byte, 2)
	binary.LittleEndian.PutUint16(cccdValue, value)
	return cccdValue
}

// EnableNotificationsValue is the CCCD value that turns on notifications only
func EnableNotificationsValue() []byte {
	return EncodeCCCDValue(true, false)
}

// DecodeCCCDValue parses CCCD value bytes to notification/indication flags
func DecodeCCCDValue(cccdValue []byte) (notifyEnabled, indicateEnabled bool, err error) {
	if len(cccdValue) != 2 {
		return false, false, ErrInvalidAttributeValueLength
	}

	value := binary.LittleEndian.Uint16(cccdValue)
	notifyEnabled = (value & CCCDNotificationsEnabled) != 0
	indicateEnabled = (value & CCCDIndicationsEnabled) != 0
	return notifyEnabled, indicateEnabled, nil
}
