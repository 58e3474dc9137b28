package gatt

import (
	"errors"
	"testing"
)

func TestCCCDEncodeDecode(t *testing.T) {
	tests := []struct {
		name            string
		notifyEnabled   bool
		indicateEnabled bool
		expectedValue   uint16
	}{
		{"both disabled", false, false, CCCDNotificationsDisabled},
		{"notifications enabled", true, false, CCCDNotificationsEnabled},
		{"indications enabled", false, true, CCCDIndicationsEnabled},
		{"both enabled", true, true, CCCDNotificationsEnabled | CCCDIndicationsEnabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cccdValue := EncodeCCCDValue(tt.notifyEnabled, tt.indicateEnabled)
			if len(cccdValue) != 2 {
				t.Fatalf("Expected CCCD value length 2, got %d", len(cccdValue))
			}

			value := uint16(cccdValue[0]) | (uint16(cccdValue[1]) << 8)
			if value != tt.expectedValue {
				t.Errorf("Expected CCCD value 0x%04X, got 0x%04X", tt.expectedValue, value)
			}

			notify, indicate, err := DecodeCCCDValue(cccdValue)
			if err != nil {
				t.Fatalf("DecodeCCCDValue failed: %v", err)
			}
			if notify != tt.notifyEnabled || indicate != tt.indicateEnabled {
				t.Errorf("Expected notify=%v indicate=%v, got %v %v",
					tt.notifyEnabled, tt.indicateEnabled, notify, indicate)
			}
		})
	}
}

func TestEnableNotificationsValueIsLittleEndianOne(t *testing.T) {
	v := EnableNotificationsValue()
	if len(v) != 2 || v[0] != 0x01 || v[1] != 0x00 {
		t.Errorf("Expected [01 00], got % X", v)
	}
}

func TestCCCDDecodeInvalidLength(t *testing.T) {
	invalidValues := [][]byte{
		{},
		{0x01},
		{0x01, 0x00, 0x00},
	}

	for _, val := range invalidValues {
		_, _, err := DecodeCCCDValue(val)
		if !errors.Is(err, ErrInvalidAttributeValueLength) {
			t.Errorf("Expected invalid length error for %d bytes, got %v", len(val), err)
		}
	}
}

func TestCCCDManagerSubscriptions(t *testing.T) {
	cm := NewCCCDManager()
	handle := uint16(0x0010)

	if err := cm.SetSubscription(handle, EnableNotificationsValue()); err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}
	if !cm.IsNotifyEnabled(handle) {
		t.Error("Expected notifications to be enabled")
	}

	if err := cm.SetSubscription(handle, EncodeCCCDValue(false, true)); err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}
	if cm.IsNotifyEnabled(handle) {
		t.Error("Expected notifications to be disabled after switching to indications")
	}
	if cm.Count() != 1 {
		t.Errorf("Expected 1 subscription, got %d", cm.Count())
	}

	if err := cm.SetSubscription(handle, EncodeCCCDValue(false, false)); err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}
	if cm.Count() != 0 {
		t.Errorf("Expected disabling both to remove the subscription, got %d", cm.Count())
	}

	cm.SetSubscription(0x0020, EnableNotificationsValue())
	cm.Clear()
	if cm.IsNotifyEnabled(0x0020) {
		t.Error("Expected Clear to drop all subscriptions")
	}
}
