package codec

import "testing"

func TestFormatHexNum(t *testing.T) {
	tests := []struct {
		name     string
		value    uint
		wide     bool
		expected string
	}{
		{"zero narrow", 0, false, "00"},
		{"ten narrow", 10, false, "0a"},
		{"max narrow", 99, false, "63"},
		{"one digit wide", 5, true, "0005"},
		{"two digits wide", 0x12, true, "0012"},
		{"three digits wide", 0x1f4, true, "01f4"},
		{"four digits wide", 0x270f, true, "270f"},
		{"three digits narrow keeps quirk", 0x100, false, "0100"},
		{"four digits narrow passes through", 0x1234, false, "1234"},
		{"five digits wide passes through", 0x12345, true, "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatHexNum(tt.value, tt.wide)
			if got != tt.expected {
				t.Errorf("FormatHexNum(%d, %v) = %q, expected %q", tt.value, tt.wide, got, tt.expected)
			}
		})
	}
}

func TestFormatHexNumNarrowFieldsAreTwoDigits(t *testing.T) {
	for v := uint(0); v <= 99; v++ {
		if got := FormatHexNum(v, false); len(got) != 2 {
			t.Fatalf("FormatHexNum(%d, false) = %q, expected 2 digits", v, got)
		}
	}
	for v := uint(0); v <= 999; v++ {
		if got := FormatHexNum(v, true); len(got) != 4 {
			t.Fatalf("FormatHexNum(%d, true) = %q, expected 4 digits", v, got)
		}
	}
}
