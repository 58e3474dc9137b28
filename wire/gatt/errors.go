package gatt

import "fmt"

// Error is a GATT operation failure carrying an ATT error code
type Error struct {
	Code        uint8
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (0x%02X)", e.Description, e.Code)
}

// ATT error codes (Bluetooth Core Spec v5.3 Vol 3, Part F, 3.4.1.1) used by
// the transports.
var (
	ErrInvalidHandle               = &Error{Code: 0x01, Description: "Invalid Handle"}
	ErrWriteNotPermitted           = &Error{Code: 0x03, Description: "Write Not Permitted"}
	ErrRequestNotSupported         = &Error{Code: 0x06, Description: "Request Not Supported"}
	ErrInvalidAttributeValueLength = &Error{Code: 0x0D, Description: "Invalid Attribute Value Length"}
	ErrUnlikelyError               = &Error{Code: 0x0E, Description: "Unlikely Error"}
	ErrCCCDImproperlyConfigured    = &Error{Code: 0xFD, Description: "CCCD Improperly Configured"}
)
