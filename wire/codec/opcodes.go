package codec

import "strings"

// Command opcodes understood by the blind. Every raw command starts with one.
const (
	OpcodeUserQuery  = "02C005"
	OpcodeSetUserKey = "02C001"
	OpcodeSetTime    = "09A001"
)

// NotifyPhoneUser is the prefix of the notification the blind sends after a
// user query; it asks the phone to present its user key.
const NotifyPhoneUser = "0cc0060505"

// MatchesOpcode reports whether raw was built from the given opcode.
func MatchesOpcode(raw, opcode string) bool {
	return strings.HasPrefix(raw, opcode)
}

// IsPhoneUserNotification reports whether a decrypted notification is the
// phone-user marker.
func IsPhoneUserNotification(payload string) bool {
	return strings.HasPrefix(payload, NotifyPhoneUser)
}

// OpcodeName returns a human readable name for logs
func OpcodeName(opcode string) string {
	switch {
	case MatchesOpcode(opcode, OpcodeUserQuery):
		return "UserQuery"
	case MatchesOpcode(opcode, OpcodeSetUserKey):
		return "SetUserKey"
	case MatchesOpcode(opcode, OpcodeSetTime):
		return "SetTime"
	default:
		return "Unknown"
	}
}
