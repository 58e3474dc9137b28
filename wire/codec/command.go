package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownOpcode    = errors.New("codec: unknown opcode")
	ErrMalformedCommand = errors.New("codec: malformed command")
)

const (
	opcodeLen       = 6
	timeSuffixLen   = 6*2 + 4 // yy MM dd hh mm ss + 4 digit milliseconds
	setTimeFieldLen = 7 * 2   // wd hh mm ss yy MM dd
)

// BuildCommand appends the generic timestamp to opcode:
// year%100, month, day, hour, minute, second as two hex digits each and the
// milliseconds as four. Out of range fields are clamped so the suffix is
// always sixteen digits.
func BuildCommand(opcode string, ts Timestamp) string {
	var b strings.Builder
	b.Grow(len(opcode) + timeSuffixLen)
	b.WriteString(opcode)
	b.WriteString(FormatHexNum(field(ts.Year%100, 0, 99), false))
	b.WriteString(FormatHexNum(field(ts.Month, 1, 12), false))
	b.WriteString(FormatHexNum(field(ts.Day, 1, 31), false))
	b.WriteString(FormatHexNum(field(ts.Hour, 0, 23), false))
	b.WriteString(FormatHexNum(field(ts.Minute, 0, 59), false))
	b.WriteString(FormatHexNum(field(ts.Second, 0, 59), false))
	b.WriteString(FormatHexNum(field(ts.Millisecond, 0, 999), true))
	return b.String()
}

// BuildSetTimeCommand builds the set-time body. The blind wants the zero based
// weekday first and the date after the time of day, unlike the generic layout.
// Weekday is taken as 1..7 (Sunday is 1); anything outside is clamped.
func BuildSetTimeCommand(ts Timestamp) string {
	var b strings.Builder
	b.Grow(opcodeLen + setTimeFieldLen)
	b.WriteString(OpcodeSetTime)
	b.WriteString(FormatHexNum(field(ts.Weekday, 1, 7)-1, false))
	b.WriteString(FormatHexNum(field(ts.Hour, 0, 23), false))
	b.WriteString(FormatHexNum(field(ts.Minute, 0, 59), false))
	b.WriteString(FormatHexNum(field(ts.Second, 0, 59), false))
	b.WriteString(FormatHexNum(field(ts.Year%100, 0, 99), false))
	b.WriteString(FormatHexNum(field(ts.Month, 1, 12), false))
	b.WriteString(FormatHexNum(field(ts.Day, 1, 31), false))
	return b.String()
}

// field clamps v to [lo, hi]. A negative value would otherwise wrap to a
// sixteen digit hex number.
func field(v, lo, hi int) uint {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint(v)
}

// PendingCommand is the single command awaiting a write acknowledgment.
// Sending another command replaces it.
type PendingCommand struct {
	Opcode  string // opcode the command was built from
	Raw     string // full unencrypted command, timestamp included
	Payload []byte // encrypted bytes handed to the transport
}

// Matches reports whether the pending command was built from opcode.
// A nil pending command matches nothing.
func (p *PendingCommand) Matches(opcode string) bool {
	return p != nil && MatchesOpcode(p.Raw, opcode)
}

func (p *PendingCommand) String() string {
	if p == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s(%s)", OpcodeName(p.Opcode), p.Raw)
}

// Command is a decoded raw command.
type Command struct {
	Opcode string
	// SetTime holds the clock carried by a set-time command. Year is
	// reconstructed as 2000 + yy; Millisecond is always zero.
	SetTime *Timestamp
	// Sent is the generic timestamp every command ends with.
	Sent Timestamp
}

// ParseCommand decodes a raw command built by BuildCommand, possibly wrapping
// a set-time body.
func ParseCommand(raw string) (Command, error) {
	if len(raw) < opcodeLen {
		return Command{}, fmt.Errorf("%w: %q too short", ErrMalformedCommand, raw)
	}

	cmd := Command{Opcode: strings.ToUpper(raw[:opcodeLen])}
	rest := raw[opcodeLen:]

	switch cmd.Opcode {
	case OpcodeUserQuery, OpcodeSetUserKey:
	case OpcodeSetTime:
		if len(rest) < setTimeFieldLen {
			return Command{}, fmt.Errorf("%w: set-time body %q too short", ErrMalformedCommand, rest)
		}
		fields, err := parseFields(rest[:setTimeFieldLen], 7)
		if err != nil {
			return Command{}, err
		}
		cmd.SetTime = &Timestamp{
			Weekday: fields[0] + 1,
			Hour:    fields[1],
			Minute:  fields[2],
			Second:  fields[3],
			Year:    2000 + fields[4],
			Month:   fields[5],
			Day:     fields[6],
		}
		rest = rest[setTimeFieldLen:]
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownOpcode, cmd.Opcode)
	}

	// Block ciphers leave zero padding behind the timestamp
	if len(rest) < timeSuffixLen || strings.Trim(rest[timeSuffixLen:], "0") != "" {
		return Command{}, fmt.Errorf("%w: timestamp %q has %d digits, want %d",
			ErrMalformedCommand, rest, len(rest), timeSuffixLen)
	}
	fields, err := parseFields(rest[:12], 6)
	if err != nil {
		return Command{}, err
	}
	ms, err := strconv.ParseUint(rest[12:timeSuffixLen], 16, 16)
	if err != nil {
		return Command{}, fmt.Errorf("%w: milliseconds %q: %v", ErrMalformedCommand, rest[12:timeSuffixLen], err)
	}

	cmd.Sent = Timestamp{
		Year:        2000 + fields[0],
		Month:       fields[1],
		Day:         fields[2],
		Hour:        fields[3],
		Minute:      fields[4],
		Second:      fields[5],
		Millisecond: int(ms),
	}
	return cmd, nil
}

func parseFields(s string, n int) ([]int, error) {
	fields := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q: %v", ErrMalformedCommand, i, s[i*2:i*2+2], err)
		}
		fields[i] = int(v)
	}
	return fields, nil
}
