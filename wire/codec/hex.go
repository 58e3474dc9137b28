package codec

import "strconv"

// FormatHexNum renders value as lowercase hex for a command field.
//
// Narrow fields are two digits and wide fields four, except that a three
// digit value is always padded to four. The peripheral firmware expects this
// exact behaviour, so it is kept even though narrow fields never exceed 99 in
// practice. Values needing four or more digits pass through unchanged.
func FormatHexNum(value uint, wide bool) string {
	s := strconv.FormatUint(uint64(value), 16)

	switch {
	case (len(s) == 1 && !wide) || len(s) == 3:
		return "0" + s
	case len(s) == 1:
		return "000" + s
	case len(s) == 2 && wide:
		return "00" + s
	}
	return s
}
