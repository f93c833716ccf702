package gamelog

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBitField parses a bit-set encoded integer field. It accepts plain
// decimal, 0x/0X hex, 0o/leading-zero octal and 0b binary literals and
// rejects everything else. These values come from game save data and must
// never be handed to any kind of expression evaluation.
func ParseBitField(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("signed value %q not allowed in bit field", s)
	}

	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bit field %q: %w", s, err)
	}
	return n, nil
}
