package gamelog

import "strings"

// Sanitize neutralizes player-controlled text before it can reach an
// announcement template or the IRC connection. Control characters (including
// CR/LF, which would let a crafted death reason inject raw protocol lines)
// are dropped; IRC formatting codes fall in the same range. Announcement
// builders additionally pass fields only as typed arguments, never as format
// strings.
func Sanitize(s string) string {
	if !strings.ContainsFunc(s, isUnsafe) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isUnsafe(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUnsafe(r rune) bool {
	return r < 0x20 || r == 0x7f
}
