package gamelog

import "time"

// UnknownCode is substituted for role/race/gender/alignment codes absent
// from legacy-format log lines.
const UnknownCode = "???"

// Record represents a single parsed xlogfile or livelog line.
// Common fields are typed; variant-specific keys land in Extra.
type Record struct {
	// Identity
	Variant  string
	Player   string // "name" field
	CharName string // "charname", optional

	// Character codes (3-letter; UnknownCode when absent)
	Role   string
	Race   string
	Gender string
	Align  string

	// Numeric fields
	Points   int64
	Turns    int64
	DeathLev int64
	MaxLvl   int64
	HP       int64
	MaxHP    int64
	ExpLevel int64

	// Timestamps (unix seconds)
	StartTime int64
	EndTime   int64
	CurTime   int64

	Realtime time.Duration

	// Outcome
	Death string // death/outcome description, prefix determines classification
	Mode  string // game mode ("normal" when absent)

	// Bit-set fields
	Conduct uint64
	Achieve uint64

	// Raw line for forensics
	RawLine string

	// All other keys, sanitized values
	Extra map[string]string
}

// Ascended reports whether the record describes a won game
func (r *Record) Ascended() bool {
	return hasPrefix(r.Death, "ascended")
}

// Has reports whether an extra key is present and non-empty
func (r *Record) Has(key string) bool {
	return r.Extra[key] != ""
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
