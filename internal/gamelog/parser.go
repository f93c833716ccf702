package gamelog

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// numericKeys lists xlogfile keys parsed as integers.
// A value that fails to parse degrades to 0 rather than failing the line.
var numericKeys = map[string]bool{
	"points":    true,
	"turns":     true,
	"deathdnum": true,
	"deathlev":  true,
	"maxlvl":    true,
	"hp":        true,
	"maxhp":     true,
	"deaths":    true,
	"deathdate": true,
	"birthdate": true,
	"uid":       true,
	"starttime": true,
	"endtime":   true,
	"curtime":   true,
	"explvl":    true,
	"exp":       true,
}

// bitfieldKeys lists keys carrying bit-set encoded integers. These may
// originate from corrupted save data and go through the strict parser.
var bitfieldKeys = map[string]bool{
	"conduct":      true,
	"achieve":      true,
	"flags":        true,
	"event":        true,
	"carried":      true,
	"mask":         true,
	"tnntachieve0": true,
	"tnntachieve1": true,
	"tnntachieve2": true,
	"tnntachieve3": true,
}

// ParseLine parses one raw log line into a Record. It never fails: malformed
// tokens are skipped, bad numerics degrade to 0, and a line without any
// delimiter yields a Record with at most one field set. String values are
// sanitized before storage because several of them (name, death, wish, shout)
// are player-controlled and later interpolated into announcement text.
func ParseLine(line string, delim byte) *Record {
	rec := &Record{
		RawLine: line,
		Role:    UnknownCode,
		Race:    UnknownCode,
		Gender:  UnknownCode,
		Align:   UnknownCode,
		Mode:    "normal",
		Extra:   make(map[string]string),
	}

	for _, token := range strings.Split(line, string(delim)) {
		eq := strings.IndexByte(token, '=')
		if eq <= 0 {
			continue
		}
		key := token[:eq]
		value := token[eq+1:]
		setField(rec, key, value)
	}

	return rec
}

// setField applies per-key coercion rules and stores the result
func setField(rec *Record, key, value string) {
	switch {
	case key == "realtime":
		secs, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			secs = 0
		}
		rec.Realtime = time.Duration(secs) * time.Second
		return
	case bitfieldKeys[key]:
		n, err := ParseBitField(value)
		if err != nil {
			log.Debug().
				Str("key", key).
				Str("value", value).
				Msg("Unparseable bit-field value, using 0")
			n = 0
		}
		switch key {
		case "conduct":
			rec.Conduct = n
		case "achieve":
			rec.Achieve = n
		default:
			rec.Extra[key] = strconv.FormatUint(n, 10)
		}
		return
	case numericKeys[key]:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			n = 0
		}
		switch key {
		case "points":
			rec.Points = n
		case "turns":
			rec.Turns = n
		case "deathlev":
			rec.DeathLev = n
		case "maxlvl":
			rec.MaxLvl = n
		case "hp":
			rec.HP = n
		case "maxhp":
			rec.MaxHP = n
		case "explvl", "exp":
			rec.ExpLevel = n
		case "starttime":
			rec.StartTime = n
		case "endtime":
			rec.EndTime = n
		case "curtime":
			rec.CurTime = n
		default:
			rec.Extra[key] = strconv.FormatInt(n, 10)
		}
		return
	}

	clean := Sanitize(value)
	switch key {
	// livelogs key the actor as "player", xlogfiles as "name"
	case "name", "player":
		rec.Player = clean
	case "charname":
		rec.CharName = clean
	case "role":
		rec.Role = clean
	case "race":
		rec.Race = clean
	case "gender", "gender0":
		rec.Gender = clean
	case "align", "align0":
		rec.Align = clean
	case "death":
		rec.Death = clean
	case "mode":
		rec.Mode = clean
	case "variant":
		rec.Variant = clean
	default:
		rec.Extra[key] = clean
	}
}
