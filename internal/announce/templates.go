package announce

import (
	"fmt"

	"github.com/beholderbot/beholder/internal/gamelog"
	"github.com/beholderbot/beholder/internal/variant"
)

var errNoLiveEvent = fmt.Errorf("no live event field present")

// buildGameText renders a completed-game announcement. The template shapes
// are mutually exclusive: legacy schema (no character codes), compact
// variants, and the full form. Fields reach fmt only as arguments, never as
// format strings, and were sanitized at parse time.
func buildGameText(rec *gamelog.Record, v *variant.Variant, url string) (string, error) {
	if rec.Player == "" || rec.Death == "" {
		return "", errMissingField
	}

	var base string
	switch {
	case v.Legacy || rec.Role == gamelog.UnknownCode:
		base = fmt.Sprintf("%s (%s), %d points, %s",
			rec.Player, v.Name, rec.Points, rec.Death)
	case v.Compact:
		base = fmt.Sprintf("%s (%s %s), %d points, %s",
			rec.Player, rec.Role, rec.Race, rec.Points, rec.Death)
	default:
		base = fmt.Sprintf("%s (%s %s %s %s), %d points, T:%d, %s",
			rec.Player, rec.Role, rec.Race, rec.Gender, rec.Align,
			rec.Points, rec.Turns, rec.Death)
	}

	if rec.Mode != "" && rec.Mode != "normal" {
		base = fmt.Sprintf("[%s] %s", rec.Mode, base)
	}
	if url != "" && url != NoDump {
		base = base + ", " + url
	}
	return base, nil
}

// buildLiveText renders a live in-game event. Sub-cases are checked in fixed
// precedence order; the first present field wins. A present field whose
// template needs a missing companion field is a render failure, not silence.
func buildLiveText(rec *gamelog.Record, v *variant.Variant) (string, error) {
	who := liveWho(rec, v)

	switch {
	case rec.Has("message"):
		return fmt.Sprintf("%s %s, on T:%d",
			who, rec.Extra["message"], rec.Turns), nil

	case rec.Has("wish"):
		return fmt.Sprintf("%s wished for \"%s\", on T:%d",
			who, rec.Extra["wish"], rec.Turns), nil

	case rec.Has("shout"):
		return fmt.Sprintf("%s shouted \"%s\", on T:%d",
			who, rec.Extra["shout"], rec.Turns), nil

	case rec.Has("bones_killed"):
		if !rec.Has("bones_rank") {
			return "", fmt.Errorf("bones kill without bones_rank: %w", errMissingField)
		}
		monster := rec.Extra["bones_monst"]
		if monster == "" {
			monster = "ghost"
		}
		return fmt.Sprintf("%s killed the %s of %s, the former %s, on T:%d",
			who, monster, rec.Extra["bones_killed"], rec.Extra["bones_rank"], rec.Turns), nil

	case rec.Has("killed_uniq"):
		return fmt.Sprintf("%s killed %s, on T:%d",
			who, rec.Extra["killed_uniq"], rec.Turns), nil

	case rec.Has("genocided_monster"):
		return fmt.Sprintf("%s genocided %s, on T:%d",
			who, rec.Extra["genocided_monster"], rec.Turns), nil

	case rec.Has("shoplifted"):
		if !rec.Has("shop") || !rec.Has("shopkeeper") {
			return "", fmt.Errorf("shoplift event without shop fields: %w", errMissingField)
		}
		return fmt.Sprintf("%s stole %s zorkmids of merchandise from the %s of %s, on T:%d",
			who, rec.Extra["shoplifted"], rec.Extra["shop"], rec.Extra["shopkeeper"], rec.Turns), nil

	case rec.Has("killed_shopkeeper"):
		return fmt.Sprintf("%s killed %s the shopkeeper, on T:%d",
			who, rec.Extra["killed_shopkeeper"], rec.Turns), nil
	}

	return "", errNoLiveEvent
}

// liveWho renders the actor prefix of a live event
func liveWho(rec *gamelog.Record, v *variant.Variant) string {
	if rec.Role != gamelog.UnknownCode {
		return fmt.Sprintf("%s (%s %s %s %s)",
			rec.Player, rec.Role, rec.Race, rec.Gender, rec.Align)
	}
	return fmt.Sprintf("%s (%s)", rec.Player, v.Name)
}
