package announce

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/beholderbot/beholder/internal/gamelog"
	"github.com/beholderbot/beholder/internal/stats"
	"github.com/beholderbot/beholder/internal/turncount"
	"github.com/beholderbot/beholder/internal/variant"
)

// startScumPoints is the threshold below which a quit/escaped game counts
// as start-scummed: it still bumps the game count but touches no other
// aggregate and is never announced.
const startScumPoints = 1000

var errMissingField = fmt.Errorf("required field missing")

// Announcer classifies parsed records, applies the aggregate updates they
// imply, and renders announcement text. A record that cannot be rendered is
// logged and skipped; the tailer's poll loop never sees an error from here.
type Announcer struct {
	stats    *stats.Store
	filter   *turncount.Filter
	resolver *Resolver
}

// New creates an announcer over the given aggregate store and filter
func New(st *stats.Store, filter *turncount.Filter, resolver *Resolver) *Announcer {
	return &Announcer{
		stats:    st,
		filter:   filter,
		resolver: resolver,
	}
}

// GameResult processes one completed-game record: updates aggregates and,
// unless suppressed (backfill, start-scum, or turncount filter), returns the
// announcement line. Aggregate updates are identical with and without
// backfill; only the text is withheld.
func (a *Announcer) GameResult(ctx context.Context, rec *gamelog.Record, v *variant.Variant, backfill bool) (string, bool) {
	if rec.Player == "" || rec.Death == "" {
		log.Debug().
			Str("variant", v.ID).
			Str("line", truncate(rec.RawLine, 120)).
			Msg("Game record missing name or death field, skipping")
		return "", false
	}

	a.stats.AddGame(v.ID, rec.Player)

	// Start-scum exclusion happens before any pointer update
	if (rec.Death == "quit" || rec.Death == "escaped") && rec.Points < startScumPoints {
		return "", false
	}

	url := a.resolver.DumpURL(ctx, rec, v)
	a.stats.SetLastGame(v.ID, rec.Player, url, rec.EndTime)

	ascended := rec.Ascended()
	if ascended {
		buckets := []string{rec.Role, rec.Race, rec.Gender, rec.Align}
		a.stats.AddAscension(v.ID, rec.Player, url, rec.StartTime, rec.EndTime, buckets, v.Streaks)
	} else {
		a.stats.ResetStreak(v.ID, rec.Player)
	}

	if backfill {
		return "", false
	}

	// An ascension is always worth announcing, whatever the player prefers
	if !ascended && a.filter.Suppressed(ctx, rec.Player, rec.Turns) {
		return "", false
	}

	text, err := buildGameText(rec, v, url)
	if err != nil {
		log.Warn().
			Err(err).
			Str("variant", v.ID).
			Str("player", rec.Player).
			Msg("Cannot render game announcement, skipping record")
		return "", false
	}
	return text, true
}

// LiveEvent processes one livelog record and returns the announcement for
// the first matching sub-case, if any. Live events never touch aggregates.
func (a *Announcer) LiveEvent(ctx context.Context, rec *gamelog.Record, v *variant.Variant) (string, bool) {
	if rec.Player == "" {
		return "", false
	}
	if a.filter.Suppressed(ctx, rec.Player, rec.Turns) {
		return "", false
	}

	text, err := buildLiveText(rec, v)
	if err != nil {
		if err != errNoLiveEvent {
			log.Warn().
				Err(err).
				Str("variant", v.ID).
				Str("player", rec.Player).
				Msg("Cannot render live event, skipping record")
		}
		return "", false
	}
	return text, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
