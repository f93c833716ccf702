package announce

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/beholderbot/beholder/internal/gamelog"
	"github.com/beholderbot/beholder/internal/variant"
)

// NoDump is the placeholder used when no dump log can be resolved
const NoDump = "(no dump exists)"

// Resolver derives public dump-log URLs from per-variant templates. When the
// artifact is missing locally it falls back to the remote-storage template;
// when neither is configured it yields the NoDump placeholder. It never
// errors and never performs network I/O: resolution runs inside the poll
// loop's completed-game path, once per record, including full-history
// backfill, so a remote round trip here would stall ingestion. The remote
// template is trusted the same way the public one is.
type Resolver struct{}

// NewResolver creates a dump-log URL resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// DumpURL resolves the dump-log URL for one completed game. Resolution is
// deterministic: the same record yields the same URL whether it arrives via
// backfill or a live poll.
func (r *Resolver) DumpURL(ctx context.Context, rec *gamelog.Record, v *variant.Variant) string {
	if v.DumpURL == "" {
		return NoDump
	}

	public := fillTemplate(v.DumpURL, rec, v)

	// Without a local path template there is nothing to verify against
	if v.DumpLocal == "" {
		return public
	}

	local := fillTemplate(v.DumpLocal, rec, v)
	if _, err := os.Stat(local); err == nil {
		return public
	}

	if v.RemoteURL != "" {
		return fillTemplate(v.RemoteURL, rec, v)
	}

	return NoDump
}

// fillTemplate substitutes record fields into a URL or path template.
// Recognized placeholders: {player}, {variant}, {starttime}, {endtime},
// {turns}. Player names are already sanitized by the parser.
func fillTemplate(tmpl string, rec *gamelog.Record, v *variant.Variant) string {
	replacer := strings.NewReplacer(
		"{player}", rec.Player,
		"{variant}", v.ID,
		"{starttime}", strconv.FormatInt(rec.StartTime, 10),
		"{endtime}", strconv.FormatInt(rec.EndTime, 10),
		"{turns}", strconv.FormatInt(rec.Turns, 10),
	)
	return replacer.Replace(tmpl)
}
