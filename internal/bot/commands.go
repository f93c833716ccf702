package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/beholderbot/beholder/internal/irc"
	"github.com/beholderbot/beholder/internal/peer"
)

const noGames = "No games found."

type handler struct {
	usage string
	fn    func(ctx context.Context, msg irc.Message, args []string) string
}

// newHandlers builds the name→handler registry. The reserved peer-protocol
// commands are not here: they are routed before command parsing and only
// for configured peer senders.
func (b *Bot) newHandlers() map[string]handler {
	h := map[string]handler{
		"lastgame": {
			usage: "!lastgame [variant] [player]",
			fn:    b.federated("lastgame", peer.PreferFound(noGames)),
		},
		"lastasc": {
			usage: "!lastasc [variant] [player]",
			fn:    b.federated("lastasc", peer.PreferFound(noGames)),
		},
		"asc": {
			usage: "!asc [variant] [player]",
			fn:    b.federated("asc", peer.ConcatNonEmpty(" | ", noGames)),
		},
		"streak": {
			usage: "!streak [variant] [player]",
			fn:    b.federated("streak", peer.ConcatNonEmpty(" | ", "No streaks.")),
		},
		"whereis": {
			usage: "!whereis <player>",
			fn:    b.federated("whereis", peer.ConcatNonEmpty(" | ", "Player not found.")),
		},
		"players": {
			usage: "!players",
			fn:    b.federated("players", peer.ConcatNonEmpty(" | ", "No current players.")),
		},
		"setmintc": {
			usage: "!setmintc [turncount] (admins: !setmintc <player> <turncount>)",
			fn:    b.setmintcCmd,
		},
		"tell": {
			usage: "!tell <player> <message>",
			fn:    b.tellCmd,
		},
	}
	h["who"] = h["players"]
	return h
}

// federated wraps a read command: standalone processes answer from local
// state; federated ones fan out through the coordinator and reply when the
// merge callback fires.
func (b *Bot) federated(cmd string, merge peer.Merge) func(context.Context, irc.Message, []string) string {
	return func(ctx context.Context, msg irc.Message, args []string) string {
		args = b.defaultPlayer(cmd, msg.Sender, args)
		if err := validateQuery(cmd, args); err != nil {
			return b.handlers[cmd].usage
		}

		if !b.coord.HasPeers() {
			if text := b.execLocal(cmd, args); text != "" {
				return text
			}
			return merge(nil)
		}

		target := b.replyTarget(msg)
		err := b.coord.Dispatch(msg.Sender, cmd, args,
			func(a []string) error { return validateQuery(cmd, a) },
			merge,
			func(text string) { b.conn.Privmsg(target, text) },
		)
		if err == peer.ErrBusy {
			return "Too many queries in flight, try again later."
		}
		if err != nil {
			return b.handlers[cmd].usage
		}
		return "" // reply arrives via the merge callback
	}
}

// defaultPlayer fills in the sender for per-player commands invoked
// without an explicit player argument.
func (b *Bot) defaultPlayer(cmd, sender string, args []string) []string {
	if cmd != "asc" && cmd != "streak" {
		return args
	}
	_, player := b.parseVariantPlayer(args)
	if player != "" {
		return args
	}
	return append(append([]string{}, args...), sender)
}

// validateQuery runs synchronously before any fan-out
func validateQuery(cmd string, args []string) error {
	switch cmd {
	case "whereis":
		if len(args) != 1 {
			return fmt.Errorf("whereis takes exactly one player")
		}
	case "players":
		if len(args) != 0 {
			return fmt.Errorf("players takes no arguments")
		}
	case "lastgame", "lastasc", "asc", "streak":
		if len(args) > 2 {
			return fmt.Errorf("too many arguments")
		}
	}
	return nil
}

// execLocal serves a named read command against local state. It is also the
// coordinator's executor for queries arriving from other peers. An empty
// result means "nothing here"; merges turn that into the fallback text.
func (b *Bot) execLocal(cmd string, args []string) string {
	switch cmd {
	case "lastgame":
		variantID, player := b.parseVariantPlayer(args)
		if p, ok := b.stats.LastGame(variantID, player); ok {
			return p.URL
		}
	case "lastasc":
		variantID, player := b.parseVariantPlayer(args)
		if p, ok := b.stats.LastAscension(variantID, player); ok {
			return p.URL
		}
	case "asc":
		variantID, player := b.parseVariantPlayer(args)
		return b.ascLocal(variantID, player)
	case "streak":
		variantID, player := b.parseVariantPlayer(args)
		return b.streakLocal(variantID, player)
	case "whereis":
		if len(args) == 1 {
			return b.whereisLocal(args[0])
		}
	case "players":
		return b.playersLocal()
	default:
		log.Debug().Str("cmd", cmd).Msg("Unknown peer query command")
	}
	return ""
}

// parseVariantPlayer splits optional [variant] [player] arguments. The first
// argument is treated as a variant only if it resolves as one, so a bare
// player name works too.
func (b *Bot) parseVariantPlayer(args []string) (variantID, player string) {
	rest := args
	if len(rest) > 0 {
		if v, ok := b.table.Resolve(rest[0]); ok {
			variantID = v.ID
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		player = rest[0]
	}
	return variantID, player
}

// ascLocal renders the ascension tally for a player, per variant or summed
func (b *Bot) ascLocal(variantID, player string) string {
	if player == "" {
		return ""
	}

	if variantID != "" {
		tally, total := b.stats.AscensionTally(variantID, player)
		if total == 0 {
			return ""
		}
		return fmt.Sprintf("%s has ascended %d times in %s (%s)",
			player, total, variantID, formatTally(tally))
	}

	var grand int64
	var parts []string
	ids := b.table.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		if _, total := b.stats.AscensionTally(id, player); total > 0 {
			grand += total
			parts = append(parts, fmt.Sprintf("%s: %d", id, total))
		}
	}
	if grand == 0 {
		return ""
	}
	return fmt.Sprintf("%s has ascended %d times (%s)", player, grand, strings.Join(parts, ", "))
}

// formatTally renders category buckets, most frequent first
func formatTally(tally map[string]int64) string {
	type bucket struct {
		name string
		n    int64
	}
	buckets := make([]bucket, 0, len(tally))
	for name, n := range tally {
		buckets = append(buckets, bucket{name, n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].n != buckets[j].n {
			return buckets[i].n > buckets[j].n
		}
		return buckets[i].name < buckets[j].name
	})

	parts := make([]string, 0, len(buckets))
	for _, bk := range buckets {
		parts = append(parts, fmt.Sprintf("%dx%s", bk.n, bk.name))
	}
	return strings.Join(parts, " ")
}

// streakLocal renders current and longest streaks for a player
func (b *Bot) streakLocal(variantID, player string) string {
	if player == "" {
		return ""
	}

	ids := []string{variantID}
	if variantID == "" {
		ids = b.table.IDs()
		sort.Strings(ids)
	}

	var parts []string
	for _, id := range ids {
		cur, hasCur := b.stats.CurrentStreak(id, player)
		best, hasBest := b.stats.LongestStreak(id, player)
		switch {
		case hasCur && hasBest:
			parts = append(parts, fmt.Sprintf("%s in %s: current streak %d, longest %d",
				player, id, cur.Length, best.Length))
		case hasBest:
			parts = append(parts, fmt.Sprintf("%s in %s: no current streak, longest %d",
				player, id, best.Length))
		}
	}
	return strings.Join(parts, " | ")
}

// setmintcCmd sets or reports the sender's minimum-turncount threshold.
// Administrators may set it for anyone.
func (b *Bot) setmintcCmd(ctx context.Context, msg irc.Message, args []string) string {
	switch len(args) {
	case 0:
		if threshold, ok := b.filter.Threshold(ctx, msg.Sender); ok {
			return fmt.Sprintf("%s: your minimum turncount is %d.", msg.Sender, threshold)
		}
		return fmt.Sprintf("%s: you have no minimum turncount set.", msg.Sender)

	case 1:
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return b.handlers["setmintc"].usage
		}
		if err := b.filter.Set(ctx, msg.Sender, n); err != nil {
			log.Error().Err(err).Str("player", msg.Sender).Msg("Failed to store turncount")
			return "Could not save your setting, try again later."
		}
		if n <= 0 {
			return fmt.Sprintf("%s: minimum turncount cleared.", msg.Sender)
		}
		return fmt.Sprintf("%s: minimum turncount set to %d.", msg.Sender, n)

	case 2:
		if !b.cfg.IsAdmin(msg.Sender) {
			return "Only administrators may set another player's turncount."
		}
		player := args[0]
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return b.handlers["setmintc"].usage
		}
		if err := b.filter.Set(ctx, player, n); err != nil {
			log.Error().Err(err).Str("player", player).Msg("Failed to store turncount")
			return "Could not save the setting, try again later."
		}
		return fmt.Sprintf("Minimum turncount for %s set to %d.", player, n)

	default:
		return b.handlers["setmintc"].usage
	}
}
