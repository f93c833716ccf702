package bot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beholderbot/beholder/internal/gamelog"
)

// A whereis file older than this is a finished or abandoned game, not a
// current player.
const whereisFreshness = 10 * time.Minute

// whereisLocal reads the player's whereis file from each variant that keeps
// them. Whereis files use the same key=value format as the logs and go
// through the same parser.
func (b *Bot) whereisLocal(player string) string {
	var parts []string

	ids := b.table.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		v, _ := b.table.Get(id)
		if v.WhereisDir == "" {
			continue
		}

		rec, ok := readWhereis(v.WhereisDir, player)
		if !ok {
			continue
		}

		where := rec.Extra["dname"]
		if where == "" {
			where = "the dungeon"
		}
		depth := rec.Extra["depth"]
		if depth == "" {
			depth = rec.Extra["dlvl"]
		}
		if depth != "" {
			parts = append(parts, fmt.Sprintf("%s (%s): in %s, on level %s, T:%d",
				rec.Player, id, where, depth, rec.Turns))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s): in %s, T:%d",
				rec.Player, id, where, rec.Turns))
		}
	}

	return strings.Join(parts, " | ")
}

// playersLocal lists players with a recently touched whereis file
func (b *Bot) playersLocal() string {
	var parts []string

	ids := b.table.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		v, _ := b.table.Get(id)
		if v.WhereisDir == "" {
			continue
		}

		names := listCurrentPlayers(v.WhereisDir)
		if len(names) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", id, strings.Join(names, " ")))
		}
	}

	return strings.Join(parts, " | ")
}

// readWhereis parses the last line of <dir>/<player>.whereis
func readWhereis(dir, player string) (*gamelog.Record, bool) {
	path := filepath.Join(dir, strings.ToLower(player)+".whereis")

	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(fi.ModTime()) > whereisFreshness {
		return nil, false
	}

	file, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to open whereis file")
		return nil, false
	}
	defer file.Close()

	var last string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil || last == "" {
		return nil, false
	}

	rec := gamelog.ParseLine(last, ':')
	if rec.Player == "" {
		rec.Player = player
	}
	return rec, true
}

// listCurrentPlayers returns the names of fresh whereis files in dir
func listCurrentPlayers(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Failed to read whereis dir")
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".whereis") {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) > whereisFreshness {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".whereis"))
	}
	sort.Strings(names)
	return names
}
