package stats

import (
	"strings"
	"sync"
)

// Pointer references the most recent game (or ascension) seen for a key.
// EndTime resolves "most recent" across repeated updates.
type Pointer struct {
	URL     string
	EndTime int64
}

type key struct {
	Variant string
	Player  string // lowercased
}

// pointers holds one last-game or last-ascension index at all of its
// granularities simultaneously.
type pointers struct {
	global          Pointer
	globalSet       bool
	byVariant       map[string]Pointer
	byPlayer        map[string]Pointer
	byVariantPlayer map[key]Pointer
}

func newPointers() pointers {
	return pointers{
		byVariant:       make(map[string]Pointer),
		byPlayer:        make(map[string]Pointer),
		byVariantPlayer: make(map[key]Pointer),
	}
}

// update stores p under every granularity, keeping the max-EndTime record
func (idx *pointers) update(variant, player string, p Pointer) {
	if !idx.globalSet || p.EndTime >= idx.global.EndTime {
		idx.global = p
		idx.globalSet = true
	}
	if cur, ok := idx.byVariant[variant]; !ok || p.EndTime >= cur.EndTime {
		idx.byVariant[variant] = p
	}
	if cur, ok := idx.byPlayer[player]; !ok || p.EndTime >= cur.EndTime {
		idx.byPlayer[player] = p
	}
	k := key{variant, player}
	if cur, ok := idx.byVariantPlayer[k]; !ok || p.EndTime >= cur.EndTime {
		idx.byVariantPlayer[k] = p
	}
}

// lookup resolves the narrowest granularity matching the given arguments.
// Empty variant and player fall back to wider keys.
func (idx *pointers) lookup(variant, player string) (Pointer, bool) {
	switch {
	case variant != "" && player != "":
		p, ok := idx.byVariantPlayer[key{variant, player}]
		return p, ok
	case player != "":
		p, ok := idx.byPlayer[player]
		return p, ok
	case variant != "":
		p, ok := idx.byVariant[variant]
		return p, ok
	default:
		return idx.global, idx.globalSet
	}
}

// Store owns the in-memory aggregates built from every completed game:
// last-game and last-ascension pointers, per-variant ascension tallies,
// per-variant per-player game counts, and streak state. Mutations assume
// exactly-once delivery from the tailer; the store performs no dedup.
// All methods are safe for concurrent use (one tailer goroutine per file).
type Store struct {
	mu         sync.RWMutex
	lastGame   pointers
	lastAsc    pointers
	tallies    map[string]map[string]map[string]int64 // variant → player → bucket → count
	ascTotals  map[key]int64
	gameCounts map[key]int64
	current    map[key]Streak
	longest    map[key]Streak
}

// NewStore creates an empty aggregate store
func NewStore() *Store {
	return &Store{
		lastGame:   newPointers(),
		lastAsc:    newPointers(),
		tallies:    make(map[string]map[string]map[string]int64),
		ascTotals:  make(map[key]int64),
		gameCounts: make(map[key]int64),
		current:    make(map[key]Streak),
		longest:    make(map[key]Streak),
	}
}

func mkKey(variant, player string) key {
	return key{Variant: variant, Player: strings.ToLower(player)}
}

// AddGame increments the per-variant per-player game count. Every completed
// game counts, including start-scummed ones.
func (s *Store) AddGame(variant, player string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameCounts[mkKey(variant, player)]++
}

// SetLastGame records the dump URL of a finished game
func (s *Store) SetLastGame(variant, player, url string, endTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGame.update(variant, strings.ToLower(player), Pointer{URL: url, EndTime: endTime})
}

// AddAscension applies the ascension path: category tallies, the
// last-ascension pointer, and (for streak-tracking variants) the streak
// extension. buckets carries the role/race/gender/alignment values of the
// winning character, one per category axis.
func (s *Store) AddAscension(variant, player, url string, startTime, endTime int64, buckets []string, trackStreak bool) {
	k := mkKey(variant, player)

	s.mu.Lock()
	defer s.mu.Unlock()

	byPlayer, ok := s.tallies[variant]
	if !ok {
		byPlayer = make(map[string]map[string]int64)
		s.tallies[variant] = byPlayer
	}
	tally, ok := byPlayer[k.Player]
	if !ok {
		tally = make(map[string]int64)
		byPlayer[k.Player] = tally
	}
	for _, b := range buckets {
		tally[b]++
	}
	s.ascTotals[k]++

	s.lastAsc.update(variant, k.Player, Pointer{URL: url, EndTime: endTime})

	if trackStreak {
		cur, found := s.current[k]
		next := extendStreak(cur, found, startTime, endTime)
		s.current[k] = next
		if betterStreak(next, s.longest[k]) {
			s.longest[k] = next
		}
	}
}

// ResetStreak clears the current streak after a non-ascension terminal
// result. The longest streak is never touched.
func (s *Store) ResetStreak(variant, player string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, mkKey(variant, player))
}

// LastGame resolves the last-game pointer at the narrowest granularity
// matching the given (possibly empty) arguments.
func (s *Store) LastGame(variant, player string) (Pointer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGame.lookup(variant, strings.ToLower(player))
}

// LastAscension resolves the last-ascension pointer like LastGame
func (s *Store) LastAscension(variant, player string) (Pointer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAsc.lookup(variant, strings.ToLower(player))
}

// AscensionTally returns a copy of the player's category buckets for a
// variant and the total number of ascensions.
func (s *Store) AscensionTally(variant, player string) (map[string]int64, int64) {
	k := mkKey(variant, player)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64)
	if byPlayer, ok := s.tallies[variant]; ok {
		for bucket, n := range byPlayer[k.Player] {
			out[bucket] = n
		}
	}
	return out, s.ascTotals[k]
}

// GameCount returns the number of completed games for (variant, player)
func (s *Store) GameCount(variant, player string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameCounts[mkKey(variant, player)]
}

// CurrentStreak returns the player's live streak in a variant, if any
func (s *Store) CurrentStreak(variant, player string) (Streak, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.current[mkKey(variant, player)]
	return st, ok
}

// LongestStreak returns the player's longest-ever streak in a variant
func (s *Store) LongestStreak(variant, player string) (Streak, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.longest[mkKey(variant, player)]
	return st, ok
}
