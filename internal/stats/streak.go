package stats

// Streak is a consecutive run of ascensions by one player in one variant.
// Start and End are the unix start time of the first game and end time of
// the most recent game in the run.
type Streak struct {
	Start  int64
	End    int64
	Length int
}

// extendStreak returns the streak after one more ascension. A missing
// current streak starts fresh at length 1.
func extendStreak(cur Streak, found bool, start, end int64) Streak {
	if !found {
		return Streak{Start: start, End: end, Length: 1}
	}
	return Streak{Start: cur.Start, End: end, Length: cur.Length + 1}
}

// betterStreak reports whether candidate strictly beats best. Longest-streak
// replacement is by value, so later extensions of the current streak never
// retroactively mutate a stored longest.
func betterStreak(candidate, best Streak) bool {
	return candidate.Length > best.Length
}
