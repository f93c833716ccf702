package turncount

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/beholderbot/beholder/internal/store"
)

// Filter is the per-player opt-in suppression rule for low-turncount
// announcements. It gates emission only; aggregate updates never consult it.
type Filter struct {
	store store.TurncountStore
}

// New creates a filter over the given threshold store
func New(s store.TurncountStore) *Filter {
	return &Filter{store: s}
}

// Suppressed reports whether an announcement for the player at the given
// turncount should be dropped. A store error fails open: better a noisy
// channel than a silently eaten announcement.
func (f *Filter) Suppressed(ctx context.Context, player string, turns int64) bool {
	threshold, found, err := f.store.GetTurncount(ctx, player)
	if err != nil {
		log.Warn().
			Err(err).
			Str("player", player).
			Msg("Failed to read turncount threshold")
		return false
	}
	return found && turns < threshold
}

// Threshold returns the player's configured threshold, if any
func (f *Filter) Threshold(ctx context.Context, player string) (int64, bool) {
	threshold, found, err := f.store.GetTurncount(ctx, player)
	if err != nil {
		log.Warn().
			Err(err).
			Str("player", player).
			Msg("Failed to read turncount threshold")
		return 0, false
	}
	return threshold, found
}

// Set stores a threshold for the player. A non-positive value clears it.
func (f *Filter) Set(ctx context.Context, player string, threshold int64) error {
	if threshold <= 0 {
		if err := f.store.DeleteTurncount(ctx, player); err != nil {
			return fmt.Errorf("failed to clear turncount: %w", err)
		}
		return nil
	}
	if err := f.store.SetTurncount(ctx, player, threshold); err != nil {
		return fmt.Errorf("failed to set turncount: %w", err)
	}
	return nil
}
