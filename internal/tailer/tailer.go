package tailer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/beholderbot/beholder/internal/gamelog"
	"github.com/beholderbot/beholder/internal/store"
)

// Kind distinguishes completed-game logs from live in-game event logs
type Kind int

const (
	SourceGame Kind = iota // xlogfile: one record per finished game
	SourceLive             // livelog: mid-game milestones
)

// Source describes one monitored log file
type Source struct {
	Path    string
	Delim   byte
	Kind    Kind
	Variant string // canonical variant id
}

// Handler receives each newly parsed record. backfill is true during the
// first-boot catch-up read, when announcements must be suppressed but
// aggregates still updated.
type Handler func(ctx context.Context, src Source, rec *gamelog.Record, backfill bool)

// Tailer incrementally reads one growing log file. The cursor is advanced
// only past fully newline-terminated lines, so an unterminated trailing
// partial line is left for the next poll and every line is delivered
// exactly once across process restarts.
type Tailer struct {
	src     Source
	cursors store.CursorStore
	handler Handler
	stopCh  chan struct{}
}

// New creates a tailer for one log source
func New(src Source, cursors store.CursorStore, handler Handler) *Tailer {
	return &Tailer{
		src:     src,
		cursors: cursors,
		handler: handler,
		stopCh:  make(chan struct{}),
	}
}

// Source returns the tailed source
func (t *Tailer) Source() Source {
	return t.src
}

// Prime performs the first-activation special case. Completed-game logs are
// read from byte 0 in backfill mode so historical aggregates are correct;
// live-event logs start at end-of-file since past live events have no
// lasting aggregate impact. A tailer with a stored cursor is already primed.
func (t *Tailer) Prime(ctx context.Context) error {
	_, found, err := t.cursors.GetCursor(ctx, t.src.Path)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	if found {
		return nil
	}

	if t.src.Kind == SourceGame {
		log.Info().
			Str("file", t.src.Path).
			Str("variant", t.src.Variant).
			Msg("First activation, backfilling completed-game log")
		return t.poll(ctx, true)
	}

	var size int64
	if fi, err := os.Stat(t.src.Path); err == nil {
		size = fi.Size()
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat live log: %w", err)
	}

	log.Info().
		Str("file", t.src.Path).
		Int64("offset", size).
		Msg("First activation, live log cursor set to end of file")
	return t.cursors.SetCursor(ctx, t.src.Path, size)
}

// PollOnce reads all newly appended complete lines and dispatches each
// parsed record. Calling it again with no new bytes has no side effects.
func (t *Tailer) PollOnce(ctx context.Context) error {
	return t.poll(ctx, false)
}

// Run polls the source on a fixed interval until the context is cancelled
// or Stop is called. A failed poll skips the tick; the cursor is untouched
// and the next tick retries.
func (t *Tailer) Run(ctx context.Context, interval time.Duration) error {
	log.Info().
		Str("file", t.src.Path).
		Str("variant", t.src.Variant).
		Dur("interval", interval).
		Msg("Starting tailer")

	if err := t.Prime(ctx); err != nil {
		log.Warn().Err(err).Str("file", t.src.Path).Msg("Failed to prime tailer, will retry from poll loop")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stopCh:
			return nil
		case <-ticker.C:
			if err := t.PollOnce(ctx); err != nil {
				log.Warn().
					Err(err).
					Str("file", t.src.Path).
					Msg("Poll tick failed, retrying next tick")
			}
		}
	}
}

// Stop stops the tailer's poll loop
func (t *Tailer) Stop() {
	close(t.stopCh)
}

func (t *Tailer) poll(ctx context.Context, backfill bool) error {
	tracer := otel.Tracer("tailer")
	ctx, span := tracer.Start(ctx, "tailer.poll")
	span.SetAttributes(
		attribute.String("file", t.src.Path),
		attribute.Bool("backfill", backfill),
	)
	defer span.End()

	offset, _, err := t.cursors.GetCursor(ctx, t.src.Path)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	file, err := os.Open(t.src.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // file not created yet
		}
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if offset > stat.Size() {
		// The file shrank. Logs are append-only by contract, so treat this
		// as a replaced file and skip to its end rather than re-announce.
		log.Warn().
			Str("file", t.src.Path).
			Int64("cursor", offset).
			Int64("size", stat.Size()).
			Msg("Log file shrank below cursor, clamping to end of file")
		offset = stat.Size()
		if err := t.cursors.SetCursor(ctx, t.src.Path, offset); err != nil {
			return err
		}
		return nil
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to cursor: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	pos := offset
	lines := 0

	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// Unterminated trailing partial line: leave it for the next poll
			break
		}
		if err != nil {
			// Persist progress made so far before bailing
			if pos != offset {
				if serr := t.cursors.SetCursor(ctx, t.src.Path, pos); serr != nil {
					log.Warn().Err(serr).Msg("Failed to save cursor")
				}
			}
			return fmt.Errorf("read error: %w", err)
		}

		pos += int64(len(line))
		lines++

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}

		rec := gamelog.ParseLine(trimmed, t.src.Delim)
		rec.Variant = t.src.Variant
		t.handler(ctx, t.src, rec, backfill)
	}

	if pos != offset {
		if err := t.cursors.SetCursor(ctx, t.src.Path, pos); err != nil {
			return fmt.Errorf("failed to save cursor: %w", err)
		}
		log.Debug().
			Str("file", t.src.Path).
			Int("lines", lines).
			Int64("cursor", pos).
			Msg("Poll cycle complete")
	}

	return nil
}
