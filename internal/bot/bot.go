package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/beholderbot/beholder/internal/announce"
	"github.com/beholderbot/beholder/internal/config"
	"github.com/beholderbot/beholder/internal/gamelog"
	"github.com/beholderbot/beholder/internal/irc"
	"github.com/beholderbot/beholder/internal/peer"
	"github.com/beholderbot/beholder/internal/stats"
	"github.com/beholderbot/beholder/internal/store"
	"github.com/beholderbot/beholder/internal/tailer"
	"github.com/beholderbot/beholder/internal/turncount"
	"github.com/beholderbot/beholder/internal/variant"
)

const (
	housekeepInterval = time.Hour
	mailTTL           = 30 * 24 * time.Hour
	maxMailPerBox     = 16
	limiterIdleAge    = 2 * time.Hour
)

// Bot ties the ingestion pipeline to the chat surface: tailers feed the
// announcer, announcements go to the channel, and inbound commands query
// the aggregate store locally or across peers.
type Bot struct {
	cfg      *config.Config
	conn     irc.Conn
	table    *variant.Table
	stats    *stats.Store
	filter   *turncount.Filter
	ann      *announce.Announcer
	coord    *peer.Coordinator
	mail     store.MailStore
	limiter  *rateLimiter
	tailers  []*tailer.Tailer
	handlers map[string]handler
}

// New wires a bot from its collaborators. The coordinator is created here
// because the bot itself is its transport and executor.
func New(cfg *config.Config, conn irc.Conn, table *variant.Table, st *stats.Store,
	filter *turncount.Filter, ann *announce.Announcer, mail store.MailStore,
	cursors store.CursorStore) *Bot {

	b := &Bot{
		cfg:     cfg,
		conn:    conn,
		table:   table,
		stats:   st,
		filter:  filter,
		ann:     ann,
		mail:    mail,
		limiter: newRateLimiter(),
	}

	b.coord = peer.New(cfg.IRCNick, cfg.Peers, transportFunc(b.sendToPeer),
		b.execLocal, cfg.QueryTimeout, cfg.MaxPending)
	b.handlers = b.newHandlers()

	for _, id := range table.IDs() {
		v, _ := table.Get(id)
		if v.Xlog != nil {
			src := tailer.Source{
				Path:    v.Xlog.Path,
				Delim:   v.Xlog.Delimiter(),
				Kind:    tailer.SourceGame,
				Variant: id,
			}
			b.tailers = append(b.tailers, tailer.New(src, cursors, b.onRecord))
		}
		if v.Livelog != nil {
			src := tailer.Source{
				Path:    v.Livelog.Path,
				Delim:   v.Livelog.Delimiter(),
				Kind:    tailer.SourceLive,
				Variant: id,
			}
			b.tailers = append(b.tailers, tailer.New(src, cursors, b.onRecord))
		}
	}

	return b
}

// transportFunc adapts a function to the peer.Transport interface
type transportFunc func(peerNick, line string) error

func (f transportFunc) SendToPeer(peerNick, line string) error {
	return f(peerNick, line)
}

func (b *Bot) sendToPeer(peerNick, line string) error {
	b.conn.Privmsg(peerNick, line)
	return nil
}

// Run starts one tailer goroutine per monitored file plus the hourly
// housekeeping tick, and blocks until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	log.Info().
		Int("tailers", len(b.tailers)).
		Int("peers", len(b.cfg.Peers)).
		Msg("Bot starting")

	var wg sync.WaitGroup
	for _, t := range b.tailers {
		wg.Add(1)
		go func(t *tailer.Tailer) {
			defer wg.Done()
			if err := t.Run(ctx, b.cfg.PollInterval); err != nil && err != context.Canceled {
				log.Error().
					Err(err).
					Str("file", t.Source().Path).
					Msg("Tailer stopped")
			}
		}(t)
	}

	housekeeping := time.NewTicker(housekeepInterval)
	defer housekeeping.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-housekeeping.C:
			b.housekeep(ctx)
		}
	}
}

// OnMessage handles one inbound chat line
func (b *Bot) OnMessage(msg irc.Message) {
	ctx := context.Background()

	// Reserved peer-protocol lines never reach ordinary command handling
	if strings.HasPrefix(msg.Text, peer.QueryPrefix) || strings.HasPrefix(msg.Text, peer.ResponsePrefix) {
		if !b.coord.IsPeer(msg.Sender) {
			log.Warn().
				Str("sender", msg.Sender).
				Msg("Peer-protocol line from untrusted sender, dropping")
			return
		}
		if strings.HasPrefix(msg.Text, peer.QueryPrefix) {
			// Relayed !tell lines are fire-and-forget: queue, no response
			fields := strings.Fields(msg.Text)
			if len(fields) >= 6 && fields[3] == "tell" {
				b.acceptRelayedTell(ctx, msg.Sender, fields[2], fields[4], strings.Join(fields[5:], " "))
				return
			}
			b.coord.HandleQuery(msg.Sender, msg.Text)
		} else {
			b.coord.HandleResponse(msg.Sender, msg.Text)
		}
		return
	}

	// Any activity from a recipient flushes their mailbox
	b.deliverMail(ctx, msg.Sender, b.replyTarget(msg))

	if !strings.HasPrefix(msg.Text, "!") {
		return
	}

	if !b.limiter.allow(msg.Sender) {
		log.Debug().
			Str("sender", msg.Sender).
			Msg("Rate limit exceeded, dropping command")
		return
	}

	fields := strings.Fields(msg.Text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	args := fields[1:]

	h, ok := b.handlers[name]
	if !ok {
		return
	}

	tracer := otel.Tracer("bot")
	ctx, span := tracer.Start(ctx, "bot.command")
	defer span.End()

	reply := h.fn(ctx, msg, args)
	if reply != "" {
		b.conn.Privmsg(b.replyTarget(msg), reply)
	}
}

// replyTarget picks the channel for channel messages and the sender for
// private messages.
func (b *Bot) replyTarget(msg irc.Message) string {
	if strings.EqualFold(msg.Target, b.cfg.IRCNick) {
		return msg.Sender
	}
	return msg.Target
}

// onRecord is the tailer handler: classify, update aggregates, announce
func (b *Bot) onRecord(ctx context.Context, src tailer.Source, rec *gamelog.Record, backfill bool) {
	v, ok := b.table.Get(src.Variant)
	if !ok {
		return
	}

	var text string
	var announceIt bool
	if src.Kind == tailer.SourceGame {
		text, announceIt = b.ann.GameResult(ctx, rec, v, backfill)
	} else {
		text, announceIt = b.ann.LiveEvent(ctx, rec, v)
	}

	if announceIt {
		b.conn.Privmsg(b.cfg.IRCChannel, "["+v.Name+"] "+text)
	}
}

// housekeep prunes expired mailbox messages, idle rate-limit entries, and
// any pending query the timeout somehow missed.
func (b *Bot) housekeep(ctx context.Context) {
	pruned := b.pruneMail(ctx)
	idle := b.limiter.prune(limiterIdleAge)
	stale := b.coord.PruneStale(10 * b.cfg.QueryTimeout)

	log.Info().
		Int("mail_pruned", pruned).
		Int("limiters_pruned", idle).
		Int("queries_pruned", stale).
		Msg("Housekeeping complete")
}
