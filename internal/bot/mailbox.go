package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beholderbot/beholder/internal/irc"
	"github.com/beholderbot/beholder/internal/peer"
	"github.com/beholderbot/beholder/internal/store"
)

// tellCmd queues a message for delivery when the recipient next speaks
func (b *Bot) tellCmd(ctx context.Context, msg irc.Message, args []string) string {
	if len(args) < 2 {
		return b.handlers["tell"].usage
	}

	recipient := args[0]
	text := strings.Join(args[1:], " ")

	existing, err := b.mail.GetMessages(ctx, recipient)
	if err != nil {
		log.Error().Err(err).Str("recipient", recipient).Msg("Failed to read mailbox")
		return "Could not queue the message, try again later."
	}
	if len(existing) >= maxMailPerBox {
		return fmt.Sprintf("%s's mailbox is full, try again later.", recipient)
	}

	err = b.mail.AppendMessage(ctx, recipient, store.Message{
		From: msg.Sender,
		At:   time.Now(),
		Text: text,
	})
	if err != nil {
		log.Error().Err(err).Str("recipient", recipient).Msg("Failed to queue message")
		return "Could not queue the message, try again later."
	}

	if b.coord.HasPeers() {
		b.relayTell(msg.Sender, recipient, text)
	}

	return fmt.Sprintf("Will do, %s.", msg.Sender)
}

// relayTell fans a queued message out to the peer processes so the recipient
// can collect it on whichever channel they next speak in. Fire-and-forget
// like the query fan-out: a relay that never arrives just means the message
// stays local. The fixed id "0" marks the line as needing no response.
func (b *Bot) relayTell(sender, recipient, text string) {
	line := fmt.Sprintf("%s 0 %s tell %s %s", peer.QueryPrefix, sender, recipient, text)
	for _, p := range b.cfg.Peers {
		b.conn.Privmsg(p, line)
	}
}

// acceptRelayedTell queues a message relayed by a peer process, recording the
// relaying instance as the forward target. Relayed messages never relay
// onward, so two peers cannot ping-pong a message. A full mailbox drops the
// relay silently; the sender already got their ack from the origin process.
func (b *Bot) acceptRelayedTell(ctx context.Context, relayer, sender, recipient, text string) {
	existing, err := b.mail.GetMessages(ctx, recipient)
	if err != nil || len(existing) >= maxMailPerBox {
		return
	}

	err = b.mail.AppendMessage(ctx, recipient, store.Message{
		From:    sender,
		Forward: relayer,
		At:      time.Now(),
		Text:    text,
	})
	if err != nil {
		log.Warn().Err(err).Str("recipient", recipient).Msg("Failed to queue relayed message")
	}
}

// deliverMail flushes the sender's mailbox into the channel they spoke in.
// Messages are deleted before sending so a send failure can at worst lose a
// message, never duplicate one.
func (b *Bot) deliverMail(ctx context.Context, nick, target string) {
	msgs, err := b.mail.GetMessages(ctx, nick)
	if err != nil {
		log.Warn().Err(err).Str("nick", nick).Msg("Failed to read mailbox")
		return
	}
	if len(msgs) == 0 {
		return
	}

	if err := b.mail.DeleteMessages(ctx, nick); err != nil {
		log.Warn().Err(err).Str("nick", nick).Msg("Failed to clear mailbox, postponing delivery")
		return
	}

	for _, m := range msgs {
		from := m.From
		if m.Forward != "" {
			from = fmt.Sprintf("%s (forwarded by %s)", m.From, m.Forward)
		}
		b.conn.Privmsg(target, fmt.Sprintf("%s: message from %s at %s: %s",
			nick, from, m.At.Format("2006-01-02 15:04"), m.Text))
	}
}

// pruneMail drops messages older than mailTTL and returns how many
func (b *Bot) pruneMail(ctx context.Context) int {
	cutoff := time.Now().Add(-mailTTL)
	pruned := 0

	type rewrite struct {
		recipient string
		keep      []store.Message
	}
	var rewrites []rewrite

	err := b.mail.ForEachRecipient(ctx, func(recipient string, msgs []store.Message) error {
		var keep []store.Message
		for _, m := range msgs {
			if m.At.After(cutoff) {
				keep = append(keep, m)
			}
		}
		if len(keep) != len(msgs) {
			pruned += len(msgs) - len(keep)
			rewrites = append(rewrites, rewrite{recipient, keep})
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Mailbox prune scan failed")
		return 0
	}

	for _, rw := range rewrites {
		if err := b.mail.DeleteMessages(ctx, rw.recipient); err != nil {
			log.Warn().Err(err).Str("recipient", rw.recipient).Msg("Failed to prune mailbox")
			continue
		}
		for _, m := range rw.keep {
			if err := b.mail.AppendMessage(ctx, rw.recipient, m); err != nil {
				log.Warn().Err(err).Str("recipient", rw.recipient).Msg("Failed to requeue message")
			}
		}
	}

	return pruned
}
