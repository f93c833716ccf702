// Package irc is the boundary to the chat protocol. The rest of the bot
// depends only on the Conn interface and the Message triple; the actual
// protocol framing and connection management live in the ircevent adapter.
package irc

import (
	"crypto/tls"
	"fmt"

	ircevent "github.com/thoj/go-ircevent"

	"github.com/rs/zerolog/log"
)

// Conn is the outbound chat capability consumed by the core
type Conn interface {
	Privmsg(target, text string)
	Notice(target, text string)
}

// Message is one inbound chat line
type Message struct {
	Sender string
	Target string // channel or our own nick for private messages
	Text   string
}

// Config holds IRC connection settings
type Config struct {
	Server   string
	Nick     string
	User     string
	Channel  string
	UseTLS   bool
	Password string
}

// Client adapts github.com/thoj/go-ircevent to the Conn interface
type Client struct {
	cfg  Config
	conn *ircevent.Connection
}

// NewClient creates an IRC client. onMessage is invoked for every PRIVMSG.
func NewClient(cfg Config, onMessage func(Message)) *Client {
	conn := ircevent.IRC(cfg.Nick, cfg.User)
	conn.UseTLS = cfg.UseTLS
	if cfg.UseTLS {
		conn.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.Password != "" {
		conn.Password = cfg.Password
	}

	conn.AddCallback("001", func(e *ircevent.Event) {
		log.Info().
			Str("server", cfg.Server).
			Str("channel", cfg.Channel).
			Msg("Connected, joining channel")
		conn.Join(cfg.Channel)
	})

	conn.AddCallback("PRIVMSG", func(e *ircevent.Event) {
		if len(e.Arguments) < 2 {
			return
		}
		onMessage(Message{
			Sender: e.Nick,
			Target: e.Arguments[0],
			Text:   e.Message(),
		})
	})

	return &Client{cfg: cfg, conn: conn}
}

// Connect connects to the server and starts the event loop in the
// background (the ircevent loop reconnects on its own).
func (c *Client) Connect() error {
	if err := c.conn.Connect(c.cfg.Server); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Server, err)
	}
	go c.conn.Loop()
	return nil
}

// Privmsg sends a message to a channel or nick
func (c *Client) Privmsg(target, text string) {
	c.conn.Privmsg(target, text)
}

// Notice sends a notice to a channel or nick
func (c *Client) Notice(target, text string) {
	c.conn.Notice(target, text)
}

// Close disconnects from the server
func (c *Client) Close() {
	c.conn.Quit()
}
