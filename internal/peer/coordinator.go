package peer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Wire prefixes for the two reserved commands carrying the peer protocol.
// They ride the ordinary chat transport but are only accepted from
// configured peer senders.
const (
	QueryPrefix    = "#q#"
	ResponsePrefix = "#p#"
)

// ErrBusy is returned when the pending-query table is at capacity
var ErrBusy = errors.New("too many outstanding queries")

// Transport delivers one protocol line to a named peer process
type Transport interface {
	SendToPeer(peer, line string) error
}

// Executor runs a named local read command on behalf of a remote requester
// and returns the response text.
type Executor func(cmd string, args []string) string

// Merge combines the collected peer responses (keyed by peer identity) into
// the final reply. It must not assume any arrival order.
type Merge func(replies map[string]string) string

// Validate rejects malformed command arguments before any network round trip
type Validate func(args []string) error

type pendingQuery struct {
	id        string
	requester string
	replies   map[string]string
	created   time.Time
	timer     *time.Timer
	merge     Merge
	deliver   func(text string)
	done      bool
}

// Coordinator fans a user command out to every configured peer, collects
// responses by correlation id, and invokes the merge callback exactly once:
// when all peers have responded or when the timeout fires, whichever comes
// first. Correlation ids are a monotonic counter namespaced by a per-process
// instance token, so ids never collide while concurrently pending, nor
// across restarts.
type Coordinator struct {
	mu         sync.Mutex
	self       string
	instance   string
	peers      []string
	transport  Transport
	exec       Executor
	timeout    time.Duration
	maxPending int
	nextID     uint64
	pending    map[string]*pendingQuery
}

// New creates a coordinator. self is this process's chat identity; exec
// serves incoming queries from other peers against local state.
func New(self string, peers []string, transport Transport, exec Executor, timeout time.Duration, maxPending int) *Coordinator {
	return &Coordinator{
		self:       self,
		instance:   uuid.NewString()[:8],
		peers:      peers,
		transport:  transport,
		exec:       exec,
		timeout:    timeout,
		maxPending: maxPending,
		pending:    make(map[string]*pendingQuery),
	}
}

// IsPeer reports whether a sender is a configured peer
func (c *Coordinator) IsPeer(nick string) bool {
	for _, p := range c.peers {
		if strings.EqualFold(p, nick) {
			return true
		}
	}
	return false
}

// HasPeers reports whether this process runs federated
func (c *Coordinator) HasPeers() bool {
	return len(c.peers) > 0
}

// PendingCount returns the number of outstanding queries
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dispatch validates and fans out one command. deliver is invoked exactly
// once with the merged reply. The local answer is collected up front; peers
// contribute as responses arrive. The caller is never blocked: completion
// rides the response path or the timeout callback.
func (c *Coordinator) Dispatch(requester, cmd string, args []string, validate Validate, merge Merge, deliver func(text string)) error {
	if validate != nil {
		if err := validate(args); err != nil {
			return err
		}
	}

	// The local answer may hit disk (whereis scans); computing it outside
	// the lock keeps slow local execs from stalling response handling for
	// unrelated in-flight queries.
	local := c.exec(cmd, args)

	c.mu.Lock()
	if len(c.pending) >= c.maxPending {
		c.mu.Unlock()
		return ErrBusy
	}

	c.nextID++
	id := fmt.Sprintf("%s-%d", c.instance, c.nextID)

	pq := &pendingQuery{
		id:        id,
		requester: requester,
		replies:   map[string]string{c.self: local},
		created:   time.Now(),
		merge:     merge,
		deliver:   deliver,
	}
	pq.timer = time.AfterFunc(c.timeout, func() {
		c.complete(id, "timeout")
	})
	c.pending[id] = pq
	c.mu.Unlock()

	line := fmt.Sprintf("%s %s %s %s %s", QueryPrefix, id, requester, cmd, strings.Join(args, " "))
	for _, p := range c.peers {
		if err := c.transport.SendToPeer(p, strings.TrimRight(line, " ")); err != nil {
			// A peer that never receives the query simply contributes
			// nothing; the timeout produces the best-effort answer.
			log.Warn().
				Err(err).
				Str("peer", p).
				Str("id", id).
				Msg("Failed to send query to peer")
		}
	}

	log.Debug().
		Str("id", id).
		Str("cmd", cmd).
		Str("requester", requester).
		Int("peers", len(c.peers)).
		Msg("Query dispatched")
	return nil
}

// HandleQuery serves an incoming peer query against local state. The caller
// has already verified the sender is a configured peer.
func (c *Coordinator) HandleQuery(from, line string) {
	// Line shape: "#q# <id> <requester> <cmd> [args...]"
	fields := strings.Fields(line)
	if len(fields) < 4 || fields[0] != QueryPrefix {
		log.Warn().
			Str("from", from).
			Str("line", truncate(line, 80)).
			Msg("Malformed peer query, dropping")
		return
	}

	id := fields[1]
	cmd := fields[3]
	args := fields[4:]

	resp := c.exec(cmd, args)
	reply := fmt.Sprintf("%s %s %s", ResponsePrefix, id, resp)
	if err := c.transport.SendToPeer(from, reply); err != nil {
		log.Warn().
			Err(err).
			Str("peer", from).
			Str("id", id).
			Msg("Failed to send query response")
	}
}

// HandleResponse records one peer's response. Responses for unknown
// correlation ids are logged and dropped. When the responded set covers the
// configured peer set, the query completes.
func (c *Coordinator) HandleResponse(from, line string) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 || fields[0] != ResponsePrefix {
		log.Warn().
			Str("from", from).
			Str("line", truncate(line, 80)).
			Msg("Malformed peer response, dropping")
		return
	}

	id := fields[1]
	text := ""
	if len(fields) == 3 {
		text = fields[2]
	}

	c.mu.Lock()
	pq, ok := c.pending[id]
	if !ok || pq.done {
		c.mu.Unlock()
		log.Debug().
			Str("from", from).
			Str("id", id).
			Msg("Response for unknown or finished query, dropping")
		return
	}
	if !c.IsPeer(from) {
		c.mu.Unlock()
		log.Warn().
			Str("from", from).
			Str("id", id).
			Msg("Response from untrusted sender, dropping")
		return
	}

	pq.replies[from] = text
	covered := true
	for _, p := range c.peers {
		if _, ok := pq.replies[p]; !ok {
			covered = false
			break
		}
	}
	c.mu.Unlock()

	if covered {
		c.complete(id, "all peers responded")
	}
}

// PruneStale drops pending queries older than maxAge. Timeouts normally
// complete every query; this is the housekeeping backstop against leaks.
func (c *Coordinator) PruneStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	c.mu.Lock()
	var stale []string
	for id, pq := range c.pending {
		if pq.created.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		c.complete(id, "stale")
	}
	return len(stale)
}

// complete finishes one query exactly once and delivers the merged reply
func (c *Coordinator) complete(id, reason string) {
	c.mu.Lock()
	pq, ok := c.pending[id]
	if !ok || pq.done {
		c.mu.Unlock()
		return
	}
	pq.done = true
	pq.timer.Stop()
	delete(c.pending, id)
	replies := make(map[string]string, len(pq.replies))
	for k, v := range pq.replies {
		replies[k] = v
	}
	c.mu.Unlock()

	log.Debug().
		Str("id", id).
		Str("reason", reason).
		Int("replies", len(replies)).
		Msg("Query complete")

	text := pq.merge(replies)
	pq.deliver(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
