package announce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beholderbot/beholder/internal/gamelog"
	"github.com/beholderbot/beholder/internal/stats"
	"github.com/beholderbot/beholder/internal/turncount"
	"github.com/beholderbot/beholder/internal/variant"
)

type memTurncounts struct {
	thresholds map[string]int64
}

func (m *memTurncounts) GetTurncount(ctx context.Context, player string) (int64, bool, error) {
	n, ok := m.thresholds[strings.ToLower(player)]
	return n, ok, nil
}

func (m *memTurncounts) SetTurncount(ctx context.Context, player string, n int64) error {
	m.thresholds[strings.ToLower(player)] = n
	return nil
}

func (m *memTurncounts) DeleteTurncount(ctx context.Context, player string) error {
	delete(m.thresholds, strings.ToLower(player))
	return nil
}

func testVariant() *variant.Variant {
	return &variant.Variant{
		ID:      "nh",
		Name:    "NetHack",
		Roles:   []string{"Val", "Wiz"},
		Races:   []string{"Dwa", "Hum"},
		Streaks: true,
	}
}

func newTestAnnouncer(thresholds map[string]int64) (*Announcer, *stats.Store) {
	if thresholds == nil {
		thresholds = make(map[string]int64)
	}
	st := stats.NewStore()
	filter := turncount.New(&memTurncounts{thresholds: thresholds})
	return New(st, filter, NewResolver()), st
}

const ascensionLine = "name=Tangles:role=Val:race=Dwa:gender=Fem:align:Law:points=12345:turns=6789:death=ascended:starttime=1000:endtime=2000"

func TestGameResultAscension(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAnnouncer(nil)
	v := testVariant()

	rec := gamelog.ParseLine(ascensionLine, ':')
	text, ok := a.GameResult(ctx, rec, v, false)
	if !ok {
		t.Fatal("ascension must be announced")
	}
	if !strings.Contains(text, "Tangles") || !strings.Contains(text, "ascended") {
		t.Errorf("unexpected announcement: %q", text)
	}

	tally, total := st.AscensionTally("nh", "tangles")
	if total != 1 {
		t.Fatalf("expected 1 ascension, got %d", total)
	}
	for _, bucket := range []string{"Val", "Dwa", "Fem"} {
		if tally[bucket] != 1 {
			t.Errorf("expected tally[%s]=1, got %d", bucket, tally[bucket])
		}
	}

	cur, ok := st.CurrentStreak("nh", "tangles")
	if !ok || cur.Length != 1 {
		t.Errorf("expected streak of length 1, got %+v (ok=%v)", cur, ok)
	}
	if cur.Start != 1000 || cur.End != 2000 {
		t.Errorf("streak bounds wrong: %+v", cur)
	}

	if n := st.GameCount("nh", "tangles"); n != 1 {
		t.Errorf("expected game count 1, got %d", n)
	}
}

func TestGameResultStartScum(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAnnouncer(nil)
	v := testVariant()

	rec := gamelog.ParseLine("name=bob:role=Wiz:race=Hum:gender=Mal:align=Neu:points=500:turns=12:death=quit:endtime=3000", ':')
	text, ok := a.GameResult(ctx, rec, v, false)
	if ok {
		t.Errorf("start-scummed game must not be announced, got %q", text)
	}

	if n := st.GameCount("nh", "bob"); n != 1 {
		t.Errorf("start-scum still counts as a game, got %d", n)
	}
	if _, ok := st.LastGame("nh", "bob"); ok {
		t.Error("start-scum must not touch the last-game pointer")
	}
	if _, total := st.AscensionTally("nh", "bob"); total != 0 {
		t.Error("start-scum must not touch the ascension tally")
	}
	if _, ok := st.CurrentStreak("nh", "bob"); ok {
		t.Error("start-scum must not touch streak state")
	}
}

func TestGameResultStartScumDoesNotResetStreak(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAnnouncer(nil)
	v := testVariant()

	asc := gamelog.ParseLine(ascensionLine, ':')
	a.GameResult(ctx, asc, v, false)
	// Tangles is mid-streak; a quick quit is excluded from all aggregates
	scum := gamelog.ParseLine("name=Tangles:points=100:turns=5:death=quit:endtime=2100", ':')
	a.GameResult(ctx, scum, v, false)

	if cur, ok := st.CurrentStreak("nh", "tangles"); !ok || cur.Length != 1 {
		t.Errorf("start-scum must not reset the streak, got %+v (ok=%v)", cur, ok)
	}
}

func TestGameResultDeathResetsStreak(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAnnouncer(nil)
	v := testVariant()

	a.GameResult(ctx, gamelog.ParseLine(ascensionLine, ':'), v, false)
	death := gamelog.ParseLine("name=Tangles:role=Val:race=Dwa:gender=Fem:align=Law:points=54321:turns=2222:death=killed by a soldier ant:endtime=2500", ':')
	text, ok := a.GameResult(ctx, death, v, false)
	if !ok || !strings.Contains(text, "soldier ant") {
		t.Errorf("death should be announced, got %q (ok=%v)", text, ok)
	}

	if _, ok := st.CurrentStreak("nh", "tangles"); ok {
		t.Error("death must reset the current streak")
	}
	if best, ok := st.LongestStreak("nh", "tangles"); !ok || best.Length != 1 {
		t.Errorf("longest streak must survive, got %+v", best)
	}
}

func TestBackfillSilenceSameAggregates(t *testing.T) {
	ctx := context.Background()
	lines := []string{
		ascensionLine,
		"name=bob:role=Wiz:race=Hum:gender=Mal:align=Neu:points=43210:turns=5000:death=killed by a newt:starttime=1500:endtime=2500",
		"name=Tangles:role=Val:race=Dwa:gender=Fem:align=Law:points=23456:turns=7000:death=ascended:starttime=2100:endtime=3100",
	}

	normal, normalStats := newTestAnnouncer(nil)
	backfill, backfillStats := newTestAnnouncer(nil)
	v := testVariant()

	announced := 0
	for _, line := range lines {
		if _, ok := normal.GameResult(ctx, gamelog.ParseLine(line, ':'), v, false); ok {
			announced++
		}
		if text, ok := backfill.GameResult(ctx, gamelog.ParseLine(line, ':'), v, true); ok {
			t.Errorf("backfill produced announcement: %q", text)
		}
	}
	if announced != len(lines) {
		t.Fatalf("expected %d normal announcements, got %d", len(lines), announced)
	}

	// The two stores must be indistinguishable through every read
	for _, player := range []string{"tangles", "bob"} {
		if a, b := normalStats.GameCount("nh", player), backfillStats.GameCount("nh", player); a != b {
			t.Errorf("game counts diverge for %s: %d vs %d", player, a, b)
		}
		na, atotal := normalStats.AscensionTally("nh", player)
		ba, btotal := backfillStats.AscensionTally("nh", player)
		if atotal != btotal {
			t.Errorf("ascension totals diverge for %s: %d vs %d", player, atotal, btotal)
		}
		for bucket, n := range na {
			if ba[bucket] != n {
				t.Errorf("tally diverges for %s/%s: %d vs %d", player, bucket, n, ba[bucket])
			}
		}
		np, nok := normalStats.LastGame("nh", player)
		bp, bok := backfillStats.LastGame("nh", player)
		if nok != bok || np != bp {
			t.Errorf("last-game pointers diverge for %s: %+v vs %+v", player, np, bp)
		}
	}

	ncur, nok := normalStats.CurrentStreak("nh", "tangles")
	bcur, bok := backfillStats.CurrentStreak("nh", "tangles")
	if nok != bok || ncur != bcur {
		t.Errorf("streaks diverge: %+v vs %+v", ncur, bcur)
	}
}

func TestTurncountSuppression(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAnnouncer(map[string]int64{"bob": 1000})
	v := testVariant()

	// Below threshold: suppressed, but aggregates still applied
	death := gamelog.ParseLine("name=bob:role=Wiz:race=Hum:gender=Mal:align=Neu:points=5000:turns=500:death=killed by a newt:endtime=2000", ':')
	if text, ok := a.GameResult(ctx, death, v, false); ok {
		t.Errorf("low-turncount death should be suppressed, got %q", text)
	}
	if _, ok := st.LastGame("nh", "bob"); !ok {
		t.Error("suppression must not skip aggregate updates")
	}

	// Ascensions are never suppressed
	asc := gamelog.ParseLine("name=bob:role=Wiz:race=Hum:gender=Mal:align=Neu:points=99999:turns=500:death=ascended:starttime=1:endtime=2100", ':')
	if _, ok := a.GameResult(ctx, asc, v, false); !ok {
		t.Error("an ascension is always announced")
	}
}

func TestGameResultUnclassifiable(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAnnouncer(nil)
	v := testVariant()

	// Missing the death field: cannot classify, skip entirely
	rec := gamelog.ParseLine("name=bob:points=100", ':')
	if _, ok := a.GameResult(ctx, rec, v, false); ok {
		t.Error("record without death field must be skipped")
	}
	if n := st.GameCount("nh", "bob"); n != 0 {
		t.Errorf("unclassifiable record must have no side effects, count=%d", n)
	}
}

func TestLiveEventPrecedence(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAnnouncer(nil)
	v := testVariant()

	tests := []struct {
		name string
		line string
		want string // substring; empty means no announcement
	}{
		{
			name: "wish",
			line: "name=alice:role=Val:race=Dwa:gender=Fem:align=Law:turns=2000:wish=blessed greased figurine",
			want: `wished for "blessed greased figurine"`,
		},
		{
			name: "player key instead of name",
			line: "player=alice:turns=2000:wish=blessed greased figurine",
			want: `alice (NetHack) wished for "blessed greased figurine"`,
		},
		{
			name: "message beats wish",
			line: "name=alice:turns=2000:message=entered the Gnomish Mines:wish=something",
			want: "entered the Gnomish Mines",
		},
		{
			name: "shout",
			line: "name=alice:turns=10:shout=hello world",
			want: `shouted "hello world"`,
		},
		{
			name: "bones kill",
			line: "name=alice:turns=10:bones_killed=bob:bones_rank=Evoker:bones_monst=ghost",
			want: "killed the ghost of bob, the former Evoker",
		},
		{
			name: "bones kill missing rank is skipped",
			line: "name=alice:turns=10:bones_killed=bob",
			want: "",
		},
		{
			name: "unique kill",
			line: "name=alice:turns=10:killed_uniq=Medusa",
			want: "killed Medusa",
		},
		{
			name: "genocide",
			line: "name=alice:turns=10:genocided_monster=mind flayers",
			want: "genocided mind flayers",
		},
		{
			name: "shoplifting",
			line: "name=alice:turns=10:shoplifted=300:shop=general store:shopkeeper=Asidonhopo",
			want: "stole 300 zorkmids",
		},
		{
			name: "shopkeeper kill",
			line: "name=alice:turns=10:killed_shopkeeper=Asidonhopo",
			want: "killed Asidonhopo the shopkeeper",
		},
		{
			name: "no matching field",
			line: "name=alice:turns=10:hp=5",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := gamelog.ParseLine(tt.line, ':')
			text, ok := a.LiveEvent(ctx, rec, v)
			if tt.want == "" {
				if ok {
					t.Errorf("expected silence, got %q", text)
				}
				return
			}
			if !ok || !strings.Contains(text, tt.want) {
				t.Errorf("expected %q in %q (ok=%v)", tt.want, text, ok)
			}
		})
	}
}

func TestLiveEventTurncountFilter(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAnnouncer(map[string]int64{"alice": 1000})
	v := testVariant()

	rec := gamelog.ParseLine("name=alice:turns=10:wish=something shiny", ':')
	if text, ok := a.LiveEvent(ctx, rec, v); ok {
		t.Errorf("live event below threshold must be suppressed, got %q", text)
	}
}

func TestBuildGameTextShapes(t *testing.T) {
	full := gamelog.ParseLine("name=bob:role=Wiz:race=Hum:gender=Mal:align=Neu:points=100:turns=50:death=quit", ':')
	legacyRec := gamelog.ParseLine("name=bob:points=100:death=quit", ':')

	normal := testVariant()
	legacy := &variant.Variant{ID: "nh13d", Name: "NetHack 1.3d", Legacy: true}

	text, err := buildGameText(full, normal, "")
	if err != nil || !strings.Contains(text, "(Wiz Hum Mal Neu)") {
		t.Errorf("full shape wrong: %q (%v)", text, err)
	}

	text, err = buildGameText(legacyRec, legacy, "")
	if err != nil || strings.Contains(text, "???") {
		t.Errorf("legacy shape must not leak sentinel codes: %q (%v)", text, err)
	}
	if !strings.Contains(text, "NetHack 1.3d") {
		t.Errorf("legacy shape should name the variant: %q", text)
	}

	// Non-normal game mode is called out
	explore := gamelog.ParseLine("name=bob:role=Wiz:race=Hum:gender=Mal:align=Neu:points=100:turns=50:death=quit:mode=explore", ':')
	text, err = buildGameText(explore, normal, "")
	if err != nil || !strings.HasPrefix(text, "[explore]") {
		t.Errorf("mode prefix missing: %q (%v)", text, err)
	}
}

func TestDumpURLPlaceholder(t *testing.T) {
	r := NewResolver()
	rec := gamelog.ParseLine(ascensionLine, ':')

	// No template configured at all
	if got := r.DumpURL(context.Background(), rec, &variant.Variant{ID: "nh"}); got != NoDump {
		t.Errorf("expected placeholder, got %q", got)
	}

	// Template but no local verification path: trust the template
	v := &variant.Variant{ID: "nh", DumpURL: "https://example.org/{player}/{endtime}.txt"}
	want := "https://example.org/Tangles/2000.txt"
	if got := r.DumpURL(context.Background(), rec, v); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	// Local path configured but artifact missing, no remote: placeholder
	v = &variant.Variant{
		ID:        "nh",
		DumpURL:   "https://example.org/{player}/{endtime}.txt",
		DumpLocal: "/nonexistent/{player}/{endtime}.txt",
	}
	if got := r.DumpURL(context.Background(), rec, v); got != NoDump {
		t.Errorf("expected placeholder for missing artifact, got %q", got)
	}

	// Missing artifact with a remote template: fall back to remote storage
	v = &variant.Variant{
		ID:        "nh",
		DumpURL:   "https://example.org/{player}/{endtime}.txt",
		DumpLocal: "/nonexistent/{player}/{endtime}.txt",
		RemoteURL: "https://archive.example.org/{player}/{endtime}.txt",
	}
	want = "https://archive.example.org/Tangles/2000.txt"
	if got := r.DumpURL(context.Background(), rec, v); got != want {
		t.Errorf("expected remote fallback %q, got %q", want, got)
	}
}

func TestGameResultNeverTouchesNetwork(t *testing.T) {
	ctx := context.Background()

	// A remote-storage endpoint that would stall any caller. Record
	// processing runs inside the poll loop, so even one round trip per
	// record would back up ingestion for the whole file.
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	a, st := newTestAnnouncer(nil)
	v := testVariant()
	v.DumpURL = "https://example.org/{player}/{endtime}.txt"
	v.DumpLocal = "/nonexistent/{player}/{endtime}.txt"
	v.RemoteURL = srv.URL + "/{player}/{endtime}.txt"

	start := time.Now()
	for _, backfill := range []bool{true, false} {
		rec := gamelog.ParseLine(ascensionLine, ':')
		if _, ok := a.GameResult(ctx, rec, v, backfill); ok == backfill {
			t.Errorf("backfill=%v: announced=%v", backfill, ok)
		}
	}
	elapsed := time.Since(start)

	if n := hits.Load(); n != 0 {
		t.Errorf("record processing made %d remote requests", n)
	}
	if elapsed > time.Second {
		t.Errorf("record processing stalled for %s", elapsed)
	}

	// The remote fallback URL is still recorded for later queries
	p, ok := st.LastGame("nh", "tangles")
	if !ok || !strings.HasPrefix(p.URL, srv.URL) {
		t.Errorf("expected remote fallback pointer, got %+v (ok=%v)", p, ok)
	}
}
