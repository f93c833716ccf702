package gamelog

import (
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		delim byte
		checks func(t *testing.T, rec *Record)
	}{
		{
			name:  "full ascension record",
			line:  "name=Tangles:role=Val:race=Dwa:gender=Fem:align:Law:points=12345:turns=6789:death=ascended:starttime=1000:endtime=2000",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Player != "Tangles" {
					t.Errorf("expected Player=Tangles, got %s", rec.Player)
				}
				if rec.Role != "Val" || rec.Race != "Dwa" || rec.Gender != "Fem" {
					t.Errorf("unexpected codes: %s %s %s", rec.Role, rec.Race, rec.Gender)
				}
				// "align:Law" has no '=' and is two malformed tokens
				if rec.Align != UnknownCode {
					t.Errorf("expected Align=%s, got %s", UnknownCode, rec.Align)
				}
				if rec.Points != 12345 || rec.Turns != 6789 {
					t.Errorf("unexpected numerics: %d %d", rec.Points, rec.Turns)
				}
				if !rec.Ascended() {
					t.Error("expected Ascended()=true")
				}
				if rec.StartTime != 1000 || rec.EndTime != 2000 {
					t.Errorf("unexpected times: %d %d", rec.StartTime, rec.EndTime)
				}
			},
		},
		{
			name:  "tab delimited",
			line:  "name=bob\tdeath=killed by a newt\tpoints=12",
			delim: '\t',
			checks: func(t *testing.T, rec *Record) {
				if rec.Player != "bob" {
					t.Errorf("expected Player=bob, got %s", rec.Player)
				}
				if rec.Death != "killed by a newt" {
					t.Errorf("unexpected death: %q", rec.Death)
				}
				if rec.Points != 12 {
					t.Errorf("expected Points=12, got %d", rec.Points)
				}
			},
		},
		{
			name:  "no delimiter at all",
			line:  "complete garbage with no structure",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Player != "" || rec.Death != "" {
					t.Error("garbage line should produce an empty record")
				}
				if len(rec.Extra) != 0 {
					t.Errorf("expected no extra fields, got %v", rec.Extra)
				}
			},
		},
		{
			name:  "bad numeric degrades to zero",
			line:  "name=eve:points=not-a-number:turns=50",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Points != 0 {
					t.Errorf("expected Points=0, got %d", rec.Points)
				}
				if rec.Turns != 50 {
					t.Errorf("expected Turns=50, got %d", rec.Turns)
				}
			},
		},
		{
			name:  "realtime parsed as duration",
			line:  "name=eve:realtime=3600",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Realtime != time.Hour {
					t.Errorf("expected Realtime=1h, got %s", rec.Realtime)
				}
			},
		},
		{
			name:  "conduct hex bitfield",
			line:  "name=eve:conduct=0xf80:achieve=512",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Conduct != 0xf80 {
					t.Errorf("expected Conduct=0xf80, got %#x", rec.Conduct)
				}
				if rec.Achieve != 512 {
					t.Errorf("expected Achieve=512, got %d", rec.Achieve)
				}
			},
		},
		{
			name:  "malicious bitfield degrades to zero",
			line:  "name=eve:conduct=__import__('os')",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Conduct != 0 {
					t.Errorf("expected Conduct=0, got %d", rec.Conduct)
				}
			},
		},
		{
			name:  "control characters stripped from player text",
			line:  "name=mallory:death=killed by\r\nPRIVMSG #chan :pwned",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Death != "killed byPRIVMSG #chan " {
					t.Errorf("CR/LF not stripped: %q", rec.Death)
				}
			},
		},
		{
			name:  "unknown keys land in Extra",
			line:  "name=eve:wish=blessed fixed +2 silver dragon scale mail",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Extra["wish"] != "blessed fixed +2 silver dragon scale mail" {
					t.Errorf("unexpected wish: %q", rec.Extra["wish"])
				}
			},
		},
		{
			name:  "mode defaults to normal",
			line:  "name=eve:death=quit",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Mode != "normal" {
					t.Errorf("expected Mode=normal, got %s", rec.Mode)
				}
			},
		},
		{
			name:  "livelog player key",
			line:  "player=eve:turns=100:wish=wand of wishing",
			delim: ':',
			checks: func(t *testing.T, rec *Record) {
				if rec.Player != "eve" {
					t.Errorf("player key not mapped, got %q", rec.Player)
				}
				if _, ok := rec.Extra["player"]; ok {
					t.Error("player key leaked into Extra")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ParseLine(tt.line, tt.delim)
			if rec == nil {
				t.Fatal("ParseLine returned nil")
			}
			tt.checks(t, rec)
		})
	}
}

func TestParseBitField(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    uint64
		wantErr bool
	}{
		{name: "decimal", in: "4096", want: 4096},
		{name: "hex", in: "0x1f", want: 31},
		{name: "octal", in: "0o17", want: 15},
		{name: "leading zero octal", in: "017", want: 15},
		{name: "binary", in: "0b101", want: 5},
		{name: "empty is zero", in: "", want: 0},
		{name: "signed rejected", in: "-1", wantErr: true},
		{name: "expression rejected", in: "1+1", wantErr: true},
		{name: "code rejected", in: "exec('rm')", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBitField(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBitField(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBitField(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("plain text"); got != "plain text" {
		t.Errorf("clean string changed: %q", got)
	}
	if got := Sanitize("a\x02bold\x0fcolor\x03"); got != "aboldcolor" {
		t.Errorf("IRC formatting codes not stripped: %q", got)
	}
	if got := Sanitize("line\r\nbreak\x7f"); got != "linebreak" {
		t.Errorf("control characters not stripped: %q", got)
	}
}
