package oob

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func gmcpFrame(payload string) []byte {
	return Subnegotiation(TeloptGMCP, []byte(payload))
}

func feedAll(d *Decoder, chunks ...[]byte) []Frame {
	var out []Frame
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return out
}

func TestDecoderLinesAndGMCP(t *testing.T) {
	stream := []byte("Welcome\r\n")
	stream = append(stream, IAC, WILL, TeloptGMCP)
	stream = append(stream, gmcpFrame(`Room.Info {"num":1}`)...)
	stream = append(stream, "A road.\n"...)

	got := NewDecoder().Feed(stream)
	want := []Frame{
		{Kind: FrameLine, Text: []byte("Welcome")},
		{Kind: FrameNegotiation, Command: WILL, Option: TeloptGMCP},
		{Kind: FrameSubneg, Option: TeloptGMCP, Data: []byte(`Room.Info {"num":1}`)},
		{Kind: FrameLine, Text: []byte("A road.")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

// Every split point of the stream must decode to the same frames.
func TestDecoderFragmentation(t *testing.T) {
	stream := []byte("HP: 10\r\n")
	stream = append(stream, gmcpFrame("Char.Vitals {\"hp\":10,\"note\":\"\xff\"}")...)
	stream = append(stream, IAC, DO, TeloptTTYPE)
	stream = append(stream, "> "...)
	stream = append(stream, IAC, GA)

	whole := NewDecoder().Feed(stream)
	if len(whole) != 4 {
		t.Fatalf("expected 4 frames, got %d: %+v", len(whole), whole)
	}
	if got := string(whole[1].Data); got != "Char.Vitals {\"hp\":10,\"note\":\"\xff\"}" {
		t.Errorf("escaped IAC not collapsed: %q", got)
	}

	for i := 1; i < len(stream); i++ {
		got := feedAll(NewDecoder(), stream[:i], stream[i:])
		if diff := cmp.Diff(whole, got); diff != "" {
			t.Fatalf("split at %d differs (-whole +split):\n%s", i, diff)
		}
	}

	// One byte at a time.
	d := NewDecoder()
	var chunks [][]byte
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	if diff := cmp.Diff(whole, feedAll(d, chunks...)); diff != "" {
		t.Errorf("byte-at-a-time differs:\n%s", diff)
	}
}

func TestDecoderEscapedIACInText(t *testing.T) {
	got := NewDecoder().Feed([]byte{'a', IAC, IAC, 'b', '\n'})
	if len(got) != 1 || string(got[0].Text) != "a\xffb" {
		t.Errorf("unexpected frames: %+v", got)
	}
}

func TestDecoderPrompt(t *testing.T) {
	d := NewDecoder()
	got := d.Feed(append([]byte("Password: "), IAC, EOR))
	if len(got) != 1 || got[0].Kind != FramePrompt || string(got[0].Text) != "Password: " {
		t.Fatalf("unexpected frames: %+v", got)
	}

	// GA with nothing buffered produces nothing.
	if got := d.Feed([]byte{IAC, GA}); len(got) != 0 {
		t.Errorf("expected no frames, got %+v", got)
	}

	d.Feed([]byte("partial"))
	if string(d.Pending()) != "partial" {
		t.Errorf("Pending = %q", d.Pending())
	}
	f, ok := d.Flush()
	if !ok || f.Kind != FramePrompt || string(f.Text) != "partial" {
		t.Errorf("Flush = %+v, %v", f, ok)
	}
	if _, ok := d.Flush(); ok {
		t.Error("second Flush should be empty")
	}
}

func TestDecoderMalformedIsSkipped(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		kinds []FrameKind
		text  string
	}{
		{
			name:  "unknown command",
			input: append([]byte{IAC, 7}, "ok\n"...),
			kinds: []FrameKind{FrameMalformed, FrameLine},
			text:  "ok",
		},
		{
			name:  "stray SE",
			input: append([]byte{IAC, SE}, "ok\n"...),
			kinds: []FrameKind{FrameMalformed, FrameLine},
			text:  "ok",
		},
		{
			name: "unterminated subnegotiation",
			input: append(
				append([]byte{IAC, SB, TeloptGMCP}, "Char.Vit"...),
				append([]byte{IAC, WILL, TeloptEcho}, "ok\n"...)...,
			),
			kinds: []FrameKind{FrameMalformed, FrameNegotiation, FrameLine},
			text:  "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDecoder().Feed(tt.input)
			var kinds []FrameKind
			for _, f := range got {
				kinds = append(kinds, f.Kind)
			}
			if diff := cmp.Diff(tt.kinds, kinds); diff != "" {
				t.Fatalf("kinds (-want +got):\n%s", diff)
			}
			if last := got[len(got)-1]; string(last.Text) != tt.text {
				t.Errorf("last text = %q, want %q", last.Text, tt.text)
			}
		})
	}
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{IAC, SB, TeloptGMCP, 'x'})
	d.Reset()
	got := d.Feed([]byte("fresh\n"))
	if len(got) != 1 || string(got[0].Text) != "fresh" {
		t.Errorf("state leaked across Reset: %+v", got)
	}
}

func TestFrameKindString(t *testing.T) {
	tests := []struct {
		k    FrameKind
		want string
	}{
		{FrameLine, "line"},
		{FramePrompt, "prompt"},
		{FrameSubneg, "subneg"},
		{FrameKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("FrameKind(%d).String() = %q, want %q", tt.k, got, tt.want)
		}
	}
}
