package oob

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeGMCP(t *testing.T) {
	buf, err := EncodeGMCP("Core.Supports.Set", DefaultSupports)
	if err != nil {
		t.Fatalf("EncodeGMCP: %v", err)
	}
	// Check framing
	if buf[0] != IAC || buf[1] != SB || buf[2] != TeloptGMCP {
		t.Error("bad GMCP prefix")
	}
	if buf[len(buf)-2] != IAC || buf[len(buf)-1] != SE {
		t.Error("bad GMCP suffix")
	}
	payload := string(buf[3 : len(buf)-2])
	if !strings.HasPrefix(payload, "Core.Supports.Set ") {
		t.Fatalf("payload should start with module name, got: %s", payload)
	}
	var parsed []string
	if err := json.Unmarshal([]byte(payload[len("Core.Supports.Set "):]), &parsed); err != nil {
		t.Errorf("GMCP JSON invalid: %v", err)
	}
	if len(parsed) != 3 || parsed[1] != "Room 1" {
		t.Errorf("unexpected supports list: %v", parsed)
	}
}

func TestEncodeGMCPNoData(t *testing.T) {
	buf, err := EncodeGMCP("Core.Ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{IAC, SB, TeloptGMCP}, "Core.Ping"...)
	want = append(want, IAC, SE)
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeGMCP(Core.Ping) = %v, want %v", buf, want)
	}
	if _, err := EncodeGMCP("", nil); err == nil {
		t.Error("expected error for empty module")
	}
}

func TestEscapeIAC(t *testing.T) {
	in := []byte{'a', IAC, 'b'}
	got := EscapeIAC(in)
	want := []byte{'a', IAC, IAC, 'b'}
	if !bytes.Equal(got, want) {
		t.Errorf("EscapeIAC = %v, want %v", got, want)
	}
	plain := []byte("plain")
	if got := EscapeIAC(plain); &got[0] != &plain[0] {
		t.Error("EscapeIAC should return input unchanged when there is nothing to escape")
	}
}

func TestParseGMCPMessage(t *testing.T) {
	pkg, jsonData := ParseGMCPMessage([]byte("Core.Hello {\"client\":\"Mudlet\"}"))
	if pkg != "Core.Hello" {
		t.Errorf("expected Core.Hello, got %q", pkg)
	}
	if string(jsonData) != "{\"client\":\"Mudlet\"}" {
		t.Errorf("unexpected JSON data: %s", jsonData)
	}

	// No JSON
	pkg, jsonData = ParseGMCPMessage([]byte("Core.Ping"))
	if pkg != "Core.Ping" {
		t.Errorf("expected Core.Ping, got %q", pkg)
	}
	if jsonData != nil {
		t.Error("expected nil jsonData for package without data")
	}
}

func TestCapabilities(t *testing.T) {
	caps := NewCapabilities()
	if caps.HasAny() {
		t.Error("new capabilities should not have any protocol")
	}
	caps.GMCP = true
	if !caps.HasAny() {
		t.Error("should have GMCP")
	}
	caps.AddSupports([]string{"Char 1", "Room 1"})
	if !caps.GMCPPackages["Room"] || !caps.GMCPPackages["Char"] {
		t.Errorf("supports not recorded: %v", caps.GMCPPackages)
	}
}

func TestNegotiatorGMCP(t *testing.T) {
	n := NewNegotiator(nil, "")

	reply, ev := n.Handle(WILL, TeloptGMCP)
	if !bytes.Equal(reply, []byte{IAC, DO, TeloptGMCP}) {
		t.Errorf("WILL GMCP reply = %v", reply)
	}
	if ev != NegGMCPEnabled {
		t.Errorf("WILL GMCP event = %v, want NegGMCPEnabled", ev)
	}
	if !n.Capabilities().GMCP {
		t.Error("GMCP should be enabled")
	}

	// A repeated WILL must not be acknowledged again.
	reply, ev = n.Handle(WILL, TeloptGMCP)
	if reply != nil || ev != NegNone {
		t.Errorf("repeated WILL GMCP: reply=%v ev=%v", reply, ev)
	}

	reply, ev = n.Handle(WONT, TeloptGMCP)
	if !bytes.Equal(reply, []byte{IAC, DONT, TeloptGMCP}) || ev != NegGMCPDisabled {
		t.Errorf("WONT GMCP: reply=%v ev=%v", reply, ev)
	}
}

func TestNegotiatorRequestedOption(t *testing.T) {
	n := NewNegotiator(nil, "")
	if got := n.Request(TeloptGMCP); !bytes.Equal(got, []byte{IAC, DO, TeloptGMCP}) {
		t.Fatalf("Request = %v", got)
	}
	reply, ev := n.Handle(WILL, TeloptGMCP)
	if reply != nil {
		t.Errorf("WILL after our DO should not be answered, got %v", reply)
	}
	if ev != NegGMCPEnabled {
		t.Errorf("event = %v, want NegGMCPEnabled", ev)
	}
}

func TestNegotiatorRefusesUnknownOptions(t *testing.T) {
	n := NewNegotiator(nil, "")
	tests := []struct {
		cmd, opt byte
		want     []byte
	}{
		{WILL, 86, []byte{IAC, DONT, 86}},
		{DO, TeloptNAWS, []byte{IAC, WONT, TeloptNAWS}},
		{DONT, TeloptTTYPE, nil},
		{WONT, TeloptEcho, nil},
	}
	for _, tt := range tests {
		got, _ := n.Handle(tt.cmd, tt.opt)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Handle(%s, %d) = %v, want %v", CommandName(tt.cmd), tt.opt, got, tt.want)
		}
	}
}

func TestNegotiatorTerminalType(t *testing.T) {
	n := NewNegotiator(nil, "MUDMAPPER")
	if reply := n.HandleSubneg(TeloptTTYPE, []byte{TTypeSend}); reply != nil {
		t.Errorf("TTYPE SEND before DO TTYPE should be ignored, got %v", reply)
	}
	reply, _ := n.Handle(DO, TeloptTTYPE)
	if !bytes.Equal(reply, []byte{IAC, WILL, TeloptTTYPE}) {
		t.Fatalf("DO TTYPE reply = %v", reply)
	}
	reply = n.HandleSubneg(TeloptTTYPE, []byte{TTypeSend})
	want := append([]byte{IAC, SB, TeloptTTYPE, TTypeIS}, "MUDMAPPER"...)
	want = append(want, IAC, SE)
	if !bytes.Equal(reply, want) {
		t.Errorf("TTYPE IS = %v, want %v", reply, want)
	}
}

func TestNegotiatorEchoTracksPassword(t *testing.T) {
	n := NewNegotiator(nil, "")
	n.Handle(WILL, TeloptEcho)
	if !n.Capabilities().Echo {
		t.Error("server WILL ECHO should set Echo")
	}
	n.Handle(WONT, TeloptEcho)
	if n.Capabilities().Echo {
		t.Error("server WONT ECHO should clear Echo")
	}
}
