package oob

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Core client modules requested after GMCP is enabled.
var DefaultSupports = []string{"Char 1", "Room 1", "Comm.Channel 1"}

// EncodeGMCP encodes a module and optional payload as a GMCP telnet
// subnegotiation sequence.
// Format: IAC SB 201 <module> [<space> <json>] IAC SE
// A nil data value sends the bare module name. IAC bytes inside the
// payload are doubled.
func EncodeGMCP(module string, data any) ([]byte, error) {
	if module == "" {
		return nil, fmt.Errorf("oob: empty GMCP module")
	}
	payload := []byte(module)
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("oob: encode GMCP %s: %w", module, err)
		}
		payload = append(payload, ' ')
		payload = append(payload, jsonData...)
	}
	return Subnegotiation(TeloptGMCP, payload), nil
}

// Subnegotiation frames payload as IAC SB <opt> ... IAC SE, escaping IAC.
func Subnegotiation(opt byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+6)
	buf = append(buf, IAC, SB, opt)
	buf = append(buf, EscapeIAC(payload)...)
	buf = append(buf, IAC, SE)
	return buf
}

// EscapeIAC doubles every IAC byte in data. The input is returned unchanged
// when it contains none.
func EscapeIAC(data []byte) []byte {
	if bytes.IndexByte(data, IAC) < 0 {
		return data
	}
	out := make([]byte, 0, len(data)+4)
	for _, b := range data {
		if b == IAC {
			out = append(out, IAC)
		}
		out = append(out, b)
	}
	return out
}

// ParseGMCPMessage splits a GMCP subnegotiation payload (the bytes between
// SB 201 and IAC SE, already unescaped) into module name and JSON data.
func ParseGMCPMessage(data []byte) (module string, jsonData []byte) {
	// Find first space separator
	for i, b := range data {
		if b == ' ' {
			return string(data[:i]), bytes.TrimSpace(data[i+1:])
		}
	}
	return string(data), nil
}
