// Package oob implements the telnet layer of a MUD client: byte-stream
// framing, option negotiation and GMCP (Generic MUD Communication
// Protocol) subnegotiation encoding.
package oob

import "strings"

// Capabilities tracks what the server and client agreed on for a connection.
type Capabilities struct {
	GMCP bool // GMCP (telopt 201) negotiated
	Echo bool // server echoes input (usually while a password is typed)
	SGA  bool // suppress go-ahead
	EOR  bool // server marks prompts with IAC EOR

	// GMCP modules the client asked the server to send
	GMCPPackages map[string]bool
}

// NewCapabilities returns a zero-value Capabilities (nothing negotiated).
func NewCapabilities() *Capabilities {
	return &Capabilities{
		GMCPPackages: make(map[string]bool),
	}
}

// HasAny returns true if any OOB protocol is negotiated.
func (c *Capabilities) HasAny() bool {
	return c.GMCP
}

// AddSupports records "Module version" entries sent in Core.Supports.Set.
func (c *Capabilities) AddSupports(entries []string) {
	for _, e := range entries {
		name, _, _ := strings.Cut(e, " ")
		if name != "" {
			c.GMCPPackages[name] = true
		}
	}
}
