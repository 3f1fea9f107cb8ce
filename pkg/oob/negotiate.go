package oob

// NegotiationEvent reports a change in GMCP availability caused by a
// negotiation command.
type NegotiationEvent int

const (
	NegNone         NegotiationEvent = iota
	NegGMCPEnabled                   // server agreed to speak GMCP
	NegGMCPDisabled                  // server refused or withdrew GMCP
)

// Options the client lets the server enable on its side (server WILL).
var remoteAccepted = map[byte]bool{
	TeloptGMCP: true,
	TeloptEcho: true,
	TeloptSGA:  true,
	TeloptEOR:  true,
}

// Options the client agrees to enable on its own side (server DO).
var localAccepted = map[byte]bool{
	TeloptTTYPE: true,
	TeloptGMCP:  true,
}

// Negotiator answers the server's telnet option negotiation from the
// client side. It remembers the state of every option so that a reply is
// only sent when the state actually changes, which keeps client and server
// from acknowledging each other forever.
type Negotiator struct {
	caps         *Capabilities
	terminalType string

	remote  map[byte]bool // option enabled on the server side
	local   map[byte]bool // option enabled on our side
	pending map[byte]bool // we sent DO and await WILL/WONT
}

// NewNegotiator creates a negotiator that records agreed options in caps.
// terminalType is sent in answer to TTYPE SEND.
func NewNegotiator(caps *Capabilities, terminalType string) *Negotiator {
	if caps == nil {
		caps = NewCapabilities()
	}
	if terminalType == "" {
		terminalType = "XTERM-256COLOR"
	}
	return &Negotiator{
		caps:         caps,
		terminalType: terminalType,
		remote:       make(map[byte]bool),
		local:        make(map[byte]bool),
		pending:      make(map[byte]bool),
	}
}

// Capabilities returns the negotiated capability set.
func (n *Negotiator) Capabilities() *Capabilities {
	return n.caps
}

// Request asks the server to enable opt and returns the IAC DO sequence to
// send. The matching WILL will not be acknowledged a second time.
func (n *Negotiator) Request(opt byte) []byte {
	n.pending[opt] = true
	return []byte{IAC, DO, opt}
}

// Handle processes IAC <cmd> <opt> from the server. It returns the bytes
// to send back (nil when no answer is due) and any GMCP state change.
func (n *Negotiator) Handle(cmd, opt byte) ([]byte, NegotiationEvent) {
	switch cmd {
	case WILL:
		wasPending := n.pending[opt]
		delete(n.pending, opt)
		if !remoteAccepted[opt] {
			return []byte{IAC, DONT, opt}, NegNone
		}
		if n.remote[opt] {
			return nil, NegNone
		}
		n.remote[opt] = true
		ev := n.setRemote(opt, true)
		if wasPending {
			return nil, ev
		}
		return []byte{IAC, DO, opt}, ev

	case WONT:
		delete(n.pending, opt)
		if !n.remote[opt] {
			if opt == TeloptGMCP {
				return nil, NegGMCPDisabled
			}
			return nil, NegNone
		}
		n.remote[opt] = false
		return []byte{IAC, DONT, opt}, n.setRemote(opt, false)

	case DO:
		if !localAccepted[opt] {
			if n.local[opt] {
				return nil, NegNone
			}
			return []byte{IAC, WONT, opt}, NegNone
		}
		if n.local[opt] {
			return nil, NegNone
		}
		n.local[opt] = true
		ev := NegNone
		if opt == TeloptGMCP && !n.caps.GMCP {
			n.caps.GMCP = true
			ev = NegGMCPEnabled
		}
		return []byte{IAC, WILL, opt}, ev

	case DONT:
		if !n.local[opt] {
			return nil, NegNone
		}
		n.local[opt] = false
		return []byte{IAC, WONT, opt}, NegNone
	}
	return nil, NegNone
}

// HandleSubneg answers subnegotiations that expect a reply. Only
// TTYPE SEND currently does.
func (n *Negotiator) HandleSubneg(opt byte, data []byte) []byte {
	if opt == TeloptTTYPE && len(data) > 0 && data[0] == TTypeSend && n.local[TeloptTTYPE] {
		payload := append([]byte{TTypeIS}, n.terminalType...)
		return Subnegotiation(TeloptTTYPE, payload)
	}
	return nil
}

func (n *Negotiator) setRemote(opt byte, on bool) NegotiationEvent {
	switch opt {
	case TeloptGMCP:
		if n.caps.GMCP == on {
			return NegNone
		}
		n.caps.GMCP = on
		if on {
			return NegGMCPEnabled
		}
		return NegGMCPDisabled
	case TeloptEcho:
		n.caps.Echo = on
	case TeloptSGA:
		n.caps.SGA = on
	case TeloptEOR:
		n.caps.EOR = on
	}
	return NegNone
}
