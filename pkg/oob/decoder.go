package oob

import "fmt"

// FrameKind classifies a unit decoded from the telnet byte stream.
type FrameKind int

const (
	FrameLine        FrameKind = iota // complete text line, CR/LF stripped
	FramePrompt                       // partial line terminated by IAC GA or IAC EOR
	FrameNegotiation                  // IAC WILL/WONT/DO/DONT <opt>
	FrameSubneg                       // IAC SB <opt> ... IAC SE
	FrameMalformed                    // skipped bytes; Text describes why
)

// String returns a human-readable name for the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameLine:
		return "line"
	case FramePrompt:
		return "prompt"
	case FrameNegotiation:
		return "negotiation"
	case FrameSubneg:
		return "subneg"
	case FrameMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Frame is one decoded unit. Which fields are set depends on Kind.
type Frame struct {
	Kind    FrameKind
	Text    []byte // FrameLine, FramePrompt; reason for FrameMalformed
	Command byte   // FrameNegotiation
	Option  byte   // FrameNegotiation, FrameSubneg
	Data    []byte // FrameSubneg payload, IAC IAC already collapsed
}

// MaxSubnegotiation bounds a single SB payload. Longer payloads are
// discarded as malformed.
const MaxSubnegotiation = 1 << 20

type decState int

const (
	stData decState = iota
	stIAC
	stOption
	stSBOption
	stSB
	stSBIAC
)

// Decoder turns a fragmented telnet byte stream into frames. It keeps
// partial lines and partial sequences between calls to Feed, so a frame
// split across any number of reads decodes exactly as if it arrived whole.
// A Decoder is not safe for concurrent use; create one per connection.
type Decoder struct {
	state  decState
	cmd    byte
	subOpt byte
	line   []byte
	sub    []byte
	sbOver bool
}

// NewDecoder returns a decoder in its initial state.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset discards all buffered state.
func (d *Decoder) Reset() {
	*d = Decoder{}
}

// Feed decodes p and returns the frames it completed, in stream order.
func (d *Decoder) Feed(p []byte) []Frame {
	var out []Frame
	for i := 0; i < len(p); i++ {
		b := p[i]
		switch d.state {
		case stData:
			switch b {
			case IAC:
				d.state = stIAC
			case '\n':
				out = append(out, d.takeLine(FrameLine))
			case 0:
				// NUL after bare CR
			default:
				d.line = append(d.line, b)
			}

		case stIAC:
			out = d.command(out, b)

		case stOption:
			out = append(out, Frame{Kind: FrameNegotiation, Command: d.cmd, Option: b})
			d.state = stData

		case stSBOption:
			d.subOpt = b
			d.sub = d.sub[:0]
			d.sbOver = false
			d.state = stSB

		case stSB:
			if b == IAC {
				d.state = stSBIAC
				continue
			}
			d.appendSub(b)

		case stSBIAC:
			switch b {
			case IAC:
				d.appendSub(IAC)
				d.state = stSB
			case SE:
				if d.sbOver {
					out = append(out, malformed("subnegotiation for option %d exceeds %d bytes", d.subOpt, MaxSubnegotiation))
				} else {
					data := make([]byte, len(d.sub))
					copy(data, d.sub)
					out = append(out, Frame{Kind: FrameSubneg, Option: d.subOpt, Data: data})
				}
				d.sub = d.sub[:0]
				d.state = stData
			default:
				// The server started a new command without closing the
				// subnegotiation. Drop the partial payload and treat b
				// as the command that follows IAC.
				out = append(out, malformed("unterminated subnegotiation for option %d", d.subOpt))
				d.sub = d.sub[:0]
				out = d.command(out, b)
			}
		}
	}
	return out
}

// Pending returns the buffered partial line without consuming it.
func (d *Decoder) Pending() []byte {
	return d.line
}

// Flush returns any partial line as a prompt frame and clears it.
func (d *Decoder) Flush() (Frame, bool) {
	if len(d.line) == 0 {
		return Frame{}, false
	}
	return d.takeLine(FramePrompt), true
}

// command handles the byte following IAC outside a subnegotiation.
func (d *Decoder) command(out []Frame, b byte) []Frame {
	d.state = stData
	switch b {
	case IAC:
		d.line = append(d.line, IAC)
	case WILL, WONT, DO, DONT:
		d.cmd = b
		d.state = stOption
	case SB:
		d.state = stSBOption
	case GA, EOR:
		if len(d.line) > 0 {
			out = append(out, d.takeLine(FramePrompt))
		}
	case NOP, DM, BRK, IP, AO, AYT, EC, EL:
		// ignored control commands
	case SE:
		out = append(out, malformed("stray IAC SE"))
	default:
		out = append(out, malformed("unknown telnet command %d", b))
	}
	return out
}

func (d *Decoder) appendSub(b byte) {
	if len(d.sub) >= MaxSubnegotiation {
		d.sbOver = true
		return
	}
	d.sub = append(d.sub, b)
}

func (d *Decoder) takeLine(kind FrameKind) Frame {
	text := d.line
	if n := len(text); n > 0 && text[n-1] == '\r' {
		text = text[:n-1]
	}
	f := Frame{Kind: kind, Text: make([]byte, len(text))}
	copy(f.Text, text)
	d.line = d.line[:0]
	return f
}

func malformed(format string, args ...any) Frame {
	return Frame{Kind: FrameMalformed, Text: []byte(fmt.Sprintf(format, args...))}
}
