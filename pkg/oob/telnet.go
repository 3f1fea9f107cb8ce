package oob

// Telnet protocol constants used by OOB negotiations.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	GA   byte = 249 // Go Ahead
	EL   byte = 248
	EC   byte = 247
	AYT  byte = 246
	AO   byte = 245
	IP   byte = 244
	BRK  byte = 243
	DM   byte = 242
	NOP  byte = 241
	SE   byte = 240 // Subnegotiation End
	EOR  byte = 239 // End Of Record, sent by some servers after prompts

	// Telnet options the client understands
	TeloptEcho  byte = 1
	TeloptSGA   byte = 3  // Suppress Go Ahead
	TeloptTTYPE byte = 24 // Terminal Type
	TeloptEOR   byte = 25
	TeloptNAWS  byte = 31
	TeloptGMCP  byte = 201 // GMCP option number
)

// TTYPE subnegotiation codes.
const (
	TTypeIS   byte = 0
	TTypeSend byte = 1
)

// CommandName returns a short name for a telnet command byte, for logging.
func CommandName(b byte) string {
	switch b {
	case WILL:
		return "WILL"
	case WONT:
		return "WONT"
	case DO:
		return "DO"
	case DONT:
		return "DONT"
	case SB:
		return "SB"
	case SE:
		return "SE"
	case GA:
		return "GA"
	case EOR:
		return "EOR"
	case NOP:
		return "NOP"
	case IAC:
		return "IAC"
	default:
		return "CMD"
	}
}
