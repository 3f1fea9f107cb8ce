package worldmap

import "strings"

// Direction is an exit key. Standard directions use their short canonical
// form; custom exits ("portal", "climb tree") are kept lower-cased.
type Direction string

// Canonical directions.
const (
	North     Direction = "n"
	South     Direction = "s"
	East      Direction = "e"
	West      Direction = "w"
	Northeast Direction = "ne"
	Northwest Direction = "nw"
	Southeast Direction = "se"
	Southwest Direction = "sw"
	Up        Direction = "u"
	Down      Direction = "d"
	Enter     Direction = "enter"
	Out       Direction = "out"
)

// Standard lists the canonical directions.
var Standard = []Direction{North, South, East, West, Northeast, Northwest, Southeast, Southwest, Up, Down, Enter, Out}

var aliases = map[string]Direction{
	"n": North, "north": North,
	"s": South, "south": South,
	"e": East, "east": East,
	"w": West, "west": West,
	"ne": Northeast, "northeast": Northeast, "north-east": Northeast,
	"nw": Northwest, "northwest": Northwest, "north-west": Northwest,
	"se": Southeast, "southeast": Southeast, "south-east": Southeast,
	"sw": Southwest, "southwest": Southwest, "south-west": Southwest,
	"u": Up, "up": Up,
	"d": Down, "down": Down,
	"enter": Enter, "in": Enter,
	"out": Out,
}

var reverse = map[Direction]Direction{
	North: South, South: North,
	East: West, West: East,
	Northeast: Southwest, Southwest: Northeast,
	Northwest: Southeast, Southeast: Northwest,
	Up: Down, Down: Up,
	Enter: Out, Out: Enter,
}

// Canonicalize resolves an exit name through the alias table, ignoring
// case. Names not in the table are custom exits and pass through trimmed
// with their case kept.
func Canonicalize(raw string) Direction {
	key := strings.TrimSpace(raw)
	if d, ok := aliases[strings.ToLower(key)]; ok {
		return d
	}
	return Direction(key)
}

// ParseDirection recognizes a movement command. Only standard directions
// and their aliases qualify; "go north" is accepted too.
func ParseDirection(command string) (Direction, bool) {
	key := strings.ToLower(strings.TrimSpace(command))
	key = strings.TrimPrefix(key, "go ")
	d, ok := aliases[strings.TrimSpace(key)]
	return d, ok
}

// IsStandard reports whether d is one of the canonical directions.
func (d Direction) IsStandard() bool {
	_, ok := reverse[d]
	return ok
}

// Reverse returns the opposite direction. Custom exits have none.
func (d Direction) Reverse() (Direction, bool) {
	r, ok := reverse[d]
	return r, ok
}
