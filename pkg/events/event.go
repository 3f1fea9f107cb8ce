// Package events defines the typed game-state events decoded from GMCP and
// the bus that fans them out to subscribers.
package events

import (
	"encoding/json"
	"time"
)

// EventType classifies events for subscription.
type EventType int

const (
	EvVitals  EventType = iota // Char.Vitals
	EvStats                    // Char.Stats / Char.MaxStats
	EvStatus                   // Char.Status
	EvName                     // Char.Name
	EvRoom                     // Room.Info
	EvChannel                  // Comm.Channel / Comm.Channel.Text
	EvUnknown                  // any other module, kept verbatim
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvVitals:
		return "vitals"
	case EvStats:
		return "stats"
	case EvStatus:
		return "status"
	case EvName:
		return "name"
	case EvRoom:
		return "room"
	case EvChannel:
		return "channel"
	case EvUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Event is a decoded GMCP message. The set of implementations is closed:
// Vitals, Stats, Status, CharName, RoomInfo, ChannelMessage and Unknown.
// Consumers switch on the concrete type.
type Event interface {
	Type() EventType
	// Module is the GMCP module name the event was decoded from.
	Module() string
	event()
}

// Vitals is the merged Char.Vitals snapshot. The server sends deltas; the
// dispatcher folds each delta into the previous snapshot.
type Vitals struct {
	HP    int `json:"hp"`
	MaxHP int `json:"maxhp"`
	SP    int `json:"sp"`
	MaxSP int `json:"maxsp"`
}

// HPPercent returns HP as a percentage of MaxHP, 0 when MaxHP is unknown.
func (v Vitals) HPPercent() float64 {
	if v.MaxHP <= 0 {
		return 0
	}
	return float64(v.HP) * 100 / float64(v.MaxHP)
}

// SPPercent returns SP as a percentage of MaxSP, 0 when MaxSP is unknown.
func (v Vitals) SPPercent() float64 {
	if v.MaxSP <= 0 {
		return 0
	}
	return float64(v.SP) * 100 / float64(v.MaxSP)
}

// Stats holds base attributes (Char.Stats) and their effective maximums
// (Char.MaxStats), keyed by the server's attribute names.
type Stats struct {
	Base map[string]int `json:"base"`
	Max  map[string]int `json:"max"`
}

// Clone returns a deep copy.
func (s Stats) Clone() Stats {
	out := Stats{Base: make(map[string]int, len(s.Base)), Max: make(map[string]int, len(s.Max))}
	for k, v := range s.Base {
		out.Base[k] = v
	}
	for k, v := range s.Max {
		out.Max[k] = v
	}
	return out
}

// Effective returns the max value of an attribute when known, else its base.
func (s Stats) Effective(name string) int {
	if v, ok := s.Max["max"+name]; ok && v != 0 {
		return v
	}
	return s.Base[name]
}

// Status is the merged Char.Status snapshot.
type Status struct {
	Level          int     `json:"level"`
	Money          int     `json:"money"`
	BankMoney      int     `json:"bankmoney"`
	Guild          string  `json:"guild"`
	Subguild       string  `json:"subguild"`
	XP             int     `json:"xp"`
	MaxXP          int     `json:"maxxp"`
	Wimpy          int     `json:"wimpy"`
	WimpyDir       string  `json:"wimpy_dir"`
	Aim            string  `json:"aim"`
	QuestPoints    int     `json:"quest_points"`
	Kills          int     `json:"kills"`
	Deaths         int     `json:"deaths"`
	ExplorerRating int     `json:"explorer_rating"`
	PK             Flag    `json:"pk"`
	Inn            Flag    `json:"inn"`
	TotalExpBonus  float64 `json:"total_exp_bonus"`
}

// CharName is Char.Name.
type CharName struct {
	Name     string `json:"name"`
	FullName string `json:"fullname"`
	Guild    string `json:"guild"`
}

// RoomInfo is Room.Info. IDs are kept as strings whatever their JSON type.
type RoomInfo struct {
	ID          string            `json:"num"`
	Name        string            `json:"name"`
	Area        string            `json:"area"`
	Environment string            `json:"environment"`
	Description string            `json:"description,omitempty"`
	Exits       map[string]string `json:"exits"`
}

// ChannelMessage is a line of channel chat.
type ChannelMessage struct {
	Channel string    `json:"channel"`
	Talker  string    `json:"talker"`
	Text    string    `json:"text"`
	Time    time.Time `json:"time"`
}

// Unknown preserves a module the decoder has no type for.
type Unknown struct {
	Name string          `json:"module"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

func (Vitals) Type() EventType         { return EvVitals }
func (Stats) Type() EventType          { return EvStats }
func (Status) Type() EventType         { return EvStatus }
func (CharName) Type() EventType       { return EvName }
func (RoomInfo) Type() EventType       { return EvRoom }
func (ChannelMessage) Type() EventType { return EvChannel }
func (Unknown) Type() EventType        { return EvUnknown }

func (Vitals) Module() string         { return "Char.Vitals" }
func (Stats) Module() string          { return "Char.Stats" }
func (Status) Module() string         { return "Char.Status" }
func (CharName) Module() string       { return "Char.Name" }
func (RoomInfo) Module() string       { return "Room.Info" }
func (ChannelMessage) Module() string { return "Comm.Channel.Text" }
func (u Unknown) Module() string      { return u.Name }

func (Vitals) event()         {}
func (Stats) event()          {}
func (Status) event()         {}
func (CharName) event()       {}
func (RoomInfo) event()       {}
func (ChannelMessage) event() {}
func (Unknown) event()        {}

// Flag decodes booleans that servers send as true/false, 0/1 or "yes"/"no".
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true", "1", `"1"`, `"yes"`, `"on"`, `"true"`:
		*f = true
	default:
		*f = false
	}
	return nil
}
