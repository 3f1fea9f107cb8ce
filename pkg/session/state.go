package session

import (
	"context"
	"strings"
	"time"

	"github.com/crystal-mush/mudmapper/pkg/events"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// State is the connection phase of a session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Negotiating
	Authenticating
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Negotiating:
		return "negotiating"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	default:
		return "invalid"
	}
}

// Text is a line of game output.
type Text struct {
	Text   string    `json:"text"`
	Prompt bool      `json:"prompt,omitempty"`
	Time   time.Time `json:"time"`
}

// DecisionInput is what a Decider sees.
type DecisionInput struct {
	Room       worldmap.Room
	Vitals     events.Vitals
	RecentText []string
}

// Decider chooses the next command while auto-play is on. An empty
// command means do nothing this time.
type Decider interface {
	Decide(ctx context.Context, in DecisionInput) (string, error)
}

// DeciderFunc adapts a function to a Decider.
type DeciderFunc func(ctx context.Context, in DecisionInput) (string, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, in DecisionInput) (string, error) {
	return f(ctx, in)
}

// loginSignal reports whether a GMCP module shows the character is in the
// game.
func loginSignal(module string) bool {
	m := strings.ToLower(module)
	return m == "room.info" || strings.HasPrefix(m, "char.")
}
