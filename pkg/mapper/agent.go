// Package mapper turns protocol events and confirmed movements into world
// graph mutations, and owns the auto-save policy.
package mapper

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/events"
	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/metrics"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

var (
	// ErrNoPosition is returned when a route is asked for before the
	// current room is known.
	ErrNoPosition = errors.New("mapper: current room unknown")
	// ErrUnknownTarget is returned when a route target matches no room id,
	// tag or name.
	ErrUnknownTarget = errors.New("mapper: unknown route target")
)

// Options configures an Agent.
type Options struct {
	// Saver persists the graph. Nil disables saving.
	Saver Saver
	// SaveEvery is the number of mutations between saves. 1 saves on
	// every mutation, 0 only on Save or Flush.
	SaveEvery int

	Enricher      Enricher
	EnrichTimeout time.Duration // default 30s
	EnrichQueue   int           // default 16

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Agent applies room events to a graph. It is owned by one goroutine:
// every method except Snapshot copies handed to others must be called from
// that goroutine. Enrichment runs in the background but its results are
// applied only by ApplyEnrichments.
type Agent struct {
	graph   *worldmap.Graph
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics

	seen    uint64 // graph version after the last accounted mutation
	pending int    // mutations since the last save
	moved   bool   // a movement was recorded since the last Room.Info
	expect  worldmap.Direction
	closed  bool

	enrichCh  chan Enrichment
	requested map[string]bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates an agent over g.
func New(g *worldmap.Graph, opts Options) *Agent {
	if opts.EnrichTimeout <= 0 {
		opts.EnrichTimeout = 30 * time.Second
	}
	if opts.EnrichQueue <= 0 {
		opts.EnrichQueue = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		graph:     g,
		opts:      opts,
		log:       logging.OrNop(opts.Logger).Named("mapper"),
		metrics:   opts.Metrics,
		seen:      g.Version(),
		enrichCh:  make(chan Enrichment, opts.EnrichQueue),
		requested: make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.publish()
	return a
}

// Graph returns the owned graph.
func (a *Agent) Graph() *worldmap.Graph { return a.graph }

// CurrentRoom returns the id of the room the player is in, or "".
func (a *Agent) CurrentRoom() string { return a.graph.CurrentRoom() }

// Pending returns the number of mutations not yet saved.
func (a *Agent) Pending() int { return a.pending }

// Receive handles bus events. Only RoomInfo changes the map.
func (a *Agent) Receive(ev events.Event) {
	if room, ok := ev.(events.RoomInfo); ok {
		a.HandleRoom(room)
	}
}

// Closed reports whether Close was called.
func (a *Agent) Closed() bool { return a.closed }

// HandleRoom applies a Room.Info. It counts as entering the room when the
// room differs from the current one or a movement was recorded since the
// last Room.Info; otherwise it refreshes the current room. An expected
// movement (see ExpectMove) is recorded in the same mutation when the
// exits confirm it, and forgotten either way.
func (a *Agent) HandleRoom(info events.RoomInfo) worldmap.Change {
	expected := a.expect
	a.expect = ""
	if info.ID == "" {
		return worldmap.Change{}
	}
	data := worldmap.RoomData{
		Name:        info.Name,
		Area:        info.Area,
		Environment: info.Environment,
		Description: info.Description,
		Exits:       info.Exits,
	}

	from := a.graph.CurrentRoom()
	var ch worldmap.Change
	if info.ID != from || a.moved {
		ch = a.graph.UpsertRoom(info.ID, data)
	} else {
		ch = a.graph.RefreshRoom(info.ID, data)
	}
	if expected != "" && from != "" && info.ID != from {
		if a.confirms(from, expected, info) {
			if a.graph.AddEdge(from, info.ID, string(expected)) {
				ch.EdgesAdded++
			}
			a.log.Debug("movement", zap.String("from", from), zap.String("direction", string(expected)), zap.String("to", info.ID))
		} else {
			a.log.Debug("movement not confirmed", zap.String("from", from), zap.String("direction", string(expected)), zap.String("to", info.ID))
		}
	}
	a.moved = false
	a.graph.SetCurrentRoom(info.ID)

	if ch.Created || ch.Promoted {
		a.log.Debug("room explored", zap.String("room", info.ID), zap.String("name", info.Name), zap.Int("placeholders", ch.Placeholders))
	}
	a.enrich(info.ID)
	a.mutated()
	return ch
}

// confirms reports whether arriving in info after moving dir from room
// from is consistent with what the map knows. A listed exit must lead to
// the new room; an unlisted one needs the new room to list the way back.
func (a *Agent) confirms(from string, dir worldmap.Direction, info events.RoomInfo) bool {
	origin, ok := a.graph.Room(from)
	if !ok {
		return false
	}
	if to, ok := origin.Exits[dir]; ok {
		return to == info.ID
	}
	rev, ok := dir.Reverse()
	if !ok {
		return false
	}
	for name, id := range info.Exits {
		if id == from && worldmap.Canonicalize(name) == rev {
			return true
		}
	}
	return false
}

// ExpectMove notes that a movement command was sent from the current
// room. Only the most recent one is kept; the next Room.Info consumes it.
func (a *Agent) ExpectMove(direction string) {
	a.expect = worldmap.Canonicalize(direction)
}

// CancelMove forgets an expected movement, for example when another
// command was sent after it.
func (a *Agent) CancelMove() { a.expect = "" }

// RecordMovement records that moving in direction from the current room
// led to room to. The target is created if needed, the edge is added and
// the current room moves.
func (a *Agent) RecordMovement(direction, to string) bool {
	if to == "" {
		return false
	}
	from := a.graph.CurrentRoom()
	added := false
	if from == "" {
		a.graph.GetOrCreateRoom(to)
	} else {
		added = a.graph.AddEdge(from, to, direction)
	}
	a.graph.SetCurrentRoom(to)
	a.moved = true
	a.log.Debug("movement", zap.String("from", from), zap.String("direction", string(worldmap.Canonicalize(direction))), zap.String("to", to))
	a.mutated()
	return added
}

// Tag adds a tag to a room.
func (a *Agent) Tag(id, tag string) bool {
	ok := a.graph.Tag(id, tag)
	a.mutated()
	return ok
}

// Untag removes a tag from a room.
func (a *Agent) Untag(id, tag string) bool {
	ok := a.graph.Untag(id, tag)
	a.mutated()
	return ok
}

// SetNotes replaces a room's notes.
func (a *Agent) SetNotes(id, notes string) bool {
	ok := a.graph.SetNotes(id, notes)
	a.mutated()
	return ok
}

// Route is a resolved route request.
type Route struct {
	Target   worldmap.Room `json:"target"`
	Path     worldmap.Path `json:"path"`
	Commands string        `json:"commands"`
}

// GetRouteTo resolves target as a room id, then as a tag (nearest room
// carrying it), then as an exact room name (nearest, ignoring case), and
// returns the path from the current room. A target that resolves but
// cannot be reached has Path.Status PathNotFound.
func (a *Agent) GetRouteTo(target string) (Route, error) {
	from := a.graph.CurrentRoom()
	if from == "" {
		return Route{}, ErrNoPosition
	}
	target = strings.TrimSpace(target)

	var r Route
	if room, ok := a.graph.Room(target); ok {
		r = Route{Target: room, Path: a.graph.FindPath(from, target)}
	} else if room, p, ok := a.graph.FindNearestByTag(from, target); ok {
		r = Route{Target: room, Path: p}
	} else if room, p, ok := a.graph.FindNearestByName(from, target); ok {
		r = Route{Target: room, Path: p}
	} else {
		return Route{}, ErrUnknownTarget
	}
	if r.Path.Status == worldmap.PathFound {
		r.Commands = worldmap.CompressRoute(r.Path.Directions())
	}
	return r, nil
}

// Snapshot returns an immutable copy of the graph.
func (a *Agent) Snapshot() *worldmap.Snapshot { return a.graph.Snapshot() }

// mutated accounts for a graph change and saves when the policy says so.
func (a *Agent) mutated() {
	v := a.graph.Version()
	if v == a.seen {
		return
	}
	a.seen = v
	a.pending++
	a.publish()
	if a.opts.SaveEvery > 0 && a.pending >= a.opts.SaveEvery {
		a.Save()
	}
}

func (a *Agent) publish() {
	if a.metrics == nil {
		return
	}
	s := a.graph.Stats()
	a.metrics.Graph(s.Rooms, s.Explored, s.Edges)
}

// Save writes the graph through the Saver. Errors are logged and returned;
// pending mutations stay pending on failure.
func (a *Agent) Save() error {
	if a.opts.Saver == nil {
		return nil
	}
	err := a.opts.Saver.SaveGraph(a.graph)
	a.metrics.Save(err)
	if err != nil {
		a.log.Error("save failed", zap.Error(err), zap.Int("pending", a.pending))
		return err
	}
	// Saving lays the graph out, which is not a mutation of its own.
	a.seen = a.graph.Version()
	a.pending = 0
	return nil
}

// Flush saves if there are unsaved mutations.
func (a *Agent) Flush() error {
	if a.pending == 0 {
		return nil
	}
	return a.Save()
}

// Close stops background enrichment and flushes.
func (a *Agent) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.cancel()
	a.wg.Wait()
	return a.Flush()
}
