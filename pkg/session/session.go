// Package session ties a MUD connection, the GMCP dispatcher and the
// mapping agent together in one loop, and exposes commands, hooks and map
// snapshots to the decision agent and UIs.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/events"
	"github.com/crystal-mush/mudmapper/pkg/gmcp"
	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/mapper"
	"github.com/crystal-mush/mudmapper/pkg/metrics"
	"github.com/crystal-mush/mudmapper/pkg/mudconn"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

var (
	// ErrNotReady is returned for commands and queries outside Ready.
	ErrNotReady = errors.New("session: not ready")
	// ErrNoRoute is returned when a target is known but unreachable.
	ErrNoRoute = errors.New("session: no route")
	// ErrQueueFull is returned when too many commands are waiting.
	ErrQueueFull = errors.New("session: command queue full")
	// ErrRunning is returned by Run while another Run is active.
	ErrRunning = errors.New("session: already running")
)

// Config holds session settings.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Charset      string
	TerminalType string

	ConnectTimeout   time.Duration // default 10s
	NegotiateTimeout time.Duration // default 5s
	LoginTimeout     time.Duration // default 30s
	LoginDelay       time.Duration // between username and password
	DecisionTimeout  time.Duration // default 30s
	CommandDelay     time.Duration // minimum gap between autonomous commands

	AutoPlay    bool
	RecentLines int // default 20
	QueueSize   int // default 256
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.NegotiateTimeout <= 0 {
		c.NegotiateTimeout = 5 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 30 * time.Second
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = 30 * time.Second
	}
	if c.RecentLines <= 0 {
		c.RecentLines = 20
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Options configures a Session.
type Options struct {
	Config  Config
	Agent   *mapper.Agent
	Decider Decider
	Version string // reported in Core.Hello
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type command struct {
	text   string
	origin string
}

// Session is the orchestrator. Run drives it; every other exported method
// is safe to call from any goroutine. Hooks run on the Run goroutine and
// must not block or call GetRouteTo.
type Session struct {
	id      string
	cfg     Config
	version string
	log     *zap.Logger
	metrics *metrics.Metrics

	bus        *events.Bus
	dispatcher *gmcp.Dispatcher
	agent      *mapper.Agent
	decider    Decider

	state    atomic.Int32
	running  atomic.Bool
	quit     atomic.Pointer[chan struct{}]
	autoPlay atomic.Bool
	snapshot atomic.Pointer[worldmap.Snapshot]

	commands chan command
	queries  chan func()

	hookMu sync.Mutex
	hooks  hooks

	// Owned by the Run goroutine.
	conn       *mudconn.Conn
	preReady   []mudconn.Event
	recent     []string
	lastRoom   string
	lastVitals events.Vitals
	published  uint64
	loginSeen  bool
	credsSent  bool
	lastAuto   time.Time
}

// New builds a session around agent. Every protocol event handler is
// registered here, so none can miss an event.
func New(opts Options) (*Session, error) {
	if opts.Agent == nil {
		return nil, errors.New("session: mapping agent required")
	}
	opts.Config.withDefaults()
	id := uuid.NewString()
	s := &Session{
		id:       id,
		cfg:      opts.Config,
		version:  opts.Version,
		log:      logging.OrNop(opts.Logger).Named("session").With(zap.String("session", id)),
		metrics:  opts.Metrics,
		bus:      events.NewBus(),
		agent:    opts.Agent,
		decider:  opts.Decider,
		commands: make(chan command, opts.Config.QueueSize),
		queries:  make(chan func()),
	}
	s.dispatcher = gmcp.New(s.bus, gmcp.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	s.autoPlay.Store(opts.Config.AutoPlay)

	// Registration order is delivery order: the map is updated before the
	// UI hooks see a room.
	s.bus.Subscribe(s.agent, events.EvRoom)
	s.bus.SubscribeGlobal(events.SubscriberFunc(s.notify))

	s.snapshot.Store(s.agent.Snapshot())
	s.published = s.agent.Graph().Version()
	s.metrics.State(Disconnected.String())
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Bus exposes the protocol event bus for extra subscribers. Subscribers
// run on the Run goroutine.
func (s *Session) Bus() *events.Bus { return s.bus }

// Dispatcher exposes the latest protocol snapshots.
func (s *Session) Dispatcher() *gmcp.Dispatcher { return s.dispatcher }

// GetMapSnapshot returns the map as of the end of the last loop cycle.
func (s *Session) GetMapSnapshot() *worldmap.Snapshot { return s.snapshot.Load() }

// SetAutoPlay turns autonomous play on or off.
func (s *Session) SetAutoPlay(on bool) {
	s.autoPlay.Store(on)
	s.log.Info("auto-play", zap.Bool("on", on))
}

// AutoPlay reports whether autonomous play is on.
func (s *Session) AutoPlay() bool { return s.autoPlay.Load() }

// Send queues a command for the game. Commands are sent in order by the
// Run goroutine.
func (s *Session) Send(text string) error {
	return s.enqueue(command{text: text, origin: "user"})
}

func (s *Session) enqueue(c command) error {
	if s.State() != Ready {
		return ErrNotReady
	}
	select {
	case s.commands <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// GetRouteTo resolves a route on the Run goroutine. target is a room id,
// tag or room name.
func (s *Session) GetRouteTo(ctx context.Context, target string) (mapper.Route, error) {
	var (
		route mapper.Route
		err   error
	)
	qerr := s.query(ctx, func() {
		route, err = s.agent.GetRouteTo(target)
		if err == nil && route.Path.Status == worldmap.PathNotFound {
			err = fmt.Errorf("%w to %q", ErrNoRoute, target)
		}
	})
	if qerr != nil {
		return mapper.Route{}, qerr
	}
	return route, err
}

// Adjacent lists the exits of room id, or of the current room when id is
// empty, as the live map knows them.
func (s *Session) Adjacent(ctx context.Context, id string) ([]worldmap.Neighbor, error) {
	var out []worldmap.Neighbor
	err := s.query(ctx, func() {
		g := s.agent.Graph()
		if id == "" {
			id = g.CurrentRoom()
		}
		out = g.Adjacent(id)
	})
	return out, err
}

// query runs fn on the Run goroutine and waits for it.
func (s *Session) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	q := func() {
		defer close(done)
		fn()
	}
	quit := s.quit.Load()
	if quit == nil {
		return ErrNotReady
	}
	select {
	case s.queries <- q:
	case <-*quit:
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Walk queues every step of the route to target.
func (s *Session) Walk(ctx context.Context, target string) error {
	route, err := s.GetRouteTo(ctx, target)
	if err != nil {
		return err
	}
	for _, step := range worldmap.ExpandRoute(route.Commands) {
		if err := s.enqueue(command{text: step, origin: "walk"}); err != nil {
			return err
		}
	}
	return nil
}

// Run connects and drives the session until the connection ends or ctx is
// cancelled. A connection failure is returned as a *mudconn.ConnectionError;
// cancellation returns nil. Every Run ends in Disconnected exactly once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)
	s.reset()

	quit := make(chan struct{})
	s.quit.Store(&quit)
	defer func() {
		s.quit.Store(nil)
		close(quit)
	}()

	s.setState(Connecting)
	conn, err := mudconn.Dial(ctx, s.cfg.Host, s.cfg.Port, mudconn.Options{
		Timeout:       s.cfg.ConnectTimeout,
		Charset:       s.cfg.Charset,
		TerminalType:  s.cfg.TerminalType,
		ClientVersion: s.version,
		Logger:        s.log,
		Metrics:       s.metrics,
	})
	if err != nil {
		s.finish(err)
		return err
	}
	s.conn = conn
	s.log.Info("connected", zap.String("addr", conn.Addr()))
	s.setState(Negotiating)

	err = s.loop(ctx)

	// Drain until the reader goroutine is done.
	conn.Close()
	for range conn.Events() {
	}
	if ferr := s.agent.Flush(); ferr != nil {
		s.log.Warn("flush on disconnect", zap.Error(ferr))
	}
	s.publish()
	s.finish(err)
	return err
}

func (s *Session) reset() {
	s.conn = nil
	s.preReady = nil
	s.agent.CancelMove()
	s.recent = nil
	s.loginSeen = false
	s.credsSent = false
	s.lastAuto = time.Time{}
	for {
		select {
		case <-s.commands:
		default:
			return
		}
	}
}

func (s *Session) loop(ctx context.Context) error {
	negotiate := time.NewTimer(s.cfg.NegotiateTimeout)
	defer negotiate.Stop()
	var loginTimeout, password <-chan time.Time

	tick := s.cfg.CommandDelay
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	authenticate := func() {
		if s.State() != Negotiating {
			return
		}
		s.setState(Authenticating)
		loginTimeout = time.After(s.cfg.LoginTimeout)
		password = s.login()
		s.maybeReady()
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cancelled")
			return nil

		case ev, ok := <-s.conn.Events():
			if !ok {
				return s.conn.Err()
			}
			switch {
			case ev.Kind == mudconn.EventDisconnected:
				return ev.Err
			case ev.Kind == mudconn.EventNegotiated:
				authenticate()
			case s.State() < Ready:
				if ev.Kind == mudconn.EventGMCP && loginSignal(ev.Module) {
					s.loginSeen = true
				}
				s.preReady = append(s.preReady, ev)
				s.maybeReady()
			default:
				s.handle(ev)
			}

		case <-negotiate.C:
			if s.State() == Negotiating {
				s.log.Debug("negotiation timed out")
				authenticate()
			}

		case <-password:
			password = nil
			s.write(s.cfg.Password, "login")
			s.credsSent = true
			s.maybeReady()

		case <-loginTimeout:
			loginTimeout = nil
			if s.State() == Authenticating {
				s.log.Warn("login not confirmed, continuing")
				s.credsSent = true
				s.loginSeen = true
				s.maybeReady()
			}

		case c := <-s.commands:
			s.execute(c)

		case res := <-s.agent.Enrichments():
			s.agent.Apply(res)

		case q := <-s.queries:
			q()

		case <-ticker.C:
			s.autoStep(ctx)
		}
		s.publish()
	}
}

// login sends the username and returns a channel that fires when the
// password is due, or nil when there is no password to send.
func (s *Session) login() <-chan time.Time {
	if s.cfg.Username == "" {
		s.credsSent = true
		return nil
	}
	s.write(s.cfg.Username, "login")
	if s.cfg.Password == "" {
		s.credsSent = true
		return nil
	}
	return time.After(s.cfg.LoginDelay)
}

// maybeReady finishes authentication once credentials are out and the
// game has sent character or room data.
func (s *Session) maybeReady() {
	if s.State() != Authenticating || !s.credsSent || !s.loginSeen {
		return
	}
	s.setState(Ready)
	buffered := s.preReady
	s.preReady = nil
	s.log.Debug("replaying buffered events", zap.Int("count", len(buffered)))
	for _, ev := range buffered {
		s.handle(ev)
	}
}

// handle processes one connection event in Ready.
func (s *Session) handle(ev mudconn.Event) {
	switch ev.Kind {
	case mudconn.EventLine, mudconn.EventPrompt:
		s.recent = append(s.recent, ev.Text)
		if over := len(s.recent) - s.cfg.RecentLines; over > 0 {
			s.recent = append([]string(nil), s.recent[over:]...)
		}
		t := Text{Text: ev.Text, Prompt: ev.Kind == mudconn.EventPrompt, Time: ev.Time}
		for _, fn := range s.hookList().text {
			fn(t)
		}
	case mudconn.EventGMCP:
		// Protocol errors are logged by the dispatcher and dropped.
		s.dispatcher.Dispatch(ev.Module, ev.Payload)
	}
}

// notify runs the UI hooks for room and vitals changes.
func (s *Session) notify(ev events.Event) {
	switch e := ev.(type) {
	case events.RoomInfo:
		if e.ID == s.lastRoom {
			return
		}
		s.lastRoom = e.ID
		for _, fn := range s.hookList().room {
			fn(e)
		}
	case events.Vitals:
		if e == s.lastVitals {
			return
		}
		s.lastVitals = e
		for _, fn := range s.hookList().vitals {
			fn(e)
		}
	}
}

func (s *Session) execute(c command) {
	if s.State() != Ready {
		return
	}
	if err := s.write(c.text, c.origin); err != nil {
		return
	}
	// Only the last command can explain the next room change.
	if d, ok := worldmap.ParseDirection(c.text); ok {
		s.agent.ExpectMove(string(d))
	} else {
		s.agent.CancelMove()
	}
}

func (s *Session) write(text, origin string) error {
	if err := s.conn.Send(text); err != nil {
		s.log.Warn("send failed", zap.String("origin", origin), zap.Error(err))
		return err
	}
	s.metrics.Command(origin)
	if origin != "login" {
		s.log.Debug("sent", zap.String("origin", origin), zap.String("command", text))
	}
	return nil
}

// autoStep asks the decider for a command when auto-play is on, the
// command queue is empty and CommandDelay has passed.
func (s *Session) autoStep(ctx context.Context) {
	if s.decider == nil || !s.autoPlay.Load() || s.State() != Ready || len(s.commands) > 0 {
		return
	}
	if time.Since(s.lastAuto) < s.cfg.CommandDelay {
		return
	}
	s.lastAuto = time.Now()

	in := DecisionInput{
		Vitals:     s.dispatcher.Vitals(),
		RecentText: append([]string(nil), s.recent...),
	}
	if r, ok := s.agent.Graph().Room(s.agent.CurrentRoom()); ok {
		in.Room = r
	}
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DecisionTimeout)
	defer cancel()
	cmd, err := s.decider.Decide(dctx, in)
	if err != nil {
		s.log.Warn("decider failed", zap.Error(err))
		return
	}
	if cmd == "" {
		return
	}
	s.execute(command{text: cmd, origin: "auto"})
}

// publish stores a new snapshot when the graph changed.
func (s *Session) publish() {
	g := s.agent.Graph()
	if v := g.Version(); v != s.published {
		s.published = v
		s.snapshot.Store(g.Snapshot())
	}
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old == st {
		return
	}
	s.metrics.State(st.String())
	s.log.Info("state", zap.Stringer("from", old), zap.Stringer("to", st))
	for _, fn := range s.hookList().state {
		fn(st)
	}
}

// finish moves to Disconnected and runs the disconnect hooks.
func (s *Session) finish(cause error) {
	s.setState(Disconnected)
	if cause != nil {
		s.log.Warn("session ended", zap.Error(cause))
	}
	for _, fn := range s.hookList().disconnect {
		fn(cause)
	}
}
