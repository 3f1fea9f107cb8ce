// Package gmcp decodes GMCP messages into typed events, keeps the latest
// game-state snapshot and publishes each event on an events.Bus.
package gmcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/events"
	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/metrics"
)

// MaxChannelHistory is the number of channel messages kept.
const MaxChannelHistory = 100

// ProtocolError reports a GMCP message that could not be decoded. The
// message is dropped; the stream continues.
type ProtocolError struct {
	Module string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gmcp: %s: %v", e.Module, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

var errMissingID = errors.New("room without num")

// Options configure a Dispatcher.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Dispatcher routes GMCP messages. Dispatch is meant to be called from one
// goroutine; the snapshot getters are safe from any goroutine.
type Dispatcher struct {
	bus     *events.Bus
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	vitals   events.Vitals
	stats    events.Stats
	status   events.Status
	name     events.CharName
	room     events.RoomInfo
	hasRoom  bool
	channels []events.ChannelMessage
	raw      map[string]json.RawMessage
}

// New creates a dispatcher publishing on bus. A nil bus gets a fresh one.
func New(bus *events.Bus, opts Options) *Dispatcher {
	if bus == nil {
		bus = events.NewBus()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		bus:     bus,
		log:     logging.OrNop(opts.Logger).Named("gmcp"),
		metrics: opts.Metrics,
		now:     opts.Now,
		stats:   events.Stats{Base: map[string]int{}, Max: map[string]int{}},
		raw:     make(map[string]json.RawMessage),
	}
}

// Bus returns the bus events are published on.
func (d *Dispatcher) Bus() *events.Bus { return d.bus }

// Dispatch decodes one GMCP message, folds it into the snapshot and emits
// the resulting event to subscribers before returning it. A known module
// with an empty payload yields (nil, nil).
func (d *Dispatcher) Dispatch(module string, payload []byte) (events.Event, error) {
	ev, err := d.decode(module, bytes.TrimSpace(payload))
	if err != nil {
		perr := &ProtocolError{Module: module, Err: err}
		d.metrics.ProtocolError(module)
		d.log.Warn("dropped gmcp message", zap.String("module", module), zap.Error(err))
		return nil, perr
	}
	if ev == nil {
		d.log.Debug("empty gmcp payload", zap.String("module", module))
		return nil, nil
	}
	d.bus.Emit(ev)
	return ev, nil
}

func (d *Dispatcher) decode(module string, payload []byte) (events.Event, error) {
	key := strings.ToLower(module)
	known := true
	switch key {
	case "char.vitals", "char.stats", "char.maxstats", "char.status", "char.name",
		"room.info", "comm.channel", "comm.channel.text":
	default:
		known = false
	}
	if !known {
		return d.unknown(module, payload)
	}
	if isEmpty(payload) {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch key {
	case "char.vitals":
		var delta map[string]flexInt
		if err := json.Unmarshal(payload, &delta); err != nil {
			return nil, err
		}
		v := d.vitals
		for k, n := range delta {
			switch strings.ToLower(k) {
			case "hp":
				v.HP = int(n)
			case "maxhp":
				v.MaxHP = int(n)
			case "sp":
				v.SP = int(n)
			case "maxsp":
				v.MaxSP = int(n)
			}
		}
		d.vitals = v
		return v, nil

	case "char.stats", "char.maxstats":
		var delta map[string]flexInt
		if err := json.Unmarshal(payload, &delta); err != nil {
			return nil, err
		}
		s := d.stats.Clone()
		dst := s.Base
		if key == "char.maxstats" {
			dst = s.Max
		}
		for k, n := range delta {
			dst[strings.ToLower(k)] = int(n)
		}
		d.stats = s
		return s.Clone(), nil

	case "char.status":
		s := d.status
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, err
		}
		d.status = s
		return s, nil

	case "char.name":
		n := d.name
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		d.name = n
		return n, nil

	case "room.info":
		room, err := decodeRoom(payload)
		if err != nil {
			return nil, err
		}
		d.room = room
		d.hasRoom = true
		return room, nil

	default: // comm.channel, comm.channel.text
		var m events.ChannelMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		m.Time = d.now()
		d.channels = append(d.channels, m)
		if n := len(d.channels); n > MaxChannelHistory {
			d.channels = append([]events.ChannelMessage(nil), d.channels[n-MaxChannelHistory:]...)
		}
		return m, nil
	}
}

// unknown keeps the payload verbatim. Non-empty payloads must still be JSON.
func (d *Dispatcher) unknown(module string, payload []byte) (events.Event, error) {
	var raw json.RawMessage
	if len(payload) > 0 {
		if !json.Valid(payload) {
			return nil, errors.New("invalid JSON payload")
		}
		raw = append(json.RawMessage(nil), payload...)
	}
	d.mu.Lock()
	d.raw[strings.ToLower(module)] = raw
	d.mu.Unlock()
	return events.Unknown{Name: module, Raw: raw}, nil
}

type wireRoom struct {
	Num         flexID            `json:"num"`
	Name        string            `json:"name"`
	Area        string            `json:"area"`
	Environment string            `json:"environment"`
	Description string            `json:"description"`
	Exits       map[string]flexID `json:"exits"`
}

func decodeRoom(payload []byte) (events.RoomInfo, error) {
	var w wireRoom
	if err := json.Unmarshal(payload, &w); err != nil {
		return events.RoomInfo{}, err
	}
	if w.Num == "" {
		return events.RoomInfo{}, errMissingID
	}
	room := events.RoomInfo{
		ID:          string(w.Num),
		Name:        w.Name,
		Area:        w.Area,
		Environment: w.Environment,
		Description: w.Description,
		Exits:       make(map[string]string, len(w.Exits)),
	}
	for dir, id := range w.Exits {
		if id != "" {
			room.Exits[dir] = string(id)
		}
	}
	return room, nil
}

// Vitals returns the latest merged vitals.
func (d *Dispatcher) Vitals() events.Vitals {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.vitals
}

// Stats returns a copy of the latest stats.
func (d *Dispatcher) Stats() events.Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats.Clone()
}

// Status returns the latest character status.
func (d *Dispatcher) Status() events.Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Name returns the latest Char.Name.
func (d *Dispatcher) Name() events.CharName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// Room returns the last Room.Info, if any arrived.
func (d *Dispatcher) Room() (events.RoomInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.room, d.hasRoom
}

// Channels returns up to the last MaxChannelHistory channel messages,
// oldest first.
func (d *Dispatcher) Channels() []events.ChannelMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]events.ChannelMessage(nil), d.channels...)
}

// Raw returns the last payload of a module without a typed decoder,
// such as Comm.Channel.List or Guild.*.
func (d *Dispatcher) Raw(module string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	raw, ok := d.raw[strings.ToLower(module)]
	return raw, ok
}

func isEmpty(payload []byte) bool {
	switch string(payload) {
	case "", "null", "{}":
		return true
	}
	return false
}

// flexInt accepts JSON numbers and numeric strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	if i, err := strconv.Atoi(s); err == nil {
		*n = flexInt(i)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = flexInt(f)
	return nil
}

// flexID accepts room ids sent as numbers or strings.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("room id must be a number or string: %s", b)
	}
	s = num.String()
	// 1.0 and 1e3 name the same rooms as 1 and 1000.
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		if f, err := num.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			s = strconv.FormatInt(int64(f), 10)
		}
	}
	*id = flexID(s)
	return nil
}
