package session

import "github.com/crystal-mush/mudmapper/pkg/events"

type hooks struct {
	room       []func(events.RoomInfo)
	vitals     []func(events.Vitals)
	text       []func(Text)
	state      []func(State)
	disconnect []func(error)
}

// hookList returns the registered hooks. The slices are never modified in
// place, so callers may range over them without the lock.
func (s *Session) hookList() hooks {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return s.hooks
}

// OnRoomChange registers fn for every Room.Info that names a different
// room than the last one.
func (s *Session) OnRoomChange(fn func(events.RoomInfo)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks.room = appendHook(s.hooks.room, fn)
}

// OnVitalsChange registers fn for every change of the merged vitals.
func (s *Session) OnVitalsChange(fn func(events.Vitals)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks.vitals = appendHook(s.hooks.vitals, fn)
}

// OnText registers fn for every line and prompt received in Ready.
func (s *Session) OnText(fn func(Text)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks.text = appendHook(s.hooks.text, fn)
}

// OnStateChange registers fn for state transitions.
func (s *Session) OnStateChange(fn func(State)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks.state = appendHook(s.hooks.state, fn)
}

// OnDisconnect registers fn, called once at the end of every Run with the
// cause, or nil after cancellation.
func (s *Session) OnDisconnect(fn func(error)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks.disconnect = appendHook(s.hooks.disconnect, fn)
}

// appendHook copies so that lists handed out by hookList stay unchanged.
func appendHook[T any](list []T, fn T) []T {
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return append(out, fn)
}
