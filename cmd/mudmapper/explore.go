package main

import (
	"context"
	"sort"

	"github.com/crystal-mush/mudmapper/pkg/session"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// explorer is a simple Decider: it takes an exit leading to a room that
// has not been explored yet, otherwise the exit to the least visited
// neighbor. Ties go to the alphabetically first direction.
type explorer struct {
	snapshot func() *worldmap.Snapshot
}

func (e explorer) Decide(ctx context.Context, in session.DecisionInput) (string, error) {
	if len(in.Room.Exits) == 0 {
		return "", nil
	}
	snap := e.snapshot()

	dirs := make([]worldmap.Direction, 0, len(in.Room.Exits))
	for d := range in.Room.Exits {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i] < dirs[j] })

	best, bestVisits := worldmap.Direction(""), -1
	for _, d := range dirs {
		target, ok := snap.Room(in.Room.Exits[d])
		if !ok || !target.Explored {
			return string(d), nil
		}
		if bestVisits < 0 || target.VisitCount < bestVisits {
			best, bestVisits = d, target.VisitCount
		}
	}
	return string(best), nil
}
