package mapper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// Enrichment is what an Enricher learned about a room.
type Enrichment struct {
	RoomID string
	Tags   []string
	Notes  string
	Items  []worldmap.Item
	NPCs   []worldmap.NPC
}

// Enricher derives tags, notes and room contents from a room's description text, for
// example with a language model. It may be slow and may fail.
type Enricher interface {
	Enrich(ctx context.Context, room worldmap.Room) (Enrichment, error)
}

// EnricherFunc adapts a function to an Enricher.
type EnricherFunc func(ctx context.Context, room worldmap.Room) (Enrichment, error)

// Enrich calls f.
func (f EnricherFunc) Enrich(ctx context.Context, room worldmap.Room) (Enrichment, error) {
	return f(ctx, room)
}

// enrich starts one background enrichment per described room.
func (a *Agent) enrich(id string) {
	if a.opts.Enricher == nil || a.closed || a.requested[id] {
		return
	}
	room, ok := a.graph.Room(id)
	if !ok || room.Description == "" {
		return
	}
	a.requested[id] = true

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(a.ctx, a.opts.EnrichTimeout)
		defer cancel()

		res, err := a.opts.Enricher.Enrich(ctx, room)
		if err != nil {
			a.metrics.Enrichment("error")
			a.log.Warn("enrichment failed", zap.String("room", room.ID), zap.Error(err))
			return
		}
		if res.RoomID == "" {
			res.RoomID = room.ID
		}
		select {
		case a.enrichCh <- res:
			a.metrics.Enrichment("ok")
		default:
			a.metrics.Enrichment("dropped")
			a.log.Warn("enrichment queue full, result dropped", zap.String("room", room.ID))
		}
	}()
}

// Enrichments exposes the result queue so an owner loop can select on it.
func (a *Agent) Enrichments() <-chan Enrichment { return a.enrichCh }

// ApplyEnrichments applies every queued result and returns how many were
// applied. Notes only fill empty notes; tags, items and characters are
// added.
func (a *Agent) ApplyEnrichments() int {
	n := 0
	for {
		select {
		case res := <-a.enrichCh:
			a.Apply(res)
			n++
		default:
			return n
		}
	}
}

// Apply applies one enrichment result.
func (a *Agent) Apply(res Enrichment) {
	room, ok := a.graph.Room(res.RoomID)
	if !ok {
		return
	}
	for _, t := range res.Tags {
		a.graph.Tag(res.RoomID, t)
	}
	if room.Notes == "" && res.Notes != "" {
		a.graph.SetNotes(res.RoomID, res.Notes)
	}
	for _, it := range res.Items {
		if it.LastSeen.IsZero() {
			it.LastSeen = time.Now()
		}
		a.graph.AddItem(res.RoomID, it)
	}
	for _, n := range res.NPCs {
		if n.LastSeen.IsZero() {
			n.LastSeen = time.Now()
		}
		a.graph.AddNPC(res.RoomID, n)
	}
	a.mutated()
}
