package validate

import (
	"fmt"

	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// IntegrityChecker looks for references to rooms that do not exist.
type IntegrityChecker struct{}

func (c *IntegrityChecker) Name() string { return "integrity" }

func (c *IntegrityChecker) Check(doc *worldmap.Document) []Finding {
	var findings []Finding
	idx := roomIndex(doc)

	seen := make(map[string]bool)
	for _, r := range doc.Rooms {
		id := r.ID
		if id == "" {
			findings = append(findings, Finding{
				Category:    CatIntegrityError,
				Severity:    SevError,
				Description: fmt.Sprintf("room %q has no id", r.Name),
				Fixable:     true,
				fixFunc:     func() { dropRooms(doc, func(r worldmap.Room) bool { return r.ID == "" }) },
			})
			continue
		}
		if seen[id] {
			findings = append(findings, Finding{
				Category:    CatIntegrityError,
				Severity:    SevError,
				RoomID:      id,
				Description: fmt.Sprintf("room %s is listed more than once", id),
				Fixable:     true,
				fixFunc:     func() { dedupeRoom(doc, id) },
			})
			continue
		}
		seen[id] = true
	}

	// Exit targets that loading would turn into placeholders.
	missing := make(map[string]bool)
	for _, r := range doc.Rooms {
		for _, d := range sortedExits(r.Exits) {
			to := r.Exits[d]
			if _, ok := idx[to]; ok || missing[to] {
				continue
			}
			missing[to] = true
			findings = append(findings, Finding{
				Category:    CatIntegrityWarn,
				Severity:    SevWarning,
				RoomID:      r.ID,
				Direction:   string(d),
				Description: fmt.Sprintf("room %s exit %s leads to unknown room %s", r.ID, d, to),
				Fixable:     true,
				fixFunc:     func() { addPlaceholder(doc, to) },
			})
		}
	}

	for _, e := range doc.Edges {
		_, fromOK := idx[e.From]
		_, toOK := idx[e.To]
		if fromOK && toOK {
			continue
		}
		e := e
		findings = append(findings, Finding{
			Category:    CatIntegrityError,
			Severity:    SevError,
			RoomID:      e.From,
			Direction:   string(e.Direction),
			Description: fmt.Sprintf("edge %s -%s-> %s references an unknown room", e.From, e.Direction, e.To),
			Fixable:     true,
			fixFunc:     func() { dropEdge(doc, e) },
		})
	}

	if cur := doc.CurrentRoomID; cur != "" {
		if _, ok := idx[cur]; !ok {
			findings = append(findings, Finding{
				Category:    CatIntegrityError,
				Severity:    SevError,
				RoomID:      cur,
				Description: fmt.Sprintf("current room %s does not exist", cur),
				Fixable:     true,
				fixFunc:     func() { doc.CurrentRoomID = "" },
			})
		}
	}
	return findings
}

func dropRooms(doc *worldmap.Document, drop func(worldmap.Room) bool) {
	kept := doc.Rooms[:0]
	for _, r := range doc.Rooms {
		if !drop(r) {
			kept = append(kept, r)
		}
	}
	doc.Rooms = kept
}

// dedupeRoom keeps the first entry for id and drops the rest.
func dedupeRoom(doc *worldmap.Document, id string) {
	first := true
	dropRooms(doc, func(r worldmap.Room) bool {
		if r.ID != id {
			return false
		}
		if first {
			first = false
			return false
		}
		return true
	})
}

func addPlaceholder(doc *worldmap.Document, id string) {
	if findRoom(doc, id) != nil {
		return
	}
	doc.Rooms = append(doc.Rooms, worldmap.Room{
		ID:    id,
		Name:  worldmap.PlaceholderName(id),
		Tags:  []string{},
		Exits: map[worldmap.Direction]string{},
	})
}

func dropEdge(doc *worldmap.Document, e worldmap.Edge) {
	kept := doc.Edges[:0]
	for _, x := range doc.Edges {
		if x.From == e.From && x.To == e.To && x.Direction == e.Direction {
			continue
		}
		kept = append(kept, x)
	}
	doc.Edges = kept
}
