package worldmap

import (
	"strings"
	"time"
)

// Item is something seen lying in a room.
type Item struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Quantity    int       `json:"quantity"`
	LastSeen    time.Time `json:"last_seen"`
}

// NPC is a character seen in a room.
type NPC struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Level       string    `json:"level,omitempty"`
	Hostile     bool      `json:"hostile"`
	LastSeen    time.Time `json:"last_seen"`
}

// addItem replaces an item with the same name, ignoring case, or appends it.
func (r *Room) addItem(it Item) bool {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return false
	}
	if it.Quantity < 1 {
		it.Quantity = 1
	}
	for i := range r.Items {
		if strings.EqualFold(r.Items[i].Name, it.Name) {
			if r.Items[i] == it {
				return false
			}
			r.Items[i] = it
			return true
		}
	}
	r.Items = append(r.Items, it)
	return true
}

func (r *Room) addNPC(n NPC) bool {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return false
	}
	for i := range r.NPCs {
		if strings.EqualFold(r.NPCs[i].Name, n.Name) {
			if r.NPCs[i] == n {
				return false
			}
			r.NPCs[i] = n
			return true
		}
	}
	r.NPCs = append(r.NPCs, n)
	return true
}

// AddItem records an item in room id. An item with the same name is
// replaced.
func (g *Graph) AddItem(id string, it Item) bool {
	r, ok := g.rooms[id]
	if !ok || !r.addItem(it) {
		return false
	}
	g.version++
	return true
}

// AddNPC records a character in room id. A character with the same name
// is replaced.
func (g *Graph) AddNPC(id string, n NPC) bool {
	r, ok := g.rooms[id]
	if !ok || !r.addNPC(n) {
		return false
	}
	g.version++
	return true
}
