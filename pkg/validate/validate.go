// Package validate inspects a saved map document for problems that loading
// would silently repair, and can fix them in place.
package validate

import (
	"fmt"
	"sort"

	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// Category classifies the type of finding.
type Category int

const (
	CatIntegrityError Category = iota // broken references
	CatIntegrityWarn                  // references that loading would invent
	CatDirection                      // non-canonical direction names
	CatEdge                           // exits and edges out of step
	CatLifecycle                      // explored/visit bookkeeping
)

func (c Category) String() string {
	switch c {
	case CatIntegrityError:
		return "integrity-error"
	case CatIntegrityWarn:
		return "integrity-warning"
	case CatDirection:
		return "direction"
	case CatEdge:
		return "edge"
	case CatLifecycle:
		return "lifecycle"
	default:
		return "unknown"
	}
}

// Categories lists every category in report order.
var Categories = []Category{CatIntegrityError, CatIntegrityWarn, CatDirection, CatEdge, CatLifecycle}

// Severity indicates how serious a finding is.
type Severity int

const (
	SevError   Severity = iota // must be fixed for correct behavior
	SevWarning                 // should be reviewed
	SevInfo                    // informational only
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	case SevInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Finding is a single issue detected in the document.
type Finding struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	RoomID      string   `json:"room_id"`
	Direction   string   `json:"direction,omitempty"`
	Description string   `json:"description"`
	Fixable     bool     `json:"fixable"`
	Fixed       bool     `json:"fixed"`
	fixFunc     func()
}

// Checker is one validation pass.
type Checker interface {
	Name() string
	Check(doc *worldmap.Document) []Finding
}

// Validator runs every checker against a document.
type Validator struct {
	checkers []Checker
	doc      *worldmap.Document
	findings []Finding
}

// New creates a Validator with all built-in checkers registered. Fixes
// modify doc.
func New(doc *worldmap.Document) *Validator {
	return &Validator{
		doc: doc,
		checkers: []Checker{
			&IntegrityChecker{},
			&DirectionChecker{},
			&EdgeChecker{},
			&LifecycleChecker{},
		},
	}
}

// Run executes all checkers and returns findings sorted by room id.
// Finding ids are stable for an unchanged document.
func (v *Validator) Run() []Finding {
	v.findings = nil
	for _, c := range v.checkers {
		for i, f := range c.Check(v.doc) {
			f.ID = fmt.Sprintf("%s-%d", c.Name(), i)
			v.findings = append(v.findings, f)
		}
	}
	sort.SliceStable(v.findings, func(i, j int) bool {
		return v.findings[i].RoomID < v.findings[j].RoomID
	})
	return v.findings
}

// Findings returns the findings of the last Run.
func (v *Validator) Findings() []Finding {
	return v.findings
}

// ApplyFix applies a single fix by finding id.
func (v *Validator) ApplyFix(id string) error {
	for i := range v.findings {
		f := &v.findings[i]
		if f.ID != id {
			continue
		}
		if !f.Fixable {
			return fmt.Errorf("finding %s is not fixable", id)
		}
		if f.Fixed {
			return fmt.Errorf("finding %s is already fixed", id)
		}
		if f.fixFunc != nil {
			f.fixFunc()
			f.Fixed = true
		}
		return nil
	}
	return fmt.Errorf("finding %s not found", id)
}

// ApplyAll applies every fixable finding in cat and returns how many were
// applied.
func (v *Validator) ApplyAll(cat Category) int {
	count := 0
	for i := range v.findings {
		f := &v.findings[i]
		if f.Category == cat && f.Fixable && !f.Fixed && f.fixFunc != nil {
			f.fixFunc()
			f.Fixed = true
			count++
		}
	}
	return count
}

// Summary returns counts of findings per category.
func (v *Validator) Summary() map[Category]int {
	m := make(map[Category]int)
	for _, f := range v.findings {
		m[f.Category]++
	}
	return m
}

// roomIndex maps room ids to their first position in doc.Rooms.
func roomIndex(doc *worldmap.Document) map[string]int {
	idx := make(map[string]int, len(doc.Rooms))
	for i, r := range doc.Rooms {
		if _, dup := idx[r.ID]; !dup {
			idx[r.ID] = i
		}
	}
	return idx
}

// findRoom returns the first room with id, looked up at fix time.
func findRoom(doc *worldmap.Document, id string) *worldmap.Room {
	for i := range doc.Rooms {
		if doc.Rooms[i].ID == id {
			return &doc.Rooms[i]
		}
	}
	return nil
}

func sortedExits(exits map[worldmap.Direction]string) []worldmap.Direction {
	dirs := make([]worldmap.Direction, 0, len(exits))
	for d := range exits {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i] < dirs[j] })
	return dirs
}
