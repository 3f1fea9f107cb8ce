package worldmap

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ExportDOT writes the graph in Graphviz DOT format. Rooms are grouped in
// one cluster per area; a bidirectional pair of edges is drawn once.
func (g *Graph) ExportDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", dotQuote(g.name))
	fmt.Fprintln(bw, "  node [shape=box, style=rounded];")

	byArea := make(map[string][]string)
	for _, id := range g.sortedIDs() {
		byArea[g.rooms[id].Area] = append(byArea[g.rooms[id].Area], id)
	}
	areas := make([]string, 0, len(byArea))
	for a := range byArea {
		areas = append(areas, a)
	}
	sort.Strings(areas)

	for i, area := range areas {
		indent := "  "
		if area != "" {
			fmt.Fprintf(bw, "  subgraph cluster_%d {\n", i)
			fmt.Fprintf(bw, "    label=%s;\n", dotQuote(area))
			indent = "    "
		}
		for _, id := range byArea[area] {
			r := g.rooms[id]
			attrs := []string{"label=" + dotQuote(r.Name)}
			if !r.Explored {
				attrs = append(attrs, "style=dashed")
			}
			if id == g.current {
				attrs = append(attrs, "penwidth=2")
			}
			fmt.Fprintf(bw, "%s%s [%s];\n", indent, dotQuote(id), strings.Join(attrs, ", "))
		}
		if area != "" {
			fmt.Fprintln(bw, "  }")
		}
	}

	drawn := make(map[edgeKey]bool)
	for _, e := range g.edges {
		key := edgeKey{e.From, e.Direction, e.To}
		if drawn[key] {
			continue
		}
		drawn[key] = true
		label := string(e.Direction)
		extra := ""
		if e.Bidirectional {
			if rev, ok := e.Direction.Reverse(); ok {
				drawn[edgeKey{e.To, rev, e.From}] = true
				label += "/" + string(rev)
				extra = ", dir=both"
			}
		}
		fmt.Fprintf(bw, "  %s -> %s [label=%s%s];\n", dotQuote(e.From), dotQuote(e.To), dotQuote(label), extra)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
