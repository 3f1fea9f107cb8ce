package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystal-mush/mudmapper/pkg/mapper"
	"github.com/crystal-mush/mudmapper/pkg/mapwatch"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

var (
	routeFrom       string
	statsUnexplored bool
	dotOutput       string
)

var routeCmd = &cobra.Command{
	Use:   "route <target>",
	Short: "Print the shortest route to a room",
	Long: `Prints the movement commands from the current room (or --from) to a
target given as a room id, a tag or a room name.

Example:
  mudmapper route bank
  mudmapper route --from 1024 "Town Square"`,
	Args: cobra.ExactArgs(1),
	RunE: runRoute,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print map statistics as JSON",
	RunE:  runStats,
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Recompute room coordinates and save the map",
	RunE:  runLayout,
}

var dotCmd = &cobra.Command{
	Use:   "dot",
	Short: "Export the map in Graphviz DOT format",
	RunE:  runDot,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print statistics every time the JSON map file changes",
	RunE:  runWatch,
}

func init() {
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "Start room id (default: the saved current room)")
	statsCmd.Flags().BoolVar(&statsUnexplored, "unexplored", false, "Also list exits leading to unexplored rooms")
	dotCmd.Flags().StringVarP(&dotOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	_, g, closeStore, err := openMap(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if routeFrom != "" && !g.SetCurrentRoom(routeFrom) {
		return fmt.Errorf("unknown room %q", routeFrom)
	}
	agent := mapper.New(g, mapper.Options{Logger: logger})
	defer agent.Close()

	r, err := agent.GetRouteTo(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch r.Path.Status {
	case worldmap.PathAlreadyThere:
		fmt.Fprintf(out, "already in %s (%s)\n", r.Target.Name, r.Target.ID)
	case worldmap.PathNotFound:
		return fmt.Errorf("no route to %s (%s)", r.Target.Name, r.Target.ID)
	default:
		fmt.Fprintln(out, r.Commands)
		for _, step := range r.Path.Steps {
			name := step.To
			if room, ok := g.Room(step.To); ok {
				name = room.Name
			}
			fmt.Fprintf(out, "  %-10s %s (%s)\n", step.Direction, name, step.To)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	_, g, closeStore, err := openMap(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	report := map[string]any{"map": g.Name(), "stats": g.Stats()}
	if statsUnexplored {
		report["unexplored"] = g.UnexploredExits()
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runLayout(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, g, closeStore, err := openMap(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	g.AutoLayout()
	if err := store.SaveGraph(g); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "laid out %d rooms\n", g.Len())
	return nil
}

func runDot(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	_, g, closeStore, err := openMap(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if dotOutput == "" {
		return g.ExportDOT(cmd.OutOrStdout())
	}
	var b strings.Builder
	if err := g.ExportDOT(&b); err != nil {
		return err
	}
	return worldmap.WriteFileAtomic(dotOutput, []byte(b.String()))
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.Map.Store != "json" {
		return errors.New("watch needs the json map store")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchMap(ctx, cmd, cfg.Map.Path)
}

func watchMap(ctx context.Context, cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	return mapwatch.Watch(ctx, path, mapwatch.Options{Initial: true, Logger: logger}, func(g *worldmap.Graph, err error) {
		if err != nil {
			fmt.Fprintf(out, "reload failed: %v\n", err)
			return
		}
		st := g.Stats()
		fmt.Fprintf(out, "%s: %d rooms (%d explored, %d placeholders), %d edges, current %q\n",
			g.Name(), st.Rooms, st.Explored, st.Placeholders, st.Edges, g.CurrentRoom())
	})
}
