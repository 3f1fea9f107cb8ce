package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystal-mush/mudmapper/pkg/mapper"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

var (
	mapsDelete string
	findArea   string
	findName   string
	findTag    string
)

var mapsCmd = &cobra.Command{
	Use:   "maps",
	Short: "List the maps in the bolt store",
	Long: `Lists every map kept in the bolt database with its save count.

Example:
  mudmapper maps
  mudmapper maps --delete oldworld`,
	Args: cobra.NoArgs,
	RunE: runMaps,
}

var backupCmd = &cobra.Command{
	Use:   "backup <path>",
	Short: "Copy the map store to a file while it may be in use",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackup,
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "List rooms by area, name or tag",
	Long: `Lists the rooms matching every given filter. --name matches part of the
room name; --area and --tag match whole words, ignoring case.

Example:
  mudmapper find --area Midgaard --name temple`,
	Args: cobra.NoArgs,
	RunE: runFind,
}

func init() {
	mapsCmd.Flags().StringVar(&mapsDelete, "delete", "", "Remove the named map")
	findCmd.Flags().StringVar(&findArea, "area", "", "Area name")
	findCmd.Flags().StringVar(&findName, "name", "", "Part of the room name")
	findCmd.Flags().StringVar(&findTag, "tag", "", "Room tag")
}

func runMaps(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, closeStore, err := mapper.OpenStore(cfg.Map.Store, cfg.Map.Path, cfg.Map.BoltPath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	bolt, ok := store.(mapper.BoltMap)
	if !ok {
		return errors.New("maps needs the bolt map store")
	}
	out := cmd.OutOrStdout()
	if mapsDelete != "" {
		if err := bolt.Store.DeleteMap(mapsDelete); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", mapsDelete)
		return nil
	}
	names, err := bolt.Store.Maps()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(out, "%-20s %d saves\n", name, bolt.Store.SaveCount(name))
	}
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, closeStore, err := mapper.OpenStore(cfg.Map.Store, cfg.Map.Path, cfg.Map.BoltPath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	switch s := store.(type) {
	case mapper.BoltMap:
		err = s.Store.Backup(args[0])
	case mapper.JSONFile:
		var data []byte
		data, err = os.ReadFile(s.Path)
		if err == nil {
			err = worldmap.WriteFileAtomic(args[0], data)
		}
	default:
		err = fmt.Errorf("cannot back up a %T", store)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", args[0])
	return nil
}

func runFind(cmd *cobra.Command, args []string) error {
	if findArea == "" && findName == "" && findTag == "" {
		return errors.New("find needs --area, --name or --tag")
	}
	cfg, err := setup()
	if err != nil {
		return err
	}
	_, g, closeStore, err := openMap(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var sets [][]worldmap.Room
	if findArea != "" {
		sets = append(sets, g.FindRoomsByArea(findArea))
	}
	if findName != "" {
		sets = append(sets, g.FindRoomsByName(findName))
	}
	if findTag != "" {
		sets = append(sets, g.FindRoomsByTag(findTag))
	}
	matches := sets[0]
	for _, set := range sets[1:] {
		matches = intersect(matches, set)
	}

	out := cmd.OutOrStdout()
	for _, r := range matches {
		fmt.Fprintf(out, "%-10s %s [%s]\n", r.ID, r.Name, r.Area)
	}
	fmt.Fprintf(out, "%d rooms\n", len(matches))
	return nil
}

func intersect(a, b []worldmap.Room) []worldmap.Room {
	keep := make(map[string]bool, len(b))
	for _, r := range b {
		keep[r.ID] = true
	}
	var out []worldmap.Room
	for _, r := range a {
		if keep[r.ID] {
			out = append(out, r)
		}
	}
	return out
}
