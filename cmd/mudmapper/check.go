package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystal-mush/mudmapper/pkg/validate"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

var (
	checkFix  bool
	checkJSON bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the saved map and optionally repair it",
	Long: `Reports broken room references, alias exit names, exits without a
matching edge and visit bookkeeping errors in the saved map.

With --fix every fixable finding is applied and the map is saved again.

Example:
  mudmapper check
  mudmapper check --fix --json`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkFix, "fix", false, "Apply all fixable findings and save the map")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the report as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, g, closeStore, err := openMap(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// The JSON file is checked as written; loading has already repaired g.
	doc := g.Document()
	if cfg.Map.Store == "json" {
		data, err := os.ReadFile(cfg.Map.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return err
		default:
			doc = worldmap.Document{}
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("decode %s: %w", cfg.Map.Path, err)
			}
		}
	}

	v := validate.New(&doc)
	v.Run()
	fixed := 0
	if checkFix {
		for _, cat := range validate.Categories {
			fixed += v.ApplyAll(cat)
		}
		if fixed > 0 {
			if err := store.SaveGraph(worldmap.FromDocument(doc, logger)); err != nil {
				return err
			}
		}
	}

	report := validate.GenerateReport(v)
	if checkJSON {
		return report.WriteJSON(cmd.OutOrStdout())
	}
	if err := report.WriteText(cmd.OutOrStdout()); err != nil {
		return err
	}
	if checkFix {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d fixes\n", fixed)
	}
	return nil
}
