// Command mudmapper plays a MUD over telnet+GMCP while mapping the world,
// and offers offline tools for the saved map.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/config"
	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/mapper"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	logLevel   string
	mapName    string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mudmapper",
	Short: "MUD client that maps the world as you play",
	Long: `mudmapper connects to a MUD server over telnet with GMCP, builds a map
of every room it sees and keeps it on disk.

Settings come from a YAML file (--config) overlaid by MUDMAP_* environment
variables.`,
	SilenceUsage:  true,
	Version:       Version,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level")
	rootCmd.PersistentFlags().StringVar(&mapName, "map", "", "Override map.name")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(dotCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(mapsCmd)
	rootCmd.AddCommand(backupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads and validates the config and builds the logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if mapName != "" {
		cfg.Map.Name = mapName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openMap opens the configured store and loads the map from it.
func openMap(cfg *config.Config) (mapper.Store, *worldmap.Graph, func() error, error) {
	store, closeStore, err := mapper.OpenStore(cfg.Map.Store, cfg.Map.Path, cfg.Map.BoltPath, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	g, err := store.Load(cfg.Map.Name, logger)
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return store, g, closeStore, nil
}
