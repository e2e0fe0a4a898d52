package cmd

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wundergraph/graphql-stitch/pkg/config"
)

const defaultConfigFile = ".stitch.yaml"

var (
	cfgFile string
	v       = config.NewViper()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stitch",
	Short: "stitch composes GraphQL sub-graphs into one gateway",
	Long: `stitch imports the schemas of independent GraphQL backends, namespaces them,
grafts extension fields across them and serves the merged graph.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+defaultConfigFile+")")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "", "log level, one of debug, info, warn, error")
	rootCmd.PersistentFlags().String(config.KeyFixtures, "", "fixture file of the local graph")
	_ = v.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup(config.KeyLogLevel))
	_ = v.BindPFlag(config.KeyFixtures, rootCmd.PersistentFlags().Lookup(config.KeyFixtures))
}

// loadConfig reads the config file, falls back to defaults when the default
// config file does not exist and applies flags and environment overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	explicit := path != ""
	if !explicit {
		home, err := homedir.Dir()
		if err != nil {
			return nil, errors.Wrap(err, "find home directory")
		}
		path = filepath.Join(home, defaultConfigFile)
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil || explicit {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	cfg.Overlay(v)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}
