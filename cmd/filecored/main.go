package main

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"filecore/pkg/analyze"
	"filecore/pkg/config"
	"filecore/pkg/log"
	"filecore/pkg/server"
	"filecore/pkg/store/disk"
)

//go:embed VERSION
var Version string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "filecored",
	Short:         "Serve a directory tree over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			log.Error().Err(err).Msg("Failed to load configuration")
			return err
		}

		if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return err
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			log.SetDebugMode()
		}

		st, err := disk.New(cfg)
		if err != nil {
			log.Error().Err(err).Str("root", cfg.Storage.Root).Msg("Failed to open storage root")
			return err
		}

		srv := server.New(cfg, strings.TrimSpace(Version), st, analyze.New(cfg.Analyze))
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("Server failed")
			return err
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(strings.TrimSpace(Version))
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringP("config", "c", "", "Path to a preferences file (json, yaml or toml)")
	flags.String("listen", "", "Address to listen on")
	flags.String("root", "", "Storage root directory")
	flags.String("format", "", "Archive format for directory downloads (zip, tar.gz, tar.zst)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")
	flags.Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
}
