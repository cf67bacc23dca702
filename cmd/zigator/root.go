package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zigator-go/zigator/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "zigator",
	Short: "Forensic analyzer for captured IEEE 802.15.4/Zigbee radio traffic",
	Long: `zigator decodes pcap/pcapng captures of IEEE 802.15.4/Zigbee traffic into a
queryable packet store, recovers network key material sniffed off the air,
and derives the address, device, network, and pair-flow tables a forensic
analyst needs.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config and sets the global
// zerolog level/format from it, the same two steps every subcommand needs
// before touching the store, key ring, or event bus.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return cfg, nil
}
