package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zigator-go/zigator/internal/inference"
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Re-run the inference phases over the already-persisted packets table",
	Long: `finalize re-runs the four inference phases (sniffed keys, EPID
discovery, address/device discovery, pair-flow discovery) against whatever
is already in the store, without parsing any new capture files. Records
still marked undecryptable are re-decoded only when phase 1 adds at least
one newly sniffed key; that pass also tries the keys loaded from the
tablets on disk, but keys added to the tablets by hand do not by
themselves trigger it.`,
	Args: cobra.NoArgs,
	RunE: runFinalize,
}

func init() {
	rootCmd.AddCommand(finalizeCmd)
}

func runFinalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ring, err := buildKeyRing(cfg)
	if err != nil {
		return fmt.Errorf("load key material: %w", err)
	}
	sec := newSecurityStage(cfg, ring)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	bus, err := connectEventBus(cfg)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer bus.Close()

	run, err := inference.FinalizeCorpus(cmd.Context(), store, ring, sec, nil, uuid.NewString(), bus, log.Logger)
	if err != nil {
		return fmt.Errorf("finalize corpus: %w", err)
	}

	log.Info().Str("run_id", run.ID).Int("packet_count", run.PacketCount).Msg("finalize complete")
	return nil
}
