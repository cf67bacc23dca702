package main

import (
	"github.com/rs/zerolog/log"

	"github.com/zigator-go/zigator/internal/config"
	"github.com/zigator-go/zigator/internal/eventbus"
	"github.com/zigator-go/zigator/internal/storage"
	"github.com/zigator-go/zigator/pkg/keyring"
	"github.com/zigator-go/zigator/pkg/zigbee"
)

// buildKeyRing loads the three optional key tablets named in cfg.Keys into a
// fresh KeyRing, per the teacher's pattern of building collaborators once at
// startup and passing them down rather than reaching for globals.
func buildKeyRing(cfg *config.Config) (*keyring.KeyRing, error) {
	ring := keyring.New()
	if err := ring.LoadNetworkKeys(cfg.Keys.NetworkKeysFile, true, log.Logger); err != nil {
		return nil, err
	}
	if err := ring.LoadLinkKeys(cfg.Keys.LinkKeysFile, true, log.Logger); err != nil {
		return nil, err
	}
	if err := ring.LoadInstallCodes(cfg.Keys.InstallCodesFile, true, log.Logger); err != nil {
		return nil, err
	}
	return ring, nil
}

// openStore opens the packet store named by cfg.Database.
func openStore(cfg *config.Config) (storage.Store, error) {
	return storage.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
}

// newSecurityStage builds the decoder's security stage from ring per
// cfg.Security's policy flag and negotiated security level.
func newSecurityStage(cfg *config.Config, ring *keyring.KeyRing) *zigbee.SecurityStage {
	stage := zigbee.NewSecurityStage(ring, cfg.Security.AttemptNonNetworkKeyTypes)
	stage.NegotiatedLevel = cfg.Security.NegotiatedSecurityLevel
	return stage
}

// connectEventBus opens the optional NATS event bus per cfg.NATS. It never
// returns an error for a disabled bus (empty URL); a real connection
// failure is returned so the caller can decide whether to proceed without
// events or abort.
func connectEventBus(cfg *config.Config) (*eventbus.Bus, error) {
	return eventbus.Connect(cfg.NATS, log.Logger)
}
