package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
)

// InitKeyManager loads the master key and returns a KeyManager over db.
//
// The master key seals every private key at rest. It is read from
// cfg.MasterKeyPath, then from the HOA_MASTER_KEY environment variable. With
// neither set a random key is generated, and keys sealed under it cannot be
// opened after a restart until a rotation replaces the active key.
func InitKeyManager(cfg Config, db store.Store, rec service.Recorder, logger *slog.Logger) (*service.KeyManager, error) {
	sealer, err := cryptox.LoadSealer(cfg.MasterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	if sealer.Ephemeral() {
		logger.Warn("no master key configured; signing keys will not survive a restart")
	} else if cfg.MasterKeyPath != "" {
		logger.Info("master key path configured", "path", cfg.MasterKeyPath)
	}

	logger.Info("key manager configured",
		"algorithm", cfg.Algorithm,
		"token_family", cfg.TokenFamily,
		"rotate_after", cfg.KeyRotateAfter,
		"grace_period", cfg.KeyGracePeriod,
	)

	return &service.KeyManager{
		Store:       db,
		Sealer:      sealer,
		Algorithm:   cfg.Algorithm,
		RSABits:     cfg.RSABits,
		RotateAfter: cfg.KeyRotateAfter,
		VerifyGrace: cfg.KeyGracePeriod,
		Recorder:    rec,
	}, nil
}
