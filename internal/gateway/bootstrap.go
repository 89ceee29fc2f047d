package gateway

import (
	"context"
	"fmt"

	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/core/domain"
	"go.uber.org/zap"
)

// BootstrapProviders loads the registry and seeds providers declared in
// configuration that are not stored yet. Stored providers win, so edits made
// through the admin API survive restarts.
func BootstrapProviders(ctx context.Context, registry *Registry, seeds []domain.ProviderConfig, log *zap.Logger) (int, error) {
	if err := registry.Reload(ctx); err != nil {
		return 0, err
	}

	seeded := 0
	for _, seed := range seeds {
		if seed.ID == "" {
			seed.ID = seed.ProviderKey
		}
		if _, err := registry.Get(seed.ID); err == nil {
			continue
		}

		if _, err := registry.Save(ctx, seed); err != nil {
			log.Warn(fmt.Sprintf("%s %s %s",
				cli.WarningSign(),
				cli.Bold(seed.ID),
				cli.Style("Skipping provider seed", cli.Yellow),
			), zap.Error(err))
			continue
		}
		seeded++
	}

	enabled := len(registry.Snapshot().Enabled())
	if enabled == 0 {
		log.Warn("No enabled providers registered. Routing will fail until one is added.")
	} else {
		log.Info(fmt.Sprintf("%s Providers ready", cli.CheckMark()),
			zap.Int("enabled", enabled),
			zap.Int("seeded", seeded),
		)
	}

	return seeded, nil
}
