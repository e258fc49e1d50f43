package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ottoflow/otto/pkg/persistence"
	"github.com/ottoflow/otto/pkg/persistence/file"
	"github.com/ottoflow/otto/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence builds an execution repository from a database URL. A
// postgres:// URL selects PostgreSQL, everything else falls back to the
// file store rooted at the URL's path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.ExecutionRepository {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
