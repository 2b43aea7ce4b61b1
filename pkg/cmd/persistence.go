// Package cmd provides shared constructors for the command-line entry points.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/persistence/file"
	"github.com/approvio/approvio/pkg/persistence/postgresql"
)

// NewPersistence selects a persistence backend from the database URL scheme:
// postgres:// connects to PostgreSQL, anything else is a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}
