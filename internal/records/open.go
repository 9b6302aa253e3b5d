package records

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/gcp"
)

// Open builds the configured record store. The returned close func releases
// its connection.
func Open(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	switch cfg.Database.Backend {
	case "postgres", "sqlite":
		s, err := OpenGorm(ctx, cfg.Database.Backend, cfg.Database.DSN, cfg.Database.Debug)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "firestore":
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.Database.FirestoreDB)
		if err != nil {
			return nil, nil, err
		}
		return NewFirestoreStore(client, cfg.Database.Collection), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
}
