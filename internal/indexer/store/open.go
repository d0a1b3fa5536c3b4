package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/postgres"
)

// pgStore closes the pool it opened along with the store.
type pgStore struct {
	*SQL
	client *postgres.Client
}

func (s *pgStore) Close() error {
	return s.client.Close()
}

// Open builds the backend selected by cfg.Kind. pg is only consulted for
// the postgres kind.
func Open(ctx context.Context, cfg config.StorageConfig, pg config.PostgresConfig) (Store, error) {
	switch cfg.Kind {
	case config.StorageMemory, "":
		return NewMemory(), nil
	case config.StorageLocal:
		return NewLocal(cfg.Path)
	case config.StoragePebble:
		return NewPebble(cfg.Path)
	case config.StorageSQLite:
		return OpenSQLite(ctx, cfg.Path, cfg.Table)
	case config.StoragePostgres:
		client, err := postgres.New(ctx, pg)
		if err != nil {
			return nil, err
		}
		s, err := NewSQL(ctx, client.DB, Postgres, cfg.Table)
		if err != nil {
			client.Close()
			return nil, err
		}
		return &pgStore{SQL: s, client: client}, nil
	case config.StorageS3:
		client, err := NewS3Client(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey)
		if err != nil {
			return nil, err
		}
		return NewS3(client, cfg.Bucket, cfg.Prefix), nil
	case config.StorageMinio:
		return NewMinio(ctx, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.UseSSL, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}
