package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/mojinote/internal/config"
	"github.com/foxseedlab/mojinote/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

// database owns the pool so the injector closes it on shutdown.
type database struct {
	pool *pgxpool.Pool
}

func (d *database) Shutdown() {
	slog.Info("closing database pool")
	d.pool.Close()
}

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*database, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		p, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := RunMigration(ctx, p); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
		return &database{pool: p}, nil
	})
	do.Provide(injector, func(i do.Injector) (repository.Repository, error) {
		db, err := do.Invoke[*database](i)
		if err != nil {
			return nil, err
		}
		return NewPostgresRepository(db.pool), nil
	})
}
