package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"log/slog"

	"realtime-scene/internal/app"
)

// ErrNotFound reports a project name with no saved scene.
var ErrNotFound = errors.New("project not found")

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres builds the pool wrapper. The pool connects lazily, so a
// backend that is down at startup surfaces as per-request failures
// rather than a crash; the live sync path never depends on it.
func NewPostgres(ctx context.Context, cfg app.Config, log *slog.Logger) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = int32(cfg.PGMaxConn)
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// SaveProject upserts the scene blob under name. The blob is opaque to
// the server; it round-trips whatever the client serialized.
func (p *Postgres) SaveProject(ctx context.Context, name string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO projects (name, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, name, data)
	if err != nil {
		return err
	}
	p.log.Info("project.saved", "name", name, "bytes", len(data))
	return nil
}

// LoadProject fetches the saved project for name.
func (p *Postgres) LoadProject(ctx context.Context, name string) (Project, error) {
	pr := Project{Name: name}
	err := p.pool.QueryRow(ctx, `
		SELECT data, updated_at FROM projects WHERE name = $1
	`, name).Scan(&pr.Data, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	return pr, nil
}

// ListProjects returns all saved project names, most recent first.
func (p *Postgres) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT name FROM projects ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
