package directory

import (
	"context"

	"binas/internal/database"
)

// Postgres is a directory backed by the <prefix>_stations table. Station
// daemons Publish themselves on start and Unpublish on graceful stop.
type Postgres struct {
	queries *database.Queries
}

// NewPostgres creates a Postgres directory.
func NewPostgres(db database.DBTX, prefix string) *Postgres {
	return &Postgres{queries: database.NewQueries(db, prefix)}
}

// List returns matching records ordered by name.
func (p *Postgres) List(ctx context.Context, pattern string) ([]Record, error) {
	rows, err := p.queries.ListStations(ctx, pattern)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{Name: row.Name, Addr: row.Addr})
	}
	return records, nil
}

// Publish adds or replaces a record.
func (p *Postgres) Publish(ctx context.Context, r Record) error {
	return p.queries.SetStation(ctx, r.Name, r.Addr)
}

// Unpublish removes a record.
func (p *Postgres) Unpublish(ctx context.Context, name string) error {
	return p.queries.DeleteStation(ctx, name)
}
