package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/coordinator/migrations"
)

var gooseOnce sync.Once

// Store wraps a pgx connection pool holding the durable scan progress:
// regions, their scanned cells, and scalar scan metadata (scan mode, step).
// GetScannedCells returns the cells recorded for a region; the harvester
// does not read them back, so a reclaimed region is rescanned from its
// first row.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL and returns a Store handle.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "coordinator.store.connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(apperrors.KindIO, "coordinator.store.ping", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RunMigrations applies the embedded goose migrations on the given DSN.
// Uses a plain database/sql handle since goose does not speak pgx's native
// pool interface.
func RunMigrations(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.migrate.open", err)
	}
	defer sqlDB.Close()

	var dialectErr error
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		dialectErr = goose.SetDialect("postgres")
	})
	if dialectErr != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.migrate.dialect", dialectErr)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.migrate.up", err)
	}
	return nil
}

// UpsertRegion registers a region (idempotent — existing rows keep their
// status/progress) and returns whether a new row was inserted.
func (s *Store) UpsertRegion(ctx context.Context, key string, regionX, regionY, totalCells int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO regions (key, region_x, region_y, total_cells)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING
	`, key, regionX, regionY, totalCells)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindIO, "coordinator.store.upsert_region", err).WithContext("region", key)
	}
	return tag.RowsAffected() > 0, nil
}

// RegionRow mirrors one row of the regions table.
type RegionRow struct {
	Key            string
	RegionX        int
	RegionY        int
	Status         string
	TotalCells     int
	ScannedCells   int
	AssignedWorker string
	Error          string
}

// LoadRegions returns every tracked region, for warm-starting the in-memory
// registry after a restart.
func (s *Store) LoadRegions(ctx context.Context) ([]RegionRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, region_x, region_y, status, total_cells, scanned_cells, assigned_worker, error
		FROM regions ORDER BY key
	`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "coordinator.store.load_regions", err)
	}
	defer rows.Close()

	var out []RegionRow
	for rows.Next() {
		var r RegionRow
		if err := rows.Scan(&r.Key, &r.RegionX, &r.RegionY, &r.Status, &r.TotalCells, &r.ScannedCells, &r.AssignedWorker, &r.Error); err != nil {
			return nil, apperrors.Wrap(apperrors.KindIO, "coordinator.store.scan_region", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveRegionStatus persists a status transition plus the worker name and
// optional error/timestamp fields associated with it.
func (s *Store) SaveRegionStatus(ctx context.Context, key, status, worker, errMsg string, started, completed bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE regions SET
			status = $2,
			assigned_worker = $3,
			error = $4,
			started_at = CASE WHEN $5 THEN now() ELSE started_at END,
			completed_at = CASE WHEN $6 THEN now() ELSE completed_at END
		WHERE key = $1
	`, key, status, worker, errMsg, started, completed)
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.store.save_status", err).WithContext("region", key)
	}
	return nil
}

// SaveScannedCount persists the cumulative scanned_cells counter.
func (s *Store) SaveScannedCount(ctx context.Context, key string, scanned int) error {
	_, err := s.pool.Exec(ctx, `UPDATE regions SET scanned_cells = $2 WHERE key = $1`, key, scanned)
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.store.save_scanned_count", err).WithContext("region", key)
	}
	return nil
}

// Cell is one scanned geodata cell row.
type Cell struct {
	X, Y   int
	Height int
	NSWE   int
}

// RecordCellsBatch upserts a batch of scanned cells inside one transaction,
// the Go analogue of conn.executemany against scan_cells.
func (s *Store) RecordCellsBatch(ctx context.Context, regionKey string, cells []Cell) error {
	if len(cells) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.store.batch.begin", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range cells {
		batch.Queue(`
			INSERT INTO scan_cells (region_key, cell_x, cell_y, height, nswe)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (region_key, cell_x, cell_y) DO UPDATE SET height = EXCLUDED.height, nswe = EXCLUDED.nswe
		`, regionKey, c.X, c.Y, c.Height, c.NSWE)
	}
	br := tx.SendBatch(ctx, batch)
	for range cells {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return apperrors.Wrap(apperrors.KindIO, "coordinator.store.batch.exec", err).WithContext("region", regionKey)
		}
	}
	if err := br.Close(); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.store.batch.close", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.store.batch.commit", err)
	}
	return nil
}

// GetScannedCells loads every previously-recorded cell for a region, keyed
// by (cellX, cellY), so a resumed worker can skip cells it already has.
func (s *Store) GetScannedCells(ctx context.Context, regionKey string) (map[[2]int]Cell, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cell_x, cell_y, height, nswe FROM scan_cells WHERE region_key = $1
	`, regionKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindIO, "coordinator.store.get_cells", err).WithContext("region", regionKey)
	}
	defer rows.Close()

	out := make(map[[2]int]Cell)
	for rows.Next() {
		var c Cell
		if err := rows.Scan(&c.X, &c.Y, &c.Height, &c.NSWE); err != nil {
			return nil, apperrors.Wrap(apperrors.KindIO, "coordinator.store.scan_cell", err)
		}
		out[[2]int{c.X, c.Y}] = c
	}
	return out, rows.Err()
}

// SetMeta persists a scalar key/value pair (scan_mode, step, ...).
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.store.set_meta", err).WithContext("key", key)
	}
	return nil
}

// GetMeta reads back a scalar value, returning ("", nil) if absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM scan_meta WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindIO, "coordinator.store.get_meta", err).WithContext("key", key)
	}
	return value, nil
}

// TruncateAll wipes every table back to empty, for the dashboard's
// "start over against this server" reset operation. scan_cells cascades
// from regions, so truncating both explicitly keeps the intent obvious.
func (s *Store) TruncateAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE TABLE scan_cells, regions, scan_meta`)
	if err != nil {
		return apperrors.Wrap(apperrors.KindIO, "coordinator.store.truncate_all", err)
	}
	return nil
}
