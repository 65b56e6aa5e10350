package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/kosh/internal/domain"
)

// ErrNotFound indicates that the requested run was not found.
var ErrNotFound = errors.New("run not found")

// Record is a stored run result.
type Record struct {
	ID        string           `json:"id"`
	Result    domain.RunResult `json:"result"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Repository defines persistent storage for run results.
type Repository interface {
	Save(ctx context.Context, result domain.RunResult, data json.RawMessage) error
	Get(ctx context.Context, id string) (*Record, error)
	ListByAccount(ctx context.Context, network domain.Network, account string, limit int) ([]Record, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]Record, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL run repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Save(ctx context.Context, result domain.RunResult, data json.RawMessage) error {
	var errorKind *string
	if result.Error != nil {
		k := string(result.Error.Kind)
		errorKind = &k
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, flow, network, account, success, stage, error_kind, tx_hash, started_at, finished_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		result.ID, string(result.Flow), string(result.Network), result.Account, result.Success, string(result.Stage),
		errorKind, result.Hash, result.StartedAt, result.FinishedAt, data)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", result.ID, err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, data, created_at FROM pipeline_runs WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return rec, nil
}

func (r *PgRepository) ListByAccount(ctx context.Context, network domain.Network, account string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, data, created_at
		 FROM pipeline_runs
		 WHERE network = $1 AND account = $2
		 ORDER BY started_at DESC
		 LIMIT $3`, string(network), account, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return collectRecords(rows)
}

func (r *PgRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, data, created_at
		 FROM pipeline_runs
		 WHERE started_at >= $1
		 ORDER BY started_at ASC
		 LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs since %s: %w", since.Format(time.RFC3339), err)
	}
	return collectRecords(rows)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec  Record
		data []byte
	)
	if err := row.Scan(&rec.ID, &data, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Result); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return records, nil
}
