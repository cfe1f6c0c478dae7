package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"disposal-bot/api/internal/normalize"
)

var ErrNotFound = sql.ErrNoRows

//go:embed schema.sql
var schemaSQL string

// Migrate creates the cache and session tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}

type PredictionRepo struct{ DB *sql.DB }

func NewPredictionRepo(db *sql.DB) *PredictionRepo { return &PredictionRepo{DB: db} }

type PredictionRow struct {
	ID         int64
	CreatedAt  time.Time
	InputHash  string
	Engine     string
	Model      string
	Channel    normalize.Channel
	Raw        *normalize.Object
	Saved      bool
	DisposalID string
}

// FindRow returns the newest cached prediction for (input_hash, engine, model).
// With maxAge > 0 older rows count as missing.
func (r *PredictionRepo) FindRow(ctx context.Context, inputHash, engine, model string, maxAge time.Duration) (*PredictionRow, error) {
	const q = `
select id, created_at, input_hash, engine, model, channel, result_json,
       saved, coalesce(disposal_id,'') as disposal_id
from predictions_cache
where input_hash = $1 and engine = $2 and model = $3
order by created_at desc
limit 1`
	var (
		row PredictionRow
		ch  string
		js  []byte
	)
	err := r.DB.QueryRowContext(ctx, q, inputHash, engine, model).Scan(
		&row.ID, &row.CreatedAt, &row.InputHash, &row.Engine, &row.Model, &ch, &js,
		&row.Saved, &row.DisposalID,
	)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(row.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	raw, err := normalize.ParseObject(js)
	if err != nil {
		// broken JSON counts as a miss
		return nil, ErrNotFound
	}
	row.Channel = normalize.Channel(ch)
	row.Raw = raw
	return &row, nil
}

// Find implements predict.Cache.
func (r *PredictionRepo) Find(ctx context.Context, inputHash, engine, model string, maxAge time.Duration) (*normalize.Object, error) {
	row, err := r.FindRow(ctx, inputHash, engine, model, maxAge)
	if err != nil {
		return nil, err
	}
	return row.Raw, nil
}

// Save implements predict.Cache. An existing row for the key is overwritten and
// its saved flag reset, since the stored prediction changed.
func (r *PredictionRepo) Save(ctx context.Context, inputHash, engine, model string, ch normalize.Channel, raw *normalize.Object) error {
	if raw == nil {
		return errors.New("store: nil prediction")
	}
	js, err := raw.MarshalJSON()
	if err != nil {
		return err
	}
	const q = `
insert into predictions_cache (input_hash, engine, model, channel, result_json)
values ($1,$2,$3,$4,$5)
on conflict (input_hash, engine, model) do update
set channel = excluded.channel,
    result_json = excluded.result_json,
    saved = false,
    disposal_id = null,
    created_at = now()`
	_, err = r.DB.ExecContext(ctx, q, inputHash, engine, model, string(ch), js)
	return err
}

// MarkSaved records that the cached prediction was persisted as a disposal.
func (r *PredictionRepo) MarkSaved(ctx context.Context, inputHash, engine, model, disposalID string) error {
	const q = `update predictions_cache set saved=true, disposal_id=$4 where input_hash=$1 and engine=$2 and model=$3`
	res, err := r.DB.ExecContext(ctx, q, inputHash, engine, model, disposalID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeOlderThan deletes cache rows older than the given age.
func (r *PredictionRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from predictions_cache where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
