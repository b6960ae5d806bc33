package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/db"
	"github.com/rpattn/obsquery/internal/domain"
)

const recordColumns = "id, description, model, result_ids, truncated, access_count, created_at, updated_at"

// queryRecordRepository implements QueryRecordRepository interface
type queryRecordRepository struct {
	db  db.DB
	now func() time.Time
}

// NewQueryRecordRepository creates a new query record repository
func NewQueryRecordRepository(database db.DB) QueryRecordRepository {
	return &queryRecordRepository{db: database, now: time.Now}
}

func (r *queryRecordRepository) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(r.db.Dialect().Placeholder())
}

// TouchByDescription looks up a record by its description and counts the
// access in the same statement.
func (r *queryRecordRepository) TouchByDescription(ctx context.Context, description string) (domain.QueryRecord, error) {
	return r.touch(ctx, squirrel.Eq{"description": description})
}

// TouchByID looks up a record by id and counts the access.
func (r *queryRecordRepository) TouchByID(ctx context.Context, id int64) (domain.QueryRecord, error) {
	return r.touch(ctx, squirrel.Eq{"id": id})
}

func (r *queryRecordRepository) touch(ctx context.Context, where squirrel.Eq) (domain.QueryRecord, error) {
	sql, args, err := r.builder().
		Update("query_records").
		Set("access_count", squirrel.Expr("access_count + 1")).
		Set("updated_at", r.now().Unix()).
		Where(where).
		Suffix("RETURNING " + recordColumns).
		ToSql()
	if err != nil {
		return domain.QueryRecord{}, fmt.Errorf("failed to build query record touch: %w", err)
	}
	rec, err := scanRecord(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, db.ErrNoRows) {
		return domain.QueryRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.QueryRecord{}, fmt.Errorf("failed to touch query record: %w", err)
	}
	return rec, nil
}

// Create inserts a new record, leaving an existing one untouched.
func (r *queryRecordRepository) Create(ctx context.Context, record domain.QueryRecord) (domain.QueryRecord, bool, error) {
	ids := record.ResultIDs
	if ids == nil {
		ids = []int64{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return domain.QueryRecord{}, false, fmt.Errorf("failed to marshal result ids: %w", err)
	}
	now := r.now().Unix()

	sql, args, err := r.builder().
		Insert("query_records").
		Columns("description", "model", "result_ids", "truncated", "access_count", "created_at", "updated_at").
		Values(record.Description, string(record.Model), string(payload), record.Truncated, 0, now, now).
		Suffix("ON CONFLICT (description) DO NOTHING RETURNING " + recordColumns).
		ToSql()
	if err != nil {
		return domain.QueryRecord{}, false, fmt.Errorf("failed to build query record insert: %w", err)
	}
	rec, err := scanRecord(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, db.ErrNoRows) {
		return domain.QueryRecord{}, false, nil
	}
	if err != nil {
		return domain.QueryRecord{}, false, fmt.Errorf("failed to create query record: %w", err)
	}
	return rec, true, nil
}

// DeleteStale deletes one batch of stale records.
func (r *queryRecordRepository) DeleteStale(ctx context.Context, policy StalePolicy, limit int) (int64, error) {
	stale := squirrel.Select("id").
		From("query_records").
		Where(squirrel.Or{
			squirrel.And{squirrel.Eq{"access_count": 0}, squirrel.Lt{"updated_at": policy.UnusedBefore}},
			squirrel.And{squirrel.Gt{"access_count": 0}, squirrel.Lt{"updated_at": policy.UsedBefore}},
		}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit))

	sql, args, err := r.builder().
		Delete("query_records").
		Where(squirrel.Expr("id IN (?)", stale)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build stale record delete: %w", err)
	}
	n, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale query records: %w", err)
	}
	return n, nil
}

// Count returns the number of stored records.
func (r *queryRecordRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM query_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count query records: %w", err)
	}
	return n, nil
}

func scanRecord(row db.Row) (domain.QueryRecord, error) {
	var (
		rec                  domain.QueryRecord
		model, payload       string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Description, &model, &payload, &rec.Truncated, &rec.AccessCount, &createdAt, &updatedAt); err != nil {
		return domain.QueryRecord{}, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.ResultIDs); err != nil {
		return domain.QueryRecord{}, fmt.Errorf("failed to unmarshal result ids: %w", err)
	}
	rec.Model = domain.EntityType(model)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return rec, nil
}
