package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/db"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/models"
	"github.com/rpattn/obsquery/internal/schema/validator"
)

// entityRepository implements EntityRepository interface
type entityRepository struct {
	db db.DB
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(database db.DB) EntityRepository {
	return &entityRepository{db: database}
}

// LookupFunc adapts the repository to the validator's lookup hook.
func LookupFunc(repo EntityRepository) validator.LookupFunc {
	return repo.Lookup
}

// Lookup matches value case-insensitively against the type's lookup columns.
func (r *entityRepository) Lookup(ctx context.Context, entityType domain.EntityType, value string) ([]int64, error) {
	model, ok := models.ModelFor(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %s", entityType)
	}
	if len(model.Lookup) == 0 {
		return nil, validator.ErrLookupUnsupported
	}

	needle := strings.ToLower(strings.TrimSpace(value))
	or := squirrel.Or{}
	for _, col := range model.Lookup {
		or = append(or, squirrel.Eq{"LOWER(" + col + ")": needle})
	}
	sql, args, err := squirrel.Select(model.Table + ".id").
		From(model.Table).
		Where(or).
		OrderBy(model.Table + ".id ASC").
		PlaceholderFormat(r.db.Dialect().Placeholder()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s lookup: %w", entityType, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", entityType, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", entityType, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetByIDs retrieves multiple entities by their IDs.
func (r *entityRepository) GetByIDs(ctx context.Context, entityType domain.EntityType, ids []int64) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}
	model, ok := models.ModelFor(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %s", entityType)
	}

	columns := []string{
		model.Table + ".id",
		"COALESCE(" + model.Title + ", '')",
		model.Table + ".created_at",
		model.Table + ".updated_at",
	}
	columns = append(columns, model.Fields...)
	b := squirrel.Select(columns...).
		From(model.Table).
		Where(squirrel.Eq{model.Table + ".id": ids}).
		PlaceholderFormat(r.db.Dialect().Placeholder())
	for _, join := range model.Joins {
		b = b.LeftJoin(join)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s load: %w", entityType, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s entities by IDs: %w", entityType, err)
	}
	defer rows.Close()

	byID := make(map[int64]domain.Entity, len(ids))
	for rows.Next() {
		entity, err := scanEntity(rows, model)
		if err != nil {
			return nil, err
		}
		byID[entity.ID] = entity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s entities: %w", entityType, err)
	}

	entities := make([]domain.Entity, 0, len(byID))
	for _, id := range ids {
		if entity, ok := byID[id]; ok {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

func scanEntity(rows db.Rows, model models.Model) (domain.Entity, error) {
	var (
		entity               domain.Entity
		createdAt, updatedAt int64
	)
	values := make([]any, len(model.Fields))
	dest := []any{&entity.ID, &entity.Title, &createdAt, &updatedAt}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return domain.Entity{}, fmt.Errorf("failed to scan %s: %w", model.Type, err)
	}

	entity.EntityType = model.Type
	entity.CreatedAt = time.Unix(createdAt, 0).UTC()
	entity.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	entity.Fields = make(map[string]any, len(values))
	for i, col := range model.Fields {
		entity.Fields[fieldName(col)] = normalizeValue(values[i])
	}
	return entity, nil
}

func fieldName(column string) string {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}

// normalizeValue smooths over driver differences in dynamically scanned
// columns.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}
