package entityloader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/repository"
)

type EntityLoader struct {
	Loader *dataloader.Loader
}

// Key identifies one entity for the loader.
func Key(t domain.EntityType, id int64) dataloader.Key {
	return dataloader.StringKey(string(t) + ":" + strconv.FormatInt(id, 10))
}

func parseKey(k dataloader.Key) (domain.EntityType, int64, error) {
	t, raw, ok := strings.Cut(k.String(), ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid entity key %q", k.String())
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid entity id in key %q: %w", k.String(), err)
	}
	return domain.EntityType(t), id, nil
}

func NewEntityLoader(repo repository.EntityRepository) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		// Group ids by type, keeping each key's position
		byType := make(map[domain.EntityType][]int64)
		for i, k := range keys {
			t, id, err := parseKey(k)
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			byType[t] = append(byType[t], id)
		}

		// Fetch entities in batch, one query per type
		found := make(map[string]domain.Entity)
		for t, ids := range byType {
			entities, err := repo.GetByIDs(ctx, t, ids)
			if err != nil {
				for i, k := range keys {
					if results[i] == nil && strings.HasPrefix(k.String(), string(t)+":") {
						results[i] = &dataloader.Result{Error: err}
					}
				}
				continue
			}
			for _, e := range entities {
				found[Key(t, e.ID).String()] = e
			}
		}

		// Build results in the same order as keys
		for i, k := range keys {
			if results[i] != nil {
				continue
			}
			if e, ok := found[k.String()]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &EntityLoader{Loader: loader}
}

// LoadPage materializes ids of one type in order, skipping ids that no
// longer exist.
func LoadPage(ctx context.Context, loader *dataloader.Loader, t domain.EntityType, ids []int64) ([]domain.Entity, error) {
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = Key(t, id)
	}
	data, errs := loader.LoadMany(ctx, keys)()
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to load %s page: %w", t, err)
		}
	}

	entities := make([]domain.Entity, 0, len(data))
	for _, d := range data {
		if e, ok := d.(domain.Entity); ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}
