package middleware

import (
	"context"
	"net/http"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/obsquery/internal/entityloader"
	"github.com/rpattn/obsquery/internal/repository"
)

type ctxKey int

const (
	entityLoaderKey ctxKey = iota
	requestIDKey
)

// DataLoaderMiddleware gives every request its own result-page loader, so
// the records of one page are materialized in one query per entity type and
// nothing is cached across requests.
func DataLoaderMiddleware(repo repository.EntityRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := entityloader.NewEntityLoader(repo)
			next.ServeHTTP(w, r.WithContext(WithEntityLoader(r.Context(), loader.Loader)))
		})
	}
}

// WithEntityLoader returns ctx carrying loader.
func WithEntityLoader(ctx context.Context, loader *dataloader.Loader) context.Context {
	return context.WithValue(ctx, entityLoaderKey, loader)
}

// EntityLoaderFromContext returns the request's page loader, or nil outside
// DataLoaderMiddleware.
func EntityLoaderFromContext(ctx context.Context) *dataloader.Loader {
	l, _ := ctx.Value(entityLoaderKey).(*dataloader.Loader)
	return l
}
