package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/models"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/repository"
	"github.com/rpattn/obsquery/internal/testutil"
)

type countingCompiler struct {
	inner *compiler.Compiler
	calls atomic.Int32
}

func (c *countingCompiler) Compile(ctx context.Context, spec *query.Spec) (*compiler.Plan, error) {
	c.calls.Add(1)
	return c.inner.Compile(ctx, spec)
}

type env struct {
	factory  *query.Factory
	compiler *countingCompiler
	records  repository.QueryRecordRepository
	fx       *testutil.Fixtures
}

func newEnv(t *testing.T) *env {
	t.Helper()
	catalog, err := models.Default()
	require.NoError(t, err)
	conn, fx := testutil.NewSeededDB(t)
	factory, err := query.NewFactory(catalog.Schemas, query.Options{
		Lookup:  repository.NewEntityRepository(conn).Lookup,
		Filters: catalog.Filters,
	})
	require.NoError(t, err)
	return &env{
		factory:  factory,
		compiler: &countingCompiler{inner: compiler.New(catalog.Predicates, conn)},
		records:  repository.NewQueryRecordRepository(conn),
		fx:       fx,
	}
}

func (e *env) spec(t *testing.T, raw map[string]any) *query.Spec {
	t.Helper()
	spec, err := e.factory.New(domain.EntityTypeObservation, raw)
	require.NoError(t, err)
	return spec
}

func TestGetOrCreate_ReusesRecordWithoutRecompiling(t *testing.T) {
	e := newEnv(t)
	store := NewStore(e.records, e.compiler)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, e.spec(t, map[string]any{"by_user": "alice", "has_images": true}))
	require.NoError(t, err)
	assert.Equal(t, e.fx.ObservationIDs("o3", "o1"), first.ResultIDs)
	assert.Equal(t, int32(1), e.compiler.calls.Load())

	// same parameters, different construction order and reference form
	second, err := store.GetOrCreate(ctx, e.spec(t, map[string]any{"has_images": "1", "by_user": e.fx.Users["alice"]}))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ResultIDs, second.ResultIDs)
	assert.Equal(t, int64(1), second.AccessCount)
	assert.Equal(t, int32(1), e.compiler.calls.Load())
}

func TestGetOrCreate_RoundTripThroughDescription(t *testing.T) {
	e := newEnv(t)
	store := NewStore(e.records, e.compiler)
	ctx := context.Background()

	rec, err := store.GetOrCreate(ctx, e.spec(t, map[string]any{"date": []any{"2024"}}))
	require.NoError(t, err)

	parsed, err := e.factory.Parse(rec.Description)
	require.NoError(t, err)
	again, err := store.GetOrCreate(ctx, parsed)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, e.fx.ObservationIDs("o3", "o4", "o1"), again.ResultIDs)
	assert.Equal(t, int32(1), e.compiler.calls.Load())
}

func TestGetOrCreate_InvalidSpec(t *testing.T) {
	e := newEnv(t)
	store := NewStore(e.records, e.compiler)

	_, err := store.GetOrCreate(context.Background(), e.spec(t, map[string]any{"has_images": "maybe"}))
	assert.ErrorIs(t, err, query.ErrInvalidSpec)
	assert.Zero(t, e.compiler.calls.Load())
}

func TestGetOrCreate_TruncatesLongOrderings(t *testing.T) {
	e := newEnv(t)
	store := NewStore(e.records, e.compiler, WithMaxCachedIDs(4))

	rec, err := store.GetOrCreate(context.Background(), e.spec(t, nil))
	require.NoError(t, err)
	assert.True(t, rec.Truncated)
	assert.Equal(t, e.fx.ObservationIDs("o3", "o4", "o1", "o2"), rec.ResultIDs)
}

func TestGetOrCreate_ConcurrentFirstExecutionPersistsOneRecord(t *testing.T) {
	e := newEnv(t)
	// separate stores share no singleflight group, like two processes
	stores := []*Store{NewStore(e.records, e.compiler), NewStore(e.records, e.compiler)}
	ctx := context.Background()

	specs := make([]*query.Spec, 8)
	for i := range specs {
		specs[i] = e.spec(t, map[string]any{"has_specimen": true})
	}

	var wg sync.WaitGroup
	results := make([]domain.QueryRecord, len(specs))
	errs := make([]error, len(specs))
	for i := range specs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = stores[i%2].GetOrCreate(ctx, specs[i])
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		assert.Equal(t, e.fx.ObservationIDs("o4", "o1"), results[i].ResultIDs)
	}
	n, err := e.records.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSweep_DeletesOnlyStaleRecords(t *testing.T) {
	e := newEnv(t)
	store := NewStore(e.records, e.compiler)
	ctx := context.Background()

	unused, err := store.GetOrCreate(ctx, e.spec(t, map[string]any{"has_name": false}))
	require.NoError(t, err)
	used, err := store.GetOrCreate(ctx, e.spec(t, map[string]any{"has_name": true}))
	require.NoError(t, err)
	_, err = store.Get(ctx, used.ID)
	require.NoError(t, err)

	sweeper := NewSweeper(e.records, GCConfig{BatchSize: 1}, nil)
	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	deleted, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, unused.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Get(ctx, used.ID)
	assert.NoError(t, err)

	sweeper.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	deleted, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	e := newEnv(t)
	sweeper := NewSweeper(e.records, GCConfig{Schedule: "every so often"}, nil)
	assert.Error(t, sweeper.Start(context.Background()))
	sweeper.Stop(context.Background())
}

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(nil, GCConfig{}, nil)
	assert.Equal(t, DefaultGCConfig(), s.config)
}

// gatedCompiler holds every compilation until release is closed, then fails
// it if its context was cancelled meanwhile.
type gatedCompiler struct {
	inner   *compiler.Compiler
	entered chan struct{}
	release chan struct{}
	done    chan error
}

func (c *gatedCompiler) Compile(ctx context.Context, spec *query.Spec) (*compiler.Plan, error) {
	c.entered <- struct{}{}
	<-c.release
	if err := ctx.Err(); err != nil {
		c.done <- err
		return nil, err
	}
	plan, err := c.inner.Compile(ctx, spec)
	c.done <- err
	return plan, err
}

func TestGetOrCreate_CancelledCallerDoesNotFailTheSharedFlight(t *testing.T) {
	e := newEnv(t)
	gated := &gatedCompiler{
		inner:   e.compiler.inner,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		done:    make(chan error, 1),
	}
	store := NewStore(e.records, gated)
	spec := e.spec(t, map[string]any{"has_specimen": true})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := store.GetOrCreate(ctx, spec)
		result <- err
	}()

	<-gated.entered
	cancel()
	assert.ErrorIs(t, <-result, context.Canceled)

	close(gated.release)
	require.NoError(t, <-gated.done)

	// the flight completes after create persists the record
	require.Eventually(t, func() bool {
		n, err := e.records.Count(context.Background())
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec, err := store.GetOrCreate(context.Background(), e.spec(t, map[string]any{"has_specimen": "yes"}))
	require.NoError(t, err)
	assert.Equal(t, e.fx.ObservationIDs("o4", "o1"), rec.ResultIDs)
}
