package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/kinsync/internal/config"
	"github.com/syntrixbase/kinsync/internal/live"
	"github.com/syntrixbase/kinsync/internal/persist"
	"github.com/syntrixbase/kinsync/internal/queue"
	"github.com/syntrixbase/kinsync/pkg/aggregation"
	"github.com/syntrixbase/kinsync/pkg/model"
	"github.com/syntrixbase/kinsync/pkg/query"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []live.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev live.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) ops() []live.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]live.Op, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Op
	}
	return out
}

// eachStorage runs fn against an offline repository over every persister.
func eachStorage(t *testing.T, fn func(t *testing.T, repo *Offline, p persist.Persister)) {
	for _, kind := range []string{config.StorageMemory, config.StorageSQLite, config.StoragePebble} {
		t.Run(kind, func(t *testing.T) {
			p, err := persist.Open(kind, persist.Config{Dir: filepath.Join(t.TempDir(), "data")})
			require.NoError(t, err)
			q := queue.New()
			t.Cleanup(func() {
				_ = q.Close()
				_ = p.Close()
			})
			fn(t, NewOffline(q, p, "kid"), p)
		})
	}
}

func idsOf(docs []model.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID()
	}
	return out
}

func TestOffline_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	eachStorage(t, func(t *testing.T, repo *Offline, _ persist.Persister) {
		docs, err := repo.Read(ctx, "books", nil)
		require.NoError(t, err)
		assert.Empty(t, docs)

		in := []model.Document{{"_id": "1", "title": "a", "n": 1}, {"title": "b", "n": 2}}
		created, err := repo.Create(ctx, "books", in)
		require.NoError(t, err)
		require.Len(t, created, 2)
		assert.Equal(t, "1", created[0].ID())
		assert.NotEmpty(t, created[1].ID(), "missing ids are generated")
		assert.Empty(t, in[1].ID(), "input documents are not modified")
		assert.Equal(t, true, created[1].Metadata().Local)

		docs, err = repo.Read(ctx, "books", query.New().Descending("n"))
		require.NoError(t, err)
		assert.Equal(t, []string{created[1].ID(), "1"}, idsOf(docs))

		doc, err := repo.ReadByID(ctx, "books", "1")
		require.NoError(t, err)
		assert.Equal(t, "a", doc["title"])

		_, err = repo.ReadByID(ctx, "books", "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)

		count, err := repo.Count(ctx, "books", query.New().EqualTo("title", "b"))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		count, err = repo.Count(ctx, "books", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestOffline_UpsertReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	eachStorage(t, func(t *testing.T, repo *Offline, _ persist.Persister) {
		// separate calls: entity writes within one batch are unordered
		_, err := repo.Create(ctx, "books", []model.Document{{"_id": "x", "a": 0}})
		require.NoError(t, err)
		_, err = repo.Create(ctx, "books", []model.Document{{"_id": "y", "a": 0}})
		require.NoError(t, err)

		_, err = repo.Update(ctx, "books", []model.Document{{"_id": "x", "a": 1}})
		require.NoError(t, err)
		_, err = repo.Update(ctx, "books", []model.Document{{"_id": "z", "a": 2}})
		require.NoError(t, err)

		docs, err := repo.Read(ctx, "books", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y", "z"}, idsOf(docs))

		xs, err := repo.Read(ctx, "books", query.New().EqualTo("_id", "x"))
		require.NoError(t, err)
		require.Len(t, xs, 1, "upsert must not duplicate")
		assert.EqualValues(t, 1, xs[0]["a"])
	})
}

func TestOffline_ConcurrentUpsertsLoseNothing(t *testing.T) {
	ctx := context.Background()
	eachStorage(t, func(t *testing.T, repo *Offline, _ persist.Persister) {
		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Update(ctx, "books", []model.Document{{"_id": fmt.Sprintf("e%02d", i)}})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		count, err := repo.Count(ctx, "books", nil)
		require.NoError(t, err)
		assert.Equal(t, n, count)
	})
}

func TestOffline_ArrayPersisterSerializesReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	q := queue.New()
	defer q.Close()
	repo := NewOffline(q, persist.NewMemory(), "kid")

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, "books", []model.Document{{"_id": fmt.Sprintf("c%02d", i)}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	docs, err := repo.Read(ctx, "books", nil)
	require.NoError(t, err)
	ids := idsOf(docs)
	sort.Strings(ids)
	assert.Len(t, ids, n)
	assert.Equal(t, "c00", ids[0])
}

func TestOffline_Delete(t *testing.T) {
	ctx := context.Background()
	eachStorage(t, func(t *testing.T, repo *Offline, _ persist.Persister) {
		_, err := repo.Create(ctx, "books", []model.Document{
			{"_id": "1", "n": 1}, {"_id": "2", "n": 2}, {"_id": "3", "n": 3},
		})
		require.NoError(t, err)

		removed, err := repo.Delete(ctx, "books", query.New().GreaterThan("n", 1))
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		removed, err = repo.Delete(ctx, "books", query.New().GreaterThan("n", 5))
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		removed, err = repo.DeleteByID(ctx, "books", "1")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		removed, err = repo.DeleteByID(ctx, "books", "1")
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		docs, err := repo.Read(ctx, "books", nil)
		require.NoError(t, err)
		assert.Empty(t, docs)

		_, err = repo.Create(ctx, "books", []model.Document{{"_id": "4"}, {"_id": "5"}})
		require.NoError(t, err)
		removed, err = repo.Delete(ctx, "books", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		bad := query.FromFilter(map[string]interface{}{"$and": 1})
		_, err = repo.Delete(ctx, "books", bad)
		assert.ErrorIs(t, err, model.ErrQuery)
		_, err = repo.Read(ctx, "books", bad)
		assert.ErrorIs(t, err, model.ErrQuery, "empty collection")
		_, err = repo.Count(ctx, "never_written", bad)
		assert.ErrorIs(t, err, model.ErrQuery, "missing collection")
	})
}

func TestOffline_Clear(t *testing.T) {
	ctx := context.Background()
	eachStorage(t, func(t *testing.T, repo *Offline, p persist.Persister) {
		other := NewOffline(queue.New(), p, "other")

		for _, c := range []string{"books", "authors"} {
			_, err := repo.Create(ctx, c, []model.Document{{"_id": "1"}})
			require.NoError(t, err)
		}
		_, err := other.Create(ctx, "books", []model.Document{{"_id": "1"}})
		require.NoError(t, err)

		require.NoError(t, repo.Clear(ctx, "authors"))
		count, err := repo.Count(ctx, "authors", nil)
		require.NoError(t, err)
		assert.Zero(t, count)
		count, err = repo.Count(ctx, "books", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		require.NoError(t, repo.Clear(ctx, ""))
		keys, err := p.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"other.books"}, keys, "clearing one app leaves the others")

		require.NoError(t, repo.Clear(ctx, "never-written"))
	})
}

func TestOffline_Group(t *testing.T) {
	ctx := context.Background()
	eachStorage(t, func(t *testing.T, repo *Offline, _ persist.Persister) {
		_, err := repo.Create(ctx, "books", []model.Document{
			{"_id": "1", "genre": "sf", "price": 10},
			{"_id": "2", "genre": "sf", "price": 20},
			{"_id": "3", "genre": "crime", "price": 5},
		})
		require.NoError(t, err)

		result, err := repo.Group(ctx, "books", aggregation.Sum("price").By("genre"))
		require.NoError(t, err)
		require.Len(t, result, 2)
		sums := map[interface{}]interface{}{}
		for _, r := range result {
			sums[r["genre"]] = r["sum"]
		}
		assert.Equal(t, 30.0, sums["sf"])
		assert.Equal(t, 5.0, sums["crime"])
	})
}

func TestOffline_InvalidIdentifiers(t *testing.T) {
	ctx := context.Background()
	repo := NewOffline(queue.New(), persist.NewMemory(), "kid")

	_, err := repo.Create(ctx, "", []model.Document{{}})
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	_, err = repo.Read(ctx, "", nil)
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	_, err = repo.ReadByID(ctx, "books", "")
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	_, err = repo.DeleteByID(ctx, "books", "")
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	_, err = repo.Count(ctx, "", nil)
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	_, err = repo.Group(ctx, "", aggregation.Count(""))
	assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
}

func TestOffline_CanceledBeforeQueued(t *testing.T) {
	repo := NewOffline(queue.New(), persist.NewMemory(), "kid")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Create(ctx, "books", []model.Document{{"_id": "1"}})
	assert.ErrorIs(t, err, model.ErrCanceled)

	docs, err := repo.Read(context.Background(), "books", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestOffline_Notifications(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	repo := NewOffline(queue.New(), persist.NewMemory(), "kid", WithNotifier(n))

	_, err := repo.Create(ctx, "books", []model.Document{{"_id": "1"}, {"_id": "2"}})
	require.NoError(t, err)
	_, err = repo.Update(ctx, "books", []model.Document{{"_id": "1", "v": 2}})
	require.NoError(t, err)
	_, err = repo.DeleteByID(ctx, "books", "2")
	require.NoError(t, err)
	_, err = repo.DeleteByID(ctx, "books", "2")
	require.NoError(t, err)
	require.NoError(t, repo.Clear(ctx, "books"))

	assert.Equal(t, []live.Op{live.OpCreate, live.OpUpdate, live.OpDelete, live.OpClear}, n.ops())
	assert.Equal(t, []string{"1", "2"}, n.events[0].IDs)
	assert.Equal(t, "kid", n.events[0].AppKey)
	assert.Equal(t, "books", n.events[0].Collection)
	assert.Equal(t, []string{"2"}, n.events[2].IDs)
}

func TestOffline_NotifierFailureIsNotReturned(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker down")}
	repo := NewOffline(queue.New(), persist.NewMemory(), "kid", WithNotifier(n))

	created, err := repo.Create(context.Background(), "books", []model.Document{{"_id": "1"}})
	require.NoError(t, err)
	assert.Len(t, created, 1)
	assert.Len(t, n.ops(), 1)
}

func TestOffline_LiveService(t *testing.T) {
	ctx := context.Background()
	svc := live.NewService(live.NewMemoryBroker(), "kinsync", nil)
	defer svc.Close()

	events, stop, err := svc.Subscribe(ctx, "kid", "books")
	require.NoError(t, err)
	defer stop()

	repo := NewOffline(queue.New(), persist.NewMemory(), "kid", WithNotifier(svc))
	_, err = repo.Create(ctx, "books", []model.Document{{"_id": "1"}})
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, live.OpCreate, ev.Op)
	assert.Equal(t, []string{"1"}, ev.IDs)
}

func TestUpsert(t *testing.T) {
	existing := []model.Document{{"_id": "a", "v": 0}, {"_id": "b", "v": 0}}
	incoming := []model.Document{{"_id": "c", "v": 1}, {"_id": "a", "v": 1}, {"_id": "c", "v": 2}}

	out := upsert(existing, incoming)
	assert.Equal(t, []model.Document{{"_id": "a", "v": 1}, {"_id": "b", "v": 0}, {"_id": "c", "v": 2}}, out)
}
