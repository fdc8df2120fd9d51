package catalog

import (
	"context"
	"errors"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the commands RedisViewCounter uses.
type fakeRedis struct {
	redis.Cmdable
	counts map[string]int64
	fail   error
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	n, ok := f.counts[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.FormatInt(n, 10), nil)
}

func (f *fakeRedis) IncrBy(ctx context.Context, key string, n int64) *redis.IntCmd {
	f.counts[key] += n
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedis) GetDel(ctx context.Context, key string) *redis.StringCmd {
	cmd := f.Get(ctx, key)
	delete(f.counts, key)
	return cmd
}

// Scan returns every match in one page.
func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.counts {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 0, nil)
}

type failingSink struct{ failOn string }

func (s failingSink) AddViews(ctx context.Context, id string, n int64) error {
	if id == s.failOn {
		return errors.New("database down")
	}
	return nil
}

func TestRedisViewCounter_Increment(t *testing.T) {
	f := &fakeRedis{counts: map[string]int64{}}
	v := NewRedisViewCounter(f, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := v.Increment(ctx, "series-1"); err != nil {
			t.Fatal(err)
		}
	}
	if f.counts["views:series-1"] != 3 {
		t.Errorf("counts = %v", f.counts)
	}
}

func TestRedisViewCounter_Increment_error(t *testing.T) {
	boom := errors.New("connection refused")
	v := NewRedisViewCounter(&fakeRedis{counts: map[string]int64{}, fail: boom}, "v:")
	if err := v.Increment(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestRedisViewCounter_Fold(t *testing.T) {
	f := &fakeRedis{counts: map[string]int64{"other:x": 9}}
	v := NewRedisViewCounter(f, "")
	ctx := context.Background()
	store := seededStore(t)

	for i := 0; i < 3; i++ {
		_ = v.Increment(ctx, "series-1")
	}
	_ = v.Increment(ctx, "movie-1")

	n, err := v.Fold(ctx, store)
	if err != nil || n != 4 {
		t.Fatalf("Fold = %d, %v", n, err)
	}
	if c, _ := store.Content(ctx, "series-1"); c.TotalViews != 3 {
		t.Errorf("series TotalViews = %d", c.TotalViews)
	}
	if c, _ := store.Content(ctx, "movie-1"); c.TotalViews != 1 {
		t.Errorf("movie TotalViews = %d", c.TotalViews)
	}
	if len(f.counts) != 1 || f.counts["other:x"] != 9 {
		t.Errorf("fold should drain only its prefix: %v", f.counts)
	}

	if n, err := v.Fold(ctx, store); err != nil || n != 0 {
		t.Errorf("second Fold = %d, %v", n, err)
	}
}

func TestRedisViewCounter_Fold_restores_on_sink_error(t *testing.T) {
	f := &fakeRedis{counts: map[string]int64{}}
	v := NewRedisViewCounter(f, "")
	ctx := context.Background()
	_ = v.Increment(ctx, "a")
	_ = v.Increment(ctx, "b")
	_ = v.Increment(ctx, "b")

	_, err := v.Fold(ctx, failingSink{failOn: "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if f.counts["views:b"] != 2 {
		t.Errorf("views:b = %d, want the count put back", f.counts["views:b"])
	}
}

// TestPostgresStore_live runs only against a provisioned database.
func TestPostgresStore_live(t *testing.T) {
	dsn := os.Getenv("HLS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HLS_TEST_DATABASE_URL not set")
	}
	db, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := NewPostgresStore(db)
	if _, err := s.Content(context.Background(), "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for nil uuid, got %v", err)
	}
	if err := NewPostgresViewCounter(db).Increment(context.Background(), "00000000-0000-0000-0000-000000000000"); err != nil {
		t.Errorf("Increment on missing row: %v", err)
	}
}
