package storage

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if v, found, err := kv.Get(ctx, DefaultSnapshotKey); err != nil || found || v != "" {
		t.Fatalf("expected missing key, got %q %v %v", v, found, err)
	}
	if err := kv.Set(ctx, DefaultSnapshotKey, `{"version":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, DefaultSnapshotKey, `{"version":2}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, found, err := kv.Get(ctx, DefaultSnapshotKey)
	if err != nil || !found || v != `{"version":2}` {
		t.Fatalf("unexpected get result: %q %v %v", v, found, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseKV(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	exerciseKV(t, store)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != DefaultSnapshotKey+".json" {
		t.Fatalf("unexpected files left behind: %v", entries)
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	for _, key := range []string{"", "..", "a/b", `a\b`} {
		if err := store.Set(context.Background(), key, "x"); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	t.Cleanup(func() { _ = store.Close() })

	exerciseKV(t, store)
	if ttl := mr.TTL(DefaultSnapshotKey); ttl != 0 {
		t.Fatalf("snapshot must not expire, ttl=%v", ttl)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewRedisStore(client)
	t.Cleanup(func() { _ = store.Close() })
	mr.Close()

	if _, _, err := store.Get(context.Background(), DefaultSnapshotKey); err == nil {
		t.Fatalf("expected error from closed server")
	}
	if err := store.Set(context.Background(), DefaultSnapshotKey, "x"); err == nil {
		t.Fatalf("expected error from closed server")
	}
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions("redis://:secret@localhost:6380/2")
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected url options: %+v", opts)
	}
	opts = RedisOptions("cache.example.net:6380,password=abc,ssl=True,abortConnect=False")
	if opts.Addr != "cache.example.net:6380" || opts.Password != "abc" || opts.TLSConfig == nil {
		t.Fatalf("unexpected connection string options: %+v", opts)
	}
}

type fakeTable struct {
	entities  map[string][]byte
	createErr error
	getErr    error
	upsertErr error
	lastMode  aztables.UpdateMode
}

func (f *fakeTable) GetEntity(_ context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	if f.getErr != nil {
		return aztables.GetEntityResponse{}, f.getErr
	}
	v, ok := f.entities[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}
	}
	return aztables.GetEntityResponse{Value: v}, nil
}

func (f *fakeTable) UpsertEntity(_ context.Context, entity []byte, opts *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	if f.upsertErr != nil {
		return aztables.UpsertEntityResponse{}, f.upsertErr
	}
	var ent snapshotEntity
	if err := sonic.Unmarshal(entity, &ent); err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	if f.entities == nil {
		f.entities = map[string][]byte{}
	}
	f.entities[ent.PartitionKey+"/"+ent.RowKey] = entity
	if opts != nil {
		f.lastMode = opts.UpdateMode
	}
	return aztables.UpsertEntityResponse{}, nil
}

func (f *fakeTable) CreateTable(context.Context, *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, f.createErr
}

func TestTableStore(t *testing.T) {
	table := &fakeTable{}
	store := newTableStore(table, "")
	exerciseKV(t, store)

	if _, ok := table.entities[DefaultPartition+"/"+DefaultSnapshotKey]; !ok {
		t.Fatalf("entity not stored under default partition: %v", table.entities)
	}
	if table.lastMode != aztables.UpdateModeReplace {
		t.Fatalf("unexpected update mode: %v", table.lastMode)
	}
}

func TestTableStoreGetError(t *testing.T) {
	boom := &azcore.ResponseError{StatusCode: http.StatusServiceUnavailable}
	store := newTableStore(&fakeTable{getErr: boom}, "p")
	if _, _, err := store.Get(context.Background(), DefaultSnapshotKey); !errors.Is(err, boom) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestTableStoreEnsureTable(t *testing.T) {
	ctx := context.Background()
	if err := newTableStore(&fakeTable{}, "").EnsureTable(ctx); err != nil {
		t.Fatalf("create table: %v", err)
	}
	exists := &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: string(aztables.TableAlreadyExists)}
	if err := newTableStore(&fakeTable{createErr: exists}, "").EnsureTable(ctx); err != nil {
		t.Fatalf("existing table should not fail: %v", err)
	}
	denied := &azcore.ResponseError{StatusCode: http.StatusForbidden, ErrorCode: "AuthorizationFailure"}
	if err := newTableStore(&fakeTable{createErr: denied}, "").EnsureTable(ctx); err == nil {
		t.Fatalf("expected authorization failure")
	}
}
