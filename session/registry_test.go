package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shiftboard/shiftauth/ephemeral"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewRegistry(ephemeral.NewRedis(rdb, "sa:"), func() time.Time { return now }), mr, &now
}

func TestRecordListRemove(t *testing.T) {
	r, mr, now := newTestRegistry(t)
	ctx := context.Background()

	first := Entry{AccountID: "acct", LineageID: "l1", FamilyID: "f1", IP: "10.0.0.1", UserAgent: "ua", CreatedAt: now.Add(-time.Hour)}
	second := Entry{AccountID: "acct", LineageID: "l2", FamilyID: "f2"}
	other := Entry{AccountID: "other", LineageID: "l3", FamilyID: "f3"}
	for _, e := range []Entry{second, first, other} {
		if err := r.Record(ctx, e, time.Hour); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if ttl := mr.TTL("sa:sess:acct:l1"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}

	list, err := r.List(ctx, "acct")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].LineageID != "l1" || list[1].LineageID != "l2" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].IP != "10.0.0.1" || list[0].FamilyID != "f1" {
		t.Fatalf("metadata not preserved: %+v", list[0])
	}
	if !list[1].CreatedAt.Equal(*now) {
		t.Fatalf("expected default CreatedAt, got %v", list[1].CreatedAt)
	}

	if err := r.Remove(ctx, "acct", "l1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove(ctx, "acct", "l1"); err != nil {
		t.Fatalf("Remove must be idempotent: %v", err)
	}
	list, _ = r.List(ctx, "acct")
	if len(list) != 1 {
		t.Fatalf("expected one entry left, got %d", len(list))
	}
}

func TestRotateKeepsMetadata(t *testing.T) {
	r, _, now := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, Entry{AccountID: "acct", LineageID: "l1", FamilyID: "f1", UserAgent: "phone"}, time.Hour); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := r.Rotate(ctx, "acct", "l1", "f2", 2*time.Hour); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	list, err := r.List(ctx, "acct")
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %v", list, err)
	}
	if list[0].FamilyID != "f2" || list[0].UserAgent != "phone" || !list[0].RotatedAt.Equal(*now) {
		t.Fatalf("unexpected rotated entry: %+v", list[0])
	}

	if err := r.Rotate(ctx, "acct", "gone", "f9", time.Hour); err != nil {
		t.Fatalf("Rotate of missing entry: %v", err)
	}
	list, _ = r.List(ctx, "acct")
	if len(list) != 2 {
		t.Fatalf("expected recreated entry, got %d", len(list))
	}
}

func TestRevokeAllOnlyTouchesAccount(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{AccountID: "acct", LineageID: "l1", FamilyID: "f1"},
		{AccountID: "acct", LineageID: "l2", FamilyID: "f2"},
		{AccountID: "acct2", LineageID: "l3", FamilyID: "f3"},
	} {
		if err := r.Record(ctx, e, time.Hour); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := r.RevokeAll(ctx, "acct")
	if err != nil || n != 2 {
		t.Fatalf("RevokeAll = %d, %v", n, err)
	}
	if list, _ := r.List(ctx, "acct"); len(list) != 0 {
		t.Fatalf("expected no entries, got %d", len(list))
	}
	if list, _ := r.List(ctx, "acct2"); len(list) != 1 {
		t.Fatal("expected other account untouched")
	}
	if n, err := r.RevokeAll(ctx, "acct"); err != nil || n != 0 {
		t.Fatalf("second RevokeAll = %d, %v", n, err)
	}
}

func TestListSkipsCorruptEntries(t *testing.T) {
	r, mr, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, Entry{AccountID: "acct", LineageID: "ok", FamilyID: "f"}, time.Hour); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mr.Set("sa:sess:acct:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	list, err := r.List(ctx, "acct")
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
}

func TestRegistryStoreFailure(t *testing.T) {
	r, mr, _ := newTestRegistry(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := r.List(ctx, "acct"); !errors.Is(err, ephemeral.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
