package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"agentboard/internal/domain"
	"agentboard/internal/domain/model"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	logger := zerolog.Nop()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), &logger)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func session(id, repo string, activity time.Time) *model.SessionRecord {
	return &model.SessionRecord{ID: id, Repo: repo, Title: "t-" + id, LastActivity: activity}
}

func TestSessionRepo_UpsertIsLastWriteWins(t *testing.T) {
	c := openTestCache(t)
	repo := NewSessionRepo(c)
	ctx := context.Background()

	now := time.Now()
	if err := repo.Upsert(ctx, session("s1", "org/app", now)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	updated := session("s1", "org/app", now.Add(time.Minute))
	updated.Title = "renamed"
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "renamed" {
		t.Errorf("title = %q, want replacement to win", got.Title)
	}

	list, err := repo.ListByRepo(ctx, "org/app")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("list = %d rows, upsert must not duplicate", len(list))
	}
}

func TestSessionRepo_GetMissing(t *testing.T) {
	c := openTestCache(t)
	repo := NewSessionRepo(c)
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionRepo_DeleteCascades(t *testing.T) {
	c := openTestCache(t)
	repo := NewSessionRepo(c)
	ctx := context.Background()

	if err := repo.Upsert(ctx, session("s1", "org/app", time.Now())); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		err := repo.AppendMessage(ctx, &model.SessionMessage{SessionID: "s1", Kind: "assistant", Content: fmt.Sprintf("m%d", i)})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := repo.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err := repo.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("children survived parent delete: %d", len(msgs))
	}
}

func TestSessionRepo_MessagesOrderedBySeq(t *testing.T) {
	c := openTestCache(t)
	repo := NewSessionRepo(c)
	ctx := context.Background()

	if err := repo.Upsert(ctx, session("s1", "org/app", time.Now())); err != nil {
		t.Fatal(err)
	}
	for _, content := range []string{"first", "second", "third"} {
		if err := repo.AppendMessage(ctx, &model.SessionMessage{SessionID: "s1", Kind: "assistant", Content: content}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := repo.Messages(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Errorf("messages out of order: %+v", msgs)
	}
}

func TestCache_EvictPerRepoCap(t *testing.T) {
	c := openTestCache(t)
	repo := NewSessionRepo(c)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// 15 sessions for repo R, each with one child message.
	var all []*model.SessionRecord
	for i := 0; i < 15; i++ {
		all = append(all, session(fmt.Sprintf("r-%02d", i), "org/R", base.Add(time.Duration(i)*time.Minute)))
	}
	// Another repo stays untouched.
	other := session("other-1", "org/other", base)
	if err := repo.UpsertBatch(ctx, append(all, other)); err != nil {
		t.Fatal(err)
	}
	for _, s := range all {
		if err := repo.AppendMessage(ctx, &model.SessionMessage{SessionID: s.ID, Seq: 1, Kind: "assistant", Content: "hi", CreatedAt: s.LastActivity}); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Evict(ctx, 48*time.Hour, 10); err != nil {
		t.Fatalf("evict: %v", err)
	}

	remaining, err := repo.ListByRepo(ctx, "org/R")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 10 {
		t.Fatalf("remaining = %d, want the 10 most recently active", len(remaining))
	}
	// Most recent is r-14; oldest survivor is r-05.
	if remaining[0].ID != "r-14" || remaining[9].ID != "r-05" {
		t.Errorf("survivors = %s..%s, want r-14..r-05", remaining[0].ID, remaining[9].ID)
	}
	// Survivors keep their children; victims lose theirs.
	if msgs, _ := repo.Messages(ctx, "r-14"); len(msgs) != 1 {
		t.Error("survivor lost its child messages")
	}
	if msgs, _ := repo.Messages(ctx, "r-00"); len(msgs) != 0 {
		t.Error("victim's child messages were not cascaded")
	}
	if _, err := repo.Get(ctx, "other-1"); err != nil {
		t.Errorf("other repo was touched by the cap pass: %v", err)
	}
}

func TestCache_EvictByAge(t *testing.T) {
	c := openTestCache(t)
	repo := NewSessionRepo(c)
	jobs := NewJobRepo(c)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()
	if err := repo.Upsert(ctx, session("old", "org/app", old)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, session("fresh", "org/app", fresh)); err != nil {
		t.Fatal(err)
	}
	if err := jobs.Upsert(ctx, &model.JobRecord{Key: "app-1", Repo: "org/app", Payload: []byte(`[]`), LastActivity: old}); err != nil {
		t.Fatal(err)
	}

	if err := c.Evict(ctx, 24*time.Hour, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Get(ctx, "old"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("aged session should be gone")
	}
	if _, err := repo.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
	if _, err := jobs.Get(ctx, "app-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("aged job record should be gone")
	}
}

func TestCache_EvictIdempotent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.Evict(ctx, 24*time.Hour, 10); err != nil {
			t.Fatalf("sweep %d on empty cache: %v", i, err)
		}
	}
}

func TestJobRepo_UpsertBatchAndList(t *testing.T) {
	c := openTestCache(t)
	jobs := NewJobRepo(c)
	ctx := context.Background()
	now := time.Now()

	recs := []*model.JobRecord{
		{Key: "app-1", Repo: "org/app", Payload: []byte(`[{"status":"running"}]`), LastActivity: now.Add(-time.Minute)},
		{Key: "app-2", Repo: "org/app", Payload: []byte(`[]`), LastActivity: now},
	}
	if err := jobs.UpsertBatch(ctx, recs); err != nil {
		t.Fatal(err)
	}
	all, err := jobs.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Key != "app-2" {
		t.Errorf("ListAll = %+v, want recency-desc order", all)
	}

	// replace
	recs[0].Payload = []byte(`[{"status":"completed"}]`)
	if err := jobs.Upsert(ctx, recs[0]); err != nil {
		t.Fatal(err)
	}
	got, err := jobs.Get(ctx, "app-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Payload) != `[{"status":"completed"}]` {
		t.Errorf("payload not replaced: %s", got.Payload)
	}
}

func TestCache_MigrateIsIdempotentAcrossReopen(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "cache.db")

	c1, err := Open(path, &logger)
	if err != nil {
		t.Fatal(err)
	}
	repo := NewSessionRepo(c1)
	if err := repo.Upsert(context.Background(), session("s1", "org/app", time.Now())); err != nil {
		t.Fatal(err)
	}
	_ = c1.Close()

	c2, err := Open(path, &logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if _, err := NewSessionRepo(c2).Get(context.Background(), "s1"); err != nil {
		t.Errorf("data lost across reopen: %v", err)
	}
}
