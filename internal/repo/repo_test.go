package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"prepcal/internal/db"
	"prepcal/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func TestUpsertUser(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	u1, err := r.UpsertUser(ctx, "ana@example.com", "Ana")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if u1.ID == "" || u1.Email != "ana@example.com" {
		t.Fatalf("user = %+v", u1)
	}

	// Same email: same user, refreshed name.
	u2, err := r.UpsertUser(ctx, "ana@example.com", "Ana B")
	if err != nil {
		t.Fatalf("UpsertUser again: %v", err)
	}
	if u2.ID != u1.ID {
		t.Fatalf("id changed: %q vs %q", u2.ID, u1.ID)
	}
	if u2.Name != "Ana B" {
		t.Fatalf("name = %q", u2.Name)
	}

	got, err := r.GetUser(ctx, u1.ID)
	if err != nil || got.Name != "Ana B" {
		t.Fatalf("GetUser = %+v, %v", got, err)
	}
	if _, err := r.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAccountLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	u, err := r.UpsertUser(ctx, "ana@example.com", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	expiry := time.Now().Add(time.Hour)

	a, err := r.UpsertAccount(ctx, u.ID, "google", "access-1", "refresh-1", expiry)
	if err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}

	// Repeat consent without a refresh token keeps the stored one.
	a2, err := r.UpsertAccount(ctx, u.ID, "google", "access-2", "", expiry)
	if err != nil {
		t.Fatalf("UpsertAccount update: %v", err)
	}
	if a2.ID != a.ID {
		t.Fatalf("account id changed")
	}
	if a2.AccessToken != "access-2" || a2.RefreshToken != "refresh-1" {
		t.Fatalf("account = %+v", a2)
	}

	if err := r.SaveToken(ctx, a.ID, "access-3", expiry.Add(time.Hour)); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	got, err := r.GetAccount(ctx, u.ID, "google")
	if err != nil || got.AccessToken != "access-3" {
		t.Fatalf("GetAccount = %+v, %v", got, err)
	}

	if err := r.SaveToken(ctx, "missing", "x", expiry); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SaveToken missing = %v", err)
	}
	if _, err := r.GetAccount(ctx, u.ID, "outlook"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAccount other provider = %v", err)
	}
}

func TestChatRequestReplyFlow(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	req, err := r.CreateChatRequest(ctx, "req-1", "plan my week")
	if err != nil {
		t.Fatalf("CreateChatRequest: %v", err)
	}
	if req.Status != "pending" {
		t.Fatalf("status = %q", req.Status)
	}

	latest, err := r.LatestPendingRequest(ctx)
	if err != nil || latest.ID != "req-1" {
		t.Fatalf("LatestPendingRequest = %+v, %v", latest, err)
	}

	if _, err := r.ReplyForRequest(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected reply before RecordReply: %v", err)
	}

	reply, err := r.RecordReply(ctx, "req-1", "here is your plan")
	if err != nil {
		t.Fatalf("RecordReply: %v", err)
	}
	if reply.RequestID != "req-1" {
		t.Fatalf("reply = %+v", reply)
	}

	got, err := r.GetChatRequest(ctx, "req-1")
	if err != nil || got.Status != "answered" {
		t.Fatalf("request after reply = %+v, %v", got, err)
	}
	fetched, err := r.ReplyForRequest(ctx, "req-1")
	if err != nil || fetched.Message != "here is your plan" {
		t.Fatalf("ReplyForRequest = %+v, %v", fetched, err)
	}

	if _, err := r.LatestPendingRequest(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("answered request still pending: %v", err)
	}
}

func TestDeleteChatRequest(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.CreateChatRequest(ctx, "req-1", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteChatRequest(ctx, "req-1"); err != nil {
		t.Fatalf("DeleteChatRequest: %v", err)
	}
	if _, err := r.GetChatRequest(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("request survived delete: %v", err)
	}
	if err := r.DeleteChatRequest(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestLatestPendingPicksNewest(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	now := base
	r.Now = func() time.Time { return now }
	if _, err := r.CreateChatRequest(ctx, "old", "first"); err != nil {
		t.Fatal(err)
	}
	now = base.Add(time.Minute)
	if _, err := r.CreateChatRequest(ctx, "new", "second"); err != nil {
		t.Fatal(err)
	}

	latest, err := r.LatestPendingRequest(ctx)
	if err != nil || latest.ID != "new" {
		t.Fatalf("latest = %+v, %v", latest, err)
	}
}

func TestPruneAnsweredBefore(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	now := base
	r.Now = func() time.Time { return now }

	if _, err := r.CreateChatRequest(ctx, "old-answered", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RecordReply(ctx, "old-answered", "done"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateChatRequest(ctx, "old-pending", "b"); err != nil {
		t.Fatal(err)
	}

	now = base.Add(48 * time.Hour)
	if _, err := r.CreateChatRequest(ctx, "fresh-answered", "c"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RecordReply(ctx, "fresh-answered", "done"); err != nil {
		t.Fatal(err)
	}

	n, err := r.PruneAnsweredBefore(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("PruneAnsweredBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}

	// Pending requests survive regardless of age; replies cascade away with
	// their request.
	if _, err := r.GetChatRequest(ctx, "old-pending"); err != nil {
		t.Fatalf("pending request pruned: %v", err)
	}
	if _, err := r.GetChatRequest(ctx, "old-answered"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old answered request survived: %v", err)
	}
	var count int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_replies WHERE request_id='old-answered'`).Scan(&count); err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("replies not cascaded: %d", count)
	}
	if _, err := r.GetChatRequest(ctx, "fresh-answered"); err != nil {
		t.Fatalf("fresh answered request pruned: %v", err)
	}
}
