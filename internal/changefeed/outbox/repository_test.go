package outbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func TestUnconfiguredRepositoryFailsFast(t *testing.T) {
	ctx := context.Background()
	var repo *Repository

	if _, err := repo.Insert(ctx, nil, "contacts", "insert", time.Time{}); err == nil {
		t.Fatal("expected insert without pool or querier to fail")
	}
	if _, err := repo.ClaimPending(ctx, 10, time.Minute); err == nil {
		t.Fatal("expected claim without pool to fail")
	}
	if err := repo.Release(ctx, []uuid.UUID{uuid.New()}); err == nil {
		t.Fatal("expected release without pool to fail")
	}
	if err := repo.MarkProcessed(ctx, []uuid.UUID{uuid.New()}); err == nil {
		t.Fatal("expected mark without pool to fail")
	}
	if _, err := repo.DeleteProcessedBefore(ctx, time.Now()); err == nil {
		t.Fatal("expected delete without pool to fail")
	}
}

type fakeRow struct{ id uuid.UUID }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*uuid.UUID)) = r.id
	return nil
}

type recordingQuerier struct {
	sql  string
	args []any
	id   uuid.UUID
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return fakeRow{id: q.id}
}

func TestInsertUsesCallerTransaction(t *testing.T) {
	q := &recordingQuerier{id: uuid.New()}
	occurred := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	id, err := New(nil).Insert(context.Background(), q, "interactions", "update", occurred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != q.id {
		t.Fatalf("expected id %s, got %s", q.id, id)
	}
	if !strings.Contains(q.sql, "INSERT INTO analytics_change_outbox") {
		t.Fatalf("unexpected sql: %s", q.sql)
	}
	if len(q.args) != 3 || q.args[0] != "interactions" || q.args[1] != "update" || q.args[2] != occurred {
		t.Fatalf("unexpected args: %v", q.args)
	}
}

func TestInsertRequiresEntityAndOperation(t *testing.T) {
	q := &recordingQuerier{}
	repo := New(nil)

	if _, err := repo.Insert(context.Background(), q, "", "insert", time.Time{}); err == nil {
		t.Fatal("expected missing entity to fail")
	}
	if _, err := repo.Insert(context.Background(), q, "contacts", "", time.Time{}); err == nil {
		t.Fatal("expected missing operation to fail")
	}
	if q.sql != "" {
		t.Fatal("expected no statement for invalid input")
	}
}

func TestClaimReclaimsExpiredLeases(t *testing.T) {
	if !strings.Contains(claimSQL, "status = 'pending'") {
		t.Fatalf("claim must take pending rows: %s", claimSQL)
	}
	if !strings.Contains(claimSQL, "status = 'enqueued' AND updated_at < now() - ($2::bigint * interval '1 millisecond')") {
		t.Fatalf("claim must take enqueued rows past their lease: %s", claimSQL)
	}
	if !strings.Contains(claimSQL, "FOR UPDATE SKIP LOCKED") {
		t.Fatalf("claim must skip rows held by another relay: %s", claimSQL)
	}
}

func TestReleaseRefundsTheClaimAttempt(t *testing.T) {
	if !strings.Contains(releaseSQL, "attempts = GREATEST(attempts - 1, 0)") {
		t.Fatalf("release must refund the attempt: %s", releaseSQL)
	}
	if !strings.Contains(releaseSQL, "AND status = 'enqueued'") {
		t.Fatalf("release must only touch claimed rows: %s", releaseSQL)
	}
}
