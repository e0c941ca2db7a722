package queue

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row with a custom scan function.
type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	return r.scanFunc(dest...)
}

// fakeDBTX implements db.DBTX for unit testing.
type fakeDBTX struct {
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (d *fakeDBTX) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if d.execFunc != nil {
		return d.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (d *fakeDBTX) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, nil
}

func (d *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if d.queryRowFunc != nil {
		return d.queryRowFunc(ctx, sql, args...)
	}
	return &fakeRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
}

func retryCountRow(count int) *fakeRow {
	return &fakeRow{scanFunc: func(dest ...any) error {
		*dest[0].(*int) = count
		return nil
	}}
}

const testEntryID = "00000000-0000-0000-0000-000000000001"

func TestFailureStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retries    int
		maxRetries int
		want       Status
	}{
		{name: "first failure stays retryable", retries: 1, maxRetries: 3, want: StatusApproved},
		{name: "second failure stays retryable", retries: 2, maxRetries: 3, want: StatusApproved},
		{name: "third failure exhausts", retries: 3, maxRetries: 3, want: StatusFailed},
		{name: "past the ceiling stays failed", retries: 5, maxRetries: 3, want: StatusFailed},
		{name: "single-retry ceiling", retries: 1, maxRetries: 1, want: StatusFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := failureStatus(tt.retries, tt.maxRetries); got != tt.want {
				t.Fatalf("failureStatus(%d, %d) = %s, want %s", tt.retries, tt.maxRetries, got, tt.want)
			}
		})
	}
}

func TestFailOrRequeue_RequeuesBelowCeiling(t *testing.T) {
	t.Parallel()

	var settledStatus string
	db := &fakeDBTX{
		queryRowFunc: func(_ context.Context, sql string, _ ...any) pgx.Row {
			if !strings.Contains(sql, "retry_count + 1") {
				t.Fatalf("expected retry bump, got %q", sql)
			}
			return retryCountRow(1)
		},
		execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			settledStatus = args[1].(string)
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	svc := NewService(nil, db)

	status, err := svc.FailOrRequeue(context.Background(), testEntryID, "destination returned 500", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusApproved {
		t.Fatalf("expected approved, got %s", status)
	}
	if settledStatus != "approved" {
		t.Fatalf("expected approved written, got %q", settledStatus)
	}
}

func TestFailOrRequeue_ExhaustsAtCeiling(t *testing.T) {
	t.Parallel()

	var settledStatus string
	db := &fakeDBTX{
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return retryCountRow(3)
		},
		execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			settledStatus = args[1].(string)
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	svc := NewService(nil, db)

	status, err := svc.FailOrRequeue(context.Background(), testEntryID, "destination returned 500", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	if settledStatus != "failed" {
		t.Fatalf("expected failed written, got %q", settledStatus)
	}
}

func TestFailOrRequeue_LostClaim(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeDBTX{})

	if _, err := svc.FailOrRequeue(context.Background(), testEntryID, "late failure", 3); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBulkApprove_AllPending(t *testing.T) {
	t.Parallel()

	var gotSQL string
	var gotArgs []any
	db := &fakeDBTX{
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 4"), nil
		},
	}
	svc := NewService(nil, db)

	updated, err := svc.BulkApprove(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != 4 {
		t.Fatalf("expected 4 updated, got %d", updated)
	}
	if !strings.Contains(gotSQL, "WHERE status = 'pending'") {
		t.Fatalf("expected pending guard, got %q", gotSQL)
	}
	if strings.Contains(gotSQL, "ANY") || len(gotArgs) != 0 {
		t.Fatalf("expected no id filter for all-pending, got %q args %v", gotSQL, gotArgs)
	}
}

func TestBulkReject_ListedIDs(t *testing.T) {
	t.Parallel()

	var gotSQL string
	var gotArgs []any
	db := &fakeDBTX{
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	svc := NewService(nil, db)

	updated, err := svc.BulkReject(context.Background(), []string{testEntryID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 updated, got %d", updated)
	}
	if !strings.Contains(gotSQL, "id = ANY($1)") || !strings.Contains(gotSQL, "status = 'pending'") {
		t.Fatalf("expected id filter with pending guard, got %q", gotSQL)
	}
	if len(gotArgs) != 1 {
		t.Fatalf("expected one arg, got %v", gotArgs)
	}
}

func TestBulkApprove_InvalidID(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeDBTX{})

	if _, err := svc.BulkApprove(context.Background(), []string{"not-a-uuid"}); err == nil {
		t.Fatal("expected error for invalid id")
	}
}
