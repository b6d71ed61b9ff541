package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"siramify-telemetry/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func seedRows(t *testing.T, database *Database, n int) {
	t.Helper()
	rows := make([]models.RawRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.RawRow{
			"Tanggal":    "06/02/2022 01:25",
			"Suhu":       20.0 + float64(i),
			"Kelembapan": 50.0 + float64(i),
		})
	}
	count, err := database.InsertBatch(context.Background(), rows)
	if err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	if count != int64(n) {
		t.Fatalf("seeded %d rows, want %d", count, n)
	}
}

func TestListPageOrdering(t *testing.T) {
	database := openTestDB(t)
	seedRows(t, database, 5)

	rows, total, err := database.ListPage(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 5 {
		t.Errorf("total=%d, want 5", total)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows)=%d, want 2", len(rows))
	}
	// Newest first, assuming monotonically increasing ids.
	if rows[0].ID != 5 || rows[1].ID != 4 {
		t.Errorf("ids=%d,%d, want 5,4", rows[0].ID, rows[1].ID)
	}

	rows, _, err = database.ListPage(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 1 {
		t.Errorf("last page rows=%v, want single id 1", rows)
	}
}

func TestListPageInvalid(t *testing.T) {
	database := openTestDB(t)
	seedRows(t, database, 5)

	for _, page := range []int{0, -1, 4} {
		_, _, err := database.ListPage(context.Background(), page, 2)
		var pageErr *models.InvalidPageError
		if !errors.As(err, &pageErr) {
			t.Fatalf("page %d: err=%v, want InvalidPageError", page, err)
		}
		if pageErr.MaxPage != 3 {
			t.Errorf("page %d: MaxPage=%d, want 3", page, pageErr.MaxPage)
		}
	}
}

func TestListPageEmptyTable(t *testing.T) {
	database := openTestDB(t)

	rows, total, err := database.ListPage(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("page 1 on empty table must be valid: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Errorf("total=%d rows=%d, want empty", total, len(rows))
	}
}

func TestDelete(t *testing.T) {
	database := openTestDB(t)
	seedRows(t, database, 3)

	if err := database.Delete(context.Background(), 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	count, err := database.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count after delete=%d, want 2", count)
	}

	err = database.Delete(context.Background(), 99)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("delete missing id: err=%v, want ErrNotFound", err)
	}
}

// Deleting the whole last page must shrink the reported total so callers can
// clamp to a valid page on reload.
func TestListPageAfterDeletingLastPage(t *testing.T) {
	database := openTestDB(t)
	seedRows(t, database, 5)

	if err := database.Delete(context.Background(), 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, total, err := database.ListPage(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 4 {
		t.Errorf("total=%d, want 4", total)
	}

	_, _, err = database.ListPage(context.Background(), 3, 2)
	var pageErr *models.InvalidPageError
	if !errors.As(err, &pageErr) || pageErr.MaxPage != 2 {
		t.Errorf("orphaned page: err=%v, want InvalidPageError with MaxPage 2", err)
	}
}

func TestExportAll(t *testing.T) {
	database := openTestDB(t)
	seedRows(t, database, 3)

	rows, err := database.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("export all: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows)=%d, want 3", len(rows))
	}
	if rows[0].ID != 3 || rows[2].ID != 1 {
		t.Errorf("ordering=%d..%d, want newest first", rows[0].ID, rows[2].ID)
	}
	if rows[0].Raw["Suhu"] != 22.0 {
		t.Errorf("payload Suhu=%v, want 22", rows[0].Raw["Suhu"])
	}
}

// An undecodable payload degrades to an empty raw row instead of failing the
// whole scan; the normalizer then synthesizes a displayable record.
func TestScanUndecodablePayload(t *testing.T) {
	database := openTestDB(t)
	if _, err := database.conn.Exec(`INSERT INTO telemetry (payload) VALUES ('{broken')`); err != nil {
		t.Fatalf("insert broken payload: %v", err)
	}

	rows, err := database.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("export all: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows)=%d, want 1", len(rows))
	}
	if len(rows[0].Raw) != 0 {
		t.Errorf("raw=%v, want empty fail-open row", rows[0].Raw)
	}
}

func TestOwnerFilter(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if _, err := database.Insert(ctx, models.RawRow{"owner": "farmer-a", "Kelembapan": 60.0}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := database.Insert(ctx, models.RawRow{"owner": "farmer-b", "Kelembapan": 70.0}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Unscoped by default: everything is visible.
	count, err := database.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("unscoped count=%d, want 2", count)
	}

	database.SetOwnerFilter("farmer-a")
	count, err = database.Count(ctx)
	if err != nil {
		t.Fatalf("scoped count: %v", err)
	}
	if count != 1 {
		t.Errorf("scoped count=%d, want 1", count)
	}

	rows, err := database.ExportAll(ctx)
	if err != nil {
		t.Fatalf("scoped export: %v", err)
	}
	if len(rows) != 1 || rows[0].Raw["owner"] != "farmer-a" {
		t.Errorf("scoped rows=%v, want only farmer-a", rows)
	}
}
