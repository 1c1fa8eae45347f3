package out_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	statsadapter "komerge/internal/modules/stats/adapter/out"
	"komerge/internal/modules/stats/domain"
	apperrors "komerge/internal/platform/errors"
	"komerge/internal/testutil/statsdb"
)

func TestValidateAcceptsStatisticsDatabase(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "statistics.sqlite3")
	statsdb.WriteScenario(t, path)

	db, err := statsadapter.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsForeignSchema(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "other.sqlite3")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := raw.Exec(`CREATE TABLE notes (id integer primary key, body text)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	_ = raw.Close()

	db, err := statsadapter.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Validate(context.Background()); !errors.Is(err, apperrors.ErrInvalidDatabase) {
		t.Fatalf("expected invalid database, got %v", err)
	}
}

func TestOpenRejectsGarbageAndMissingFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.sqlite3")
	if err := os.WriteFile(garbage, []byte("this is not a database at all, just some text padding it out to a page"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if db, err := statsadapter.OpenSQLite(context.Background(), garbage); err == nil {
		err = db.Validate(context.Background())
		_ = db.Close()
		if !errors.Is(err, apperrors.ErrInvalidDatabase) {
			t.Fatalf("expected invalid database for garbage file, got %v", err)
		}
	} else if !errors.Is(err, apperrors.ErrInvalidDatabase) {
		t.Fatalf("expected invalid database for garbage file, got %v", err)
	}

	if _, err := statsadapter.OpenSQLite(context.Background(), filepath.Join(dir, "missing.sqlite3")); !errors.Is(err, apperrors.ErrFileMissing) {
		t.Fatalf("expected file missing, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.sqlite3")); !os.IsNotExist(err) {
		t.Fatalf("open must not create missing files")
	}
}

func TestListBooksAndEvents(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "statistics.sqlite3")
	statsdb.WriteScenario(t, path)
	db, err := statsadapter.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	books, err := db.ListBooks(context.Background())
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 3 {
		t.Fatalf("expected 3 books, got %d", len(books))
	}
	if books[0].ID != 1 || books[0].Fingerprint != "aaa" || books[0].TotalTime != 100 || books[0].TotalPages != 2 {
		t.Fatalf("unexpected first book: %+v", books[0])
	}

	events, err := db.Events(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events[1]) != 2 || len(events[2]) != 2 {
		t.Fatalf("unexpected event counts: %d/%d", len(events[1]), len(events[2]))
	}
	if events[1][0].TotalPages != 300 {
		t.Fatalf("expected total_pages to be read, got %d", events[1][0].TotalPages)
	}
}

func TestListBooksWithoutOptionalColumns(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "old.sqlite3")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	stmts := []string{
		`CREATE TABLE book (id integer primary key, title text, md5 text, total_read_time integer)`,
		`CREATE TABLE page_stat_data (id_book integer, page integer, start_time integer, duration integer)`,
		`INSERT INTO book VALUES (1, 'Old', 'x', 10)`,
	}
	for _, s := range stmts {
		if _, err := raw.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	_ = raw.Close()

	db, err := statsadapter.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	books, err := db.ListBooks(context.Background())
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 1 || books[0].Authors != domain.UnknownAuthor || books[0].Series != "" {
		t.Fatalf("unexpected books: %+v", books)
	}
}

func TestValidateRequiresTitleColumn(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "untitled.sqlite3")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	stmts := []string{
		`CREATE TABLE book (id integer primary key, md5 text, total_read_time integer)`,
		`CREATE TABLE page_stat_data (id_book integer, page integer, start_time integer, duration integer)`,
	}
	for _, s := range stmts {
		if _, err := raw.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	_ = raw.Close()

	db, err := statsadapter.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	err = db.Validate(context.Background())
	if !errors.Is(err, apperrors.ErrInvalidDatabase) || !strings.Contains(err.Error(), "title") {
		t.Fatalf("expected invalid database naming title, got %v", err)
	}
}

func TestApplyRewritesKeepAndDeletesMerged(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "statistics.sqlite3")
	statsdb.WriteScenario(t, path)
	db, err := statsadapter.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	events, err := db.Events(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	plan := domain.Merge(domain.Group{KeepID: 1, MergeIDs: []int64{2}}, events)
	if err := db.Apply(context.Background(), []domain.Plan{plan}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	books, err := db.ListBooks(context.Background())
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	_ = db.Close()

	if len(books) != 2 || books[0].ID != 1 || books[1].ID != 3 {
		t.Fatalf("unexpected books after merge: %+v", books)
	}
	if books[0].TotalTime != 190 || books[0].TotalPages != 3 || books[0].Fingerprint != "aaa" {
		t.Fatalf("unexpected keep book: %+v", books[0])
	}
	if rows := statsdb.Events(t, path, 2); len(rows) != 0 {
		t.Fatalf("expected no events for merged book, got %d", len(rows))
	}
	if rows := statsdb.Events(t, path, 1); len(rows) != 3 {
		t.Fatalf("expected 3 events for keep book, got %d", len(rows))
	}
}

func TestApplyRollsBackOnMissingBook(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "statistics.sqlite3")
	statsdb.WriteScenario(t, path)
	db, err := statsadapter.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	events, err := db.Events(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	good := domain.Merge(domain.Group{KeepID: 1, MergeIDs: []int64{2}}, events)
	bad := domain.Merge(domain.Group{KeepID: 3, MergeIDs: []int64{99}}, map[int64][]domain.Event{})
	err = db.Apply(context.Background(), []domain.Plan{good, bad})
	_ = db.Close()
	if !errors.Is(err, apperrors.ErrUnknownBook) {
		t.Fatalf("expected unknown book, got %v", err)
	}
	if !statsdb.BookExists(t, path, 2) {
		t.Fatalf("first group must be rolled back with the failing one")
	}
	if rows := statsdb.Events(t, path, 1); len(rows) != 2 {
		t.Fatalf("expected keep events untouched, got %d", len(rows))
	}
}
