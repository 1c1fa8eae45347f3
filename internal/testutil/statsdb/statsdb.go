// Package statsdb builds KOReader-shaped statistics databases for tests.
package statsdb

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE book (
  id integer PRIMARY KEY autoincrement,
  title text,
  authors text,
  notes integer,
  last_open integer,
  highlights integer,
  pages integer,
  series text,
  language text,
  md5 text,
  total_read_time integer,
  total_read_pages integer
);
CREATE TABLE page_stat_data (
  id_book integer,
  page integer NOT NULL DEFAULT 0,
  start_time integer NOT NULL DEFAULT 0,
  duration integer NOT NULL DEFAULT 0,
  total_pages integer NOT NULL DEFAULT 0,
  UNIQUE (id_book, page, start_time),
  FOREIGN KEY(id_book) REFERENCES book(id)
);
CREATE VIEW page_stat AS SELECT id_book, page, start_time, duration FROM page_stat_data;
`

type Book struct {
	ID      int64
	Title   string
	Authors string
	MD5     string
	Events  []Event
}

type Event struct {
	Page      int64
	StartTime int64
	Duration  int64
}

// Write creates a statistics database at path holding books. Book totals are
// derived from their events the way the device computes them.
func Write(t testing.TB, path string, books []Book) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}
	for _, b := range books {
		var total int64
		pages := map[int64]struct{}{}
		for _, e := range b.Events {
			total += e.Duration
			pages[e.Page] = struct{}{}
		}
		if _, err := db.Exec(`INSERT INTO book (id, title, authors, md5, total_read_time, total_read_pages) VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.Title, b.Authors, b.MD5, total, len(pages)); err != nil {
			t.Fatalf("insert fixture book %d: %v", b.ID, err)
		}
		for _, e := range b.Events {
			if _, err := db.Exec(`INSERT INTO page_stat_data (id_book, page, start_time, duration, total_pages) VALUES (?, ?, ?, ?, ?)`,
				b.ID, e.Page, e.StartTime, e.Duration, 300); err != nil {
				t.Fatalf("insert fixture event for book %d: %v", b.ID, err)
			}
		}
	}
}

// Scenario is the two-record duplicate used throughout the tests: book 2 is an
// edited copy of book 1 sharing one reading event.
func Scenario() []Book {
	return []Book{
		{ID: 1, Title: "Dune", Authors: "Frank Herbert", MD5: "aaa", Events: []Event{{1, 1000, 30}, {2, 1100, 70}}},
		{ID: 2, Title: "Dune", Authors: "Frank Herbert", MD5: "bbb", Events: []Event{{1, 1000, 30}, {3, 1200, 90}}},
		{ID: 3, Title: "Emma", Authors: "Jane Austen", MD5: "ccc", Events: []Event{{1, 5000, 40}}},
	}
}

// WriteScenario writes Scenario to path.
func WriteScenario(t testing.TB, path string) {
	t.Helper()
	Write(t, path, Scenario())
}

type Row struct {
	BookID    int64
	Page      int64
	StartTime int64
	Duration  int64
}

// Events reads page_stat_data rows for a book ordered by start time.
func Events(t testing.TB, path string, bookID int64) []Row {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	rows, err := db.Query(`SELECT id_book, page, start_time, duration FROM page_stat_data WHERE id_book = ? ORDER BY start_time, page`, bookID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	out := make([]Row, 0)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.BookID, &r.Page, &r.StartTime, &r.Duration); err != nil {
			t.Fatalf("scan event: %v", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate events: %v", err)
	}
	return out
}

// BookExists reports whether a book row with id is present.
func BookExists(t testing.TB, path string, id int64) bool {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM book WHERE id = ?`, id).Scan(&n); err != nil {
		t.Fatalf("count book: %v", err)
	}
	return n > 0
}
