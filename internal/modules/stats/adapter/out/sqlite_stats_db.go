package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"komerge/internal/modules/stats/domain"
	statsout "komerge/internal/modules/stats/port/out"
	apperrors "komerge/internal/platform/errors"

	_ "modernc.org/sqlite"
)

var (
	requiredTables      = []string{"book", "page_stat_data"}
	requiredBookColumns = []string{"id", "title", "md5", "total_read_time"}
	requiredStatColumns = []string{"id_book", "page", "start_time", "duration"}
)

type SQLiteOpener struct{}

func NewSQLiteOpener() statsout.Opener {
	return SQLiteOpener{}
}

func (SQLiteOpener) Open(ctx context.Context, path string) (statsout.Database, error) {
	return OpenSQLite(ctx, path)
}

// SQLiteStatsDB reads and rewrites a KOReader statistics database.
type SQLiteStatsDB struct {
	db       *sql.DB
	path     string
	bookCols map[string]struct{}
	statCols map[string]struct{}
}

// OpenSQLite opens an existing file; it never creates one, so a file removed by
// the cleanup sweep surfaces as ErrFileMissing instead of an empty database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStatsDB, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrFileMissing, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", apperrors.ErrIOFailure, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", apperrors.ErrInvalidDatabase, path)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStatsDB{db: db, path: path}
	if err := s.loadColumns(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStatsDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteStatsDB) loadColumns(ctx context.Context) error {
	var err error
	if s.bookCols, err = s.tableColumns(ctx, "book"); err != nil {
		return err
	}
	if s.statCols, err = s.tableColumns(ctx, "page_stat_data"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStatsDB) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s columns: %v", apperrors.ErrInvalidDatabase, table, err)
	}
	defer rows.Close()
	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan %s columns: %v", apperrors.ErrInvalidDatabase, table, err)
		}
		cols[strings.ToLower(name)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s columns: %v", apperrors.ErrInvalidDatabase, table, err)
	}
	return cols, nil
}

func (s *SQLiteStatsDB) Validate(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidDatabase, err)
	}
	defer rows.Close()
	tables := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInvalidDatabase, err)
		}
		tables[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidDatabase, err)
	}
	if missing := missingKeys(tables, requiredTables); len(missing) > 0 {
		return fmt.Errorf("%w: missing tables %s", apperrors.ErrInvalidDatabase, strings.Join(missing, ", "))
	}
	if missing := missingKeys(s.bookCols, requiredBookColumns); len(missing) > 0 {
		return fmt.Errorf("%w: book table missing columns %s", apperrors.ErrInvalidDatabase, strings.Join(missing, ", "))
	}
	if missing := missingKeys(s.statCols, requiredStatColumns); len(missing) > 0 {
		return fmt.Errorf("%w: page_stat_data table missing columns %s", apperrors.ErrInvalidDatabase, strings.Join(missing, ", "))
	}
	return nil
}

func (s *SQLiteStatsDB) ListBooks(ctx context.Context) ([]domain.Book, error) {
	cols := []string{"id", "title", "md5", "total_read_time"}
	hasAuthors := s.hasBookColumn("authors")
	hasSeries := s.hasBookColumn("series")
	hasPages := s.hasBookColumn("total_read_pages")
	if hasAuthors {
		cols = append(cols, "authors")
	}
	if hasSeries {
		cols = append(cols, "series")
	}
	if hasPages {
		cols = append(cols, "total_read_pages")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(cols, ", ")+` FROM book ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Book, 0)
	for rows.Next() {
		var (
			id                    int64
			title, md5            sql.NullString
			totalTime, totalPages sql.NullInt64
			authors, series       sql.NullString
		)
		dest := []any{&id, &title, &md5, &totalTime}
		if hasAuthors {
			dest = append(dest, &authors)
		}
		if hasSeries {
			dest = append(dest, &series)
		}
		if hasPages {
			dest = append(dest, &totalPages)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		book := domain.Book{
			ID:          id,
			Title:       title.String,
			Authors:     authors.String,
			Series:      series.String,
			Fingerprint: md5.String,
			TotalTime:   totalTime.Int64,
			TotalPages:  totalPages.Int64,
		}
		if !hasAuthors || strings.TrimSpace(book.Authors) == "" {
			book.Authors = domain.UnknownAuthor
		}
		out = append(out, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return out, nil
}

func (s *SQLiteStatsDB) BookIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM book ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list book ids: %w", err)
	}
	defer rows.Close()
	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan book id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book ids: %w", err)
	}
	return out, nil
}

func (s *SQLiteStatsDB) Events(ctx context.Context, bookIDs []int64) (map[int64][]domain.Event, error) {
	out := make(map[int64][]domain.Event, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}
	pagesExpr := "0"
	if s.hasStatColumn("total_pages") {
		pagesExpr = "COALESCE(total_pages, 0)"
	}
	query := `SELECT id_book, page, start_time, duration, ` + pagesExpr + `
FROM page_stat_data
WHERE id_book IN (` + placeholders(len(bookIDs)) + `)
ORDER BY id_book, start_time, page`
	rows, err := s.db.QueryContext(ctx, query, int64Args(bookIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.BookID, &e.Page, &e.StartTime, &e.Duration, &e.TotalPages); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out[e.BookID] = append(out[e.BookID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *SQLiteStatsDB) Apply(ctx context.Context, plans []domain.Plan) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert := `INSERT INTO page_stat_data (id_book, page, start_time, duration) VALUES (?, ?, ?, ?)`
	withPages := s.hasStatColumn("total_pages")
	if withPages {
		insert = `INSERT INTO page_stat_data (id_book, page, start_time, duration, total_pages) VALUES (?, ?, ?, ?, ?)`
	}
	totals := `UPDATE book SET total_read_time = ? WHERE id = ?`
	withReadPages := s.hasBookColumn("total_read_pages")
	if withReadPages {
		totals = `UPDATE book SET total_read_time = ?, total_read_pages = ? WHERE id = ?`
	}

	for _, plan := range plans {
		ids := append([]int64{plan.KeepID}, plan.DeleteIDs...)
		if _, err = tx.ExecContext(ctx, `DELETE FROM page_stat_data WHERE id_book IN (`+placeholders(len(ids))+`)`, int64Args(ids)...); err != nil {
			return fmt.Errorf("clear events for book %d: %w", plan.KeepID, err)
		}
		for _, e := range plan.Events {
			args := []any{plan.KeepID, e.Page, e.StartTime, e.Duration}
			if withPages {
				args = append(args, e.TotalPages)
			}
			if _, err = tx.ExecContext(ctx, insert, args...); err != nil {
				return fmt.Errorf("insert event for book %d: %w", plan.KeepID, err)
			}
		}
		if len(plan.DeleteIDs) > 0 {
			var res sql.Result
			res, err = tx.ExecContext(ctx, `DELETE FROM book WHERE id IN (`+placeholders(len(plan.DeleteIDs))+`)`, int64Args(plan.DeleteIDs)...)
			if err != nil {
				return fmt.Errorf("delete merged books: %w", err)
			}
			if n, _ := res.RowsAffected(); n != int64(len(plan.DeleteIDs)) {
				err = fmt.Errorf("%w: expected to delete %d books for group %d, deleted %d", apperrors.ErrUnknownBook, len(plan.DeleteIDs), plan.KeepID, n)
				return err
			}
		}
		args := []any{plan.TotalTime, plan.KeepID}
		if withReadPages {
			args = []any{plan.TotalTime, plan.TotalPages, plan.KeepID}
		}
		var res sql.Result
		if res, err = tx.ExecContext(ctx, totals, args...); err != nil {
			return fmt.Errorf("update totals for book %d: %w", plan.KeepID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			err = fmt.Errorf("%w: keep book %d", apperrors.ErrUnknownBook, plan.KeepID)
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *SQLiteStatsDB) hasBookColumn(name string) bool {
	_, ok := s.bookCols[name]
	return ok
}

func (s *SQLiteStatsDB) hasStatColumn(name string) bool {
	_, ok := s.statCols[name]
	return ok
}

func missingKeys(set map[string]struct{}, want []string) []string {
	missing := make([]string, 0)
	for _, k := range want {
		if _, ok := set[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
