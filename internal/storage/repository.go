package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"depenses/internal/core"
)

// Fixed width so that lexical order matches chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const expenseColumns = `id, amount, currency, label, date, remark, balance_status, balance_amount, created_at, updated_at`

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return Unavailable("ping sqlite", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY day DESC, created_at DESC`)
	if err != nil {
		return nil, sqliteErr("list expenses", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("iterate expenses", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Expense, error) {
	return getExpense(ctx, r.db, id)
}

func (r *SQLiteRepository) Create(ctx context.Context, e core.Expense) (core.Expense, error) {
	e = e.Normalize()
	now := r.now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, amount, currency, label, day, date, remark,
			balance_status, balance_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Amount, string(e.Currency), e.Label, core.DayKey(e.Date), formatTime(e.Date),
		e.Remark, string(e.BalanceStatus), e.BalanceAmount, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return core.Expense{}, sqliteErr("create expense", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"label", e.Label,
		"amount", e.Amount)
	return e, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, sqliteErr("begin update", err)
	}
	defer tx.Rollback()

	current, err := getExpense(ctx, tx, id)
	if err != nil {
		return core.Expense{}, err
	}
	next := u.Apply(current)
	next.UpdatedAt = r.now().UTC()
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}
	if err := next.Validate(); err != nil {
		return core.Expense{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE expenses SET amount = ?, currency = ?, label = ?, day = ?, date = ?, remark = ?,
			balance_status = ?, balance_amount = ?, updated_at = ?, version = version + 1
		WHERE id = ?`,
		next.Amount, string(next.Currency), next.Label, core.DayKey(next.Date), formatTime(next.Date),
		next.Remark, string(next.BalanceStatus), next.BalanceAmount, formatTime(next.UpdatedAt), id)
	if err != nil {
		return core.Expense{}, sqliteErr("update expense", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, sqliteErr("commit update", err)
	}
	return next, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return false, sqliteErr("delete expense", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, sqliteErr("delete expense", err)
	}
	return n > 0, nil
}

// RenameLabel runs as one statement, so either every matching row is
// relabelled or none is.
func (r *SQLiteRepository) RenameLabel(ctx context.Context, oldLabel, newLabel string) (int64, error) {
	from, to, noop, err := CheckRename(oldLabel, newLabel)
	if err != nil || noop {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET label = ?, updated_at = ?, version = version + 1 WHERE label = ?`,
		to, formatTime(r.now().UTC()), from)
	if err != nil {
		return 0, sqliteErr("rename label", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqliteErr("rename label", err)
	}
	slog.InfoContext(ctx, "Label renamed", "from", from, "to", to, "count", n)
	return n, nil
}

func (r *SQLiteRepository) DeleteByLabel(ctx context.Context, label string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE label = ?`, label)
	if err != nil {
		return 0, sqliteErr("delete by label", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqliteErr("delete by label", err)
	}
	slog.InfoContext(ctx, "Label deleted", "label", label, "count", n)
	return n, nil
}

func (r *SQLiteRepository) Labels(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT label FROM expenses ORDER BY label`)
	if err != nil {
		return nil, sqliteErr("list labels", err)
	}
	defer rows.Close()

	labels := make([]string, 0)
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr("list labels", err)
	}
	return labels, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getExpense(ctx context.Context, q queryer, id string) (core.Expense, error) {
	row := q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, sqliteErr("get expense "+id, err)
	}
	return e, nil
}

// sqliteErr wraps err for op. Connection, locking and I/O failures are marked
// core.ErrStoreUnavailable so callers can retry them.
func sqliteErr(op string, err error) error {
	if transient(err) {
		return Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func transient(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_FULL, sqlite3.SQLITE_READONLY:
			return true
		}
	}
	// database/sql does not export the error of a closed pool.
	return strings.Contains(err.Error(), "sql: database is closed")
}

func scanExpense(s scanner) (core.Expense, error) {
	var e core.Expense
	var currency, status, date, createdAt, updatedAt string
	if err := s.Scan(&e.ID, &e.Amount, &currency, &e.Label, &date, &e.Remark,
		&status, &e.BalanceAmount, &createdAt, &updatedAt); err != nil {
		return core.Expense{}, err
	}
	e.Currency = core.Currency(currency)
	e.BalanceStatus = core.BalanceStatus(status)

	var err error
	if e.Date, err = parseTime(date); err != nil {
		return core.Expense{}, fmt.Errorf("parse date: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Expense{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}
