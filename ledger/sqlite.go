package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteStore keeps the ledger in a SQLite database. Transactions start with
// BEGIN IMMEDIATE, so two writers never both read before either writes. The
// database runs in WAL mode, so View's deferred read transactions neither
// block writers nor wait for them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(path string) string {
	params := "_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_loc=UTC"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLiteErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapSQLiteErr(err)
	}
	committed = true
	return nil
}

// View reads inside a plain (deferred) BEGIN on a dedicated connection. The
// driver's BeginTx would use the DSN's BEGIN IMMEDIATE and take the write lock.
func (s *SQLiteStore) View(ctx context.Context, fn func(Reader) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return mapSQLiteErr(err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN DEFERRED"); err != nil {
		return mapSQLiteErr(err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
			// never hand a connection still inside a transaction back to the pool
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	return fn(&sqliteView{q: conn})
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, userID string, cash decimal.Decimal) (Account, error) {
	if userID == "" {
		return Account{}, fmt.Errorf("create account: user id is required")
	}
	if cash.IsNegative() {
		return Account{}, fmt.Errorf("create account: %w", ErrNegativeCash)
	}

	acct := Account{UserID: userID, Cash: cash, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, cash, created_at) VALUES (?, ?, ?)`,
		acct.UserID, acct.Cash.String(), acct.CreatedAt)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return Account{}, fmt.Errorf("create account %q: %w", userID, ErrAccountExists)
		}
		return Account{}, mapSQLiteErr(err)
	}
	return acct, nil
}

func (s *SQLiteStore) Account(ctx context.Context, userID string) (Account, error) {
	return sqliteAccount(ctx, s.db, userID)
}

func (s *SQLiteStore) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	return sqliteHolding(ctx, s.db, userID, symbol)
}

func (s *SQLiteStore) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	return sqliteHoldings(ctx, s.db, userID)
}

func (s *SQLiteStore) History(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, seq, symbol, action, price, shares, total, executed_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY executed_at ASC, seq ASC`, userID)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Seq,
			&e.Symbol,
			&e.Action,
			&e.Price,
			&e.Shares,
			&e.Total,
			&e.Time,
		); err != nil {
			return nil, err
		}
		e.Time = e.Time.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteErr(err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is the part of *sql.DB, *sql.Conn and *sql.Tx the readers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteAccount(ctx context.Context, q querier, userID string) (Account, error) {
	var acct Account
	err := q.QueryRowContext(ctx,
		`SELECT user_id, cash, created_at FROM accounts WHERE user_id = ?`, userID).
		Scan(&acct.UserID, &acct.Cash, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
		}
		return Account{}, mapSQLiteErr(err)
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	return acct, nil
}

func sqliteHolding(ctx context.Context, q querier, userID, symbol string) (Holding, bool, error) {
	h := Holding{UserID: userID, Symbol: symbol}
	err := q.QueryRowContext(ctx,
		`SELECT shares FROM holdings WHERE user_id = ? AND symbol = ?`, userID, symbol).
		Scan(&h.Shares)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Holding{}, false, nil
		}
		return Holding{}, false, mapSQLiteErr(err)
	}
	return h, true, nil
}

func sqliteHoldings(ctx context.Context, q querier, userID string) ([]Holding, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT symbol, shares FROM holdings WHERE user_id = ? ORDER BY symbol ASC`, userID)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	defer rows.Close()

	out := []Holding{}
	for rows.Next() {
		h := Holding{UserID: userID}
		if err := rows.Scan(&h.Symbol, &h.Shares); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteErr(err)
	}
	return out, nil
}

type sqliteView struct {
	q querier
}

func (v *sqliteView) Account(ctx context.Context, userID string) (Account, error) {
	return sqliteAccount(ctx, v.q, userID)
}

func (v *sqliteView) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	return sqliteHolding(ctx, v.q, userID, symbol)
}

func (v *sqliteView) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	return sqliteHoldings(ctx, v.q, userID)
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Account(ctx context.Context, userID string) (Account, error) {
	return sqliteAccount(ctx, t.tx, userID)
}

func (t *sqliteTx) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	return sqliteHolding(ctx, t.tx, userID, symbol)
}

func (t *sqliteTx) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	return sqliteHoldings(ctx, t.tx, userID)
}

func (t *sqliteTx) SetCash(ctx context.Context, userID string, cash decimal.Decimal) error {
	if cash.IsNegative() {
		return fmt.Errorf("set cash %s: %w", cash, ErrNegativeCash)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET cash = ? WHERE user_id = ?`, cash.String(), userID)
	if err != nil {
		return mapSQLiteErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
	}
	return nil
}

func (t *sqliteTx) PutHolding(ctx context.Context, h Holding) error {
	if err := validateHolding(h); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO holdings (user_id, symbol, shares) VALUES (?, ?, ?)
		ON CONFLICT (user_id, symbol) DO UPDATE SET shares = excluded.shares`,
		h.UserID, h.Symbol, h.Shares)
	return mapSQLiteErr(err)
}

func (t *sqliteTx) DeleteHolding(ctx context.Context, userID, symbol string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM holdings WHERE user_id = ? AND symbol = ?`, userID, symbol)
	return mapSQLiteErr(err)
}

func (t *sqliteTx) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := validateEntry(e); err != nil {
		return Entry{}, err
	}

	var lastSeq int64
	var lastTime time.Time
	err := t.tx.QueryRowContext(ctx, `
		SELECT seq, executed_at FROM ledger_entries
		WHERE user_id = ? ORDER BY seq DESC LIMIT 1`, e.UserID).
		Scan(&lastSeq, &lastTime)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, mapSQLiteErr(err)
	}

	e = nextEntry(e, lastSeq, lastTime)
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, user_id, seq, symbol, action, price, shares, total, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Seq, e.Symbol, string(e.Action),
		e.Price.String(), e.Shares, e.Total.String(), e.Time,
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return Entry{}, fmt.Errorf("%w: %q", ErrAccountNotFound, e.UserID)
		}
		return Entry{}, mapSQLiteErr(err)
	}
	return e, nil
}

// mapSQLiteErr turns busy/locked errors into ErrConflict.
func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

var _ Store = (*SQLiteStore)(nil)
