package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore keeps the ledger in PostgreSQL. Each InTx locks the touched
// account row with SELECT ... FOR UPDATE before reading balances. View uses a
// read-only repeatable-read snapshot and locks nothing.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	s, err := NewPostgresFromPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresFromPool uses an existing pool. Close closes the pool.
func NewPostgresFromPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return mapPgErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgErr(err)
	}
	return nil
}

func (s *PostgresStore) View(ctx context.Context, fn func(Reader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return mapPgErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgView{q: tx}); err != nil {
		return err
	}
	return mapPgErr(tx.Commit(ctx))
}

func (s *PostgresStore) CreateAccount(ctx context.Context, userID string, cash decimal.Decimal) (Account, error) {
	if userID == "" {
		return Account{}, fmt.Errorf("create account: user id is required")
	}
	if cash.IsNegative() {
		return Account{}, fmt.Errorf("create account: %w", ErrNegativeCash)
	}

	acct := Account{UserID: userID, Cash: cash, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, cash, created_at) VALUES ($1, $2::numeric, $3)`,
		acct.UserID, acct.Cash.String(), acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, fmt.Errorf("create account %q: %w", userID, ErrAccountExists)
		}
		return Account{}, mapPgErr(err)
	}
	return acct, nil
}

func (s *PostgresStore) Account(ctx context.Context, userID string) (Account, error) {
	return pgAccount(ctx, s.pool, userID, false)
}

func (s *PostgresStore) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	return pgHolding(ctx, s.pool, userID, symbol)
}

func (s *PostgresStore) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	return pgHoldings(ctx, s.pool, userID)
}

func (s *PostgresStore) History(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, seq, symbol, action, price::text, shares, total::text, executed_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY executed_at ASC, seq ASC`, userID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var action, priceStr, totalStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Seq, &e.Symbol, &action, &priceStr, &e.Shares, &totalStr, &e.Time); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		if e.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if e.Total, err = decimal.NewFromString(totalStr); err != nil {
			return nil, fmt.Errorf("parse total: %w", err)
		}
		e.Time = e.Time.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr(err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgAccount(ctx context.Context, q pgQuerier, userID string, forUpdate bool) (Account, error) {
	query := `SELECT user_id, cash::text, created_at FROM accounts WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var acct Account
	var cashStr string
	if err := q.QueryRow(ctx, query, userID).Scan(&acct.UserID, &cashStr, &acct.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
		}
		return Account{}, mapPgErr(err)
	}
	cash, err := decimal.NewFromString(cashStr)
	if err != nil {
		return Account{}, fmt.Errorf("parse cash: %w", err)
	}
	acct.Cash = cash
	acct.CreatedAt = acct.CreatedAt.UTC()
	return acct, nil
}

func pgHolding(ctx context.Context, q pgQuerier, userID, symbol string) (Holding, bool, error) {
	h := Holding{UserID: userID, Symbol: symbol}
	err := q.QueryRow(ctx,
		`SELECT shares FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol).
		Scan(&h.Shares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Holding{}, false, nil
		}
		return Holding{}, false, mapPgErr(err)
	}
	return h, true, nil
}

func pgHoldings(ctx context.Context, q pgQuerier, userID string) ([]Holding, error) {
	rows, err := q.Query(ctx,
		`SELECT symbol, shares FROM holdings WHERE user_id = $1 ORDER BY symbol ASC`, userID)
	if err != nil {
		return nil, mapPgErr(err)
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
		return nil, mapPgErr(err)
	}
	return out, nil
}

type pgView struct {
	q pgQuerier
}

func (v *pgView) Account(ctx context.Context, userID string) (Account, error) {
	return pgAccount(ctx, v.q, userID, false)
}

func (v *pgView) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	return pgHolding(ctx, v.q, userID, symbol)
}

func (v *pgView) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	return pgHoldings(ctx, v.q, userID)
}

type pgTx struct {
	tx pgx.Tx
}

// Account locks the row for the rest of the transaction.
func (t *pgTx) Account(ctx context.Context, userID string) (Account, error) {
	return pgAccount(ctx, t.tx, userID, true)
}

func (t *pgTx) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	return pgHolding(ctx, t.tx, userID, symbol)
}

func (t *pgTx) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	return pgHoldings(ctx, t.tx, userID)
}

func (t *pgTx) SetCash(ctx context.Context, userID string, cash decimal.Decimal) error {
	if cash.IsNegative() {
		return fmt.Errorf("set cash %s: %w", cash, ErrNegativeCash)
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET cash = $1::numeric WHERE user_id = $2`, cash.String(), userID)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
	}
	return nil
}

func (t *pgTx) PutHolding(ctx context.Context, h Holding) error {
	if err := validateHolding(h); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO holdings (user_id, symbol, shares) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, symbol) DO UPDATE SET shares = EXCLUDED.shares`,
		h.UserID, h.Symbol, h.Shares)
	return mapPgErr(err)
}

func (t *pgTx) DeleteHolding(ctx context.Context, userID, symbol string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return mapPgErr(err)
}

func (t *pgTx) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := validateEntry(e); err != nil {
		return Entry{}, err
	}

	var lastSeq int64
	var lastTime time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT seq, executed_at FROM ledger_entries
		WHERE user_id = $1 ORDER BY seq DESC LIMIT 1`, e.UserID).
		Scan(&lastSeq, &lastTime)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, mapPgErr(err)
	}

	e = nextEntry(e, lastSeq, lastTime.UTC())
	_, err = t.tx.Exec(ctx, `
		INSERT INTO ledger_entries
		(id, user_id, seq, symbol, action, price, shares, total, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9)`,
		e.ID, e.UserID, e.Seq, e.Symbol, string(e.Action),
		e.Price.String(), e.Shares, e.Total.String(), e.Time,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Entry{}, fmt.Errorf("%w: %q", ErrAccountNotFound, e.UserID)
		}
		return Entry{}, mapPgErr(err)
	}
	return e, nil
}

// mapPgErr turns serialization failures, deadlocks and lock timeouts into
// ErrConflict.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
