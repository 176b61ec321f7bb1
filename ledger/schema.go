package ledger

// SQLiteSchema is applied by NewSQLite. Money is stored as decimal text so
// no value ever passes through a float.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id TEXT PRIMARY KEY,
	cash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES accounts(user_id),
	seq INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL CHECK (action IN ('BUY', 'SELL')),
	price TEXT NOT NULL,
	shares INTEGER NOT NULL CHECK (shares > 0),
	total TEXT NOT NULL,
	executed_at DATETIME NOT NULL,
	UNIQUE (user_id, seq)
);

CREATE TABLE IF NOT EXISTS holdings (
	user_id TEXT NOT NULL REFERENCES accounts(user_id),
	symbol TEXT NOT NULL,
	shares INTEGER NOT NULL CHECK (shares > 0),
	PRIMARY KEY (user_id, symbol)
);
`

// PostgresSchema is applied by NewPostgres.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id TEXT PRIMARY KEY,
	cash NUMERIC NOT NULL CHECK (cash >= 0),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES accounts(user_id),
	seq BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL CHECK (action IN ('BUY', 'SELL')),
	price NUMERIC NOT NULL,
	shares BIGINT NOT NULL CHECK (shares > 0),
	total NUMERIC NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, seq)
);

CREATE TABLE IF NOT EXISTS holdings (
	user_id TEXT NOT NULL REFERENCES accounts(user_id),
	symbol TEXT NOT NULL,
	shares BIGINT NOT NULL CHECK (shares > 0),
	PRIMARY KEY (user_id, symbol)
);
`
