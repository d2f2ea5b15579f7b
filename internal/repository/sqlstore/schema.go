// internal/repository/sqlstore/schema.go
package sqlstore

// Postgres keeps amounts as NUMERIC. SQLite keeps them as TEXT so the decimal
// strings round-trip exactly; nothing sums them in SQL.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS point_accounts (
		id               UUID PRIMARY KEY,
		owner            TEXT NOT NULL UNIQUE,
		balance          NUMERIC(20, 4) NOT NULL DEFAULT 0,
		lifetime_earned  NUMERIC(20, 4) NOT NULL DEFAULT 0,
		lifetime_spent   NUMERIC(20, 4) NOT NULL DEFAULT 0,
		last_activity_at TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS point_transactions (
		id               UUID PRIMARY KEY,
		account_id       UUID NOT NULL REFERENCES point_accounts(id),
		owner            TEXT NOT NULL,
		delta            NUMERIC(20, 4) NOT NULL,
		reason           TEXT NOT NULL,
		reference_id     TEXT,
		description      TEXT,
		transaction_date TIMESTAMPTZ NOT NULL,
		expires_at       TIMESTAMPTZ,
		reversed         BOOLEAN NOT NULL DEFAULT FALSE,
		reversal_of      UUID UNIQUE REFERENCES point_transactions(id),
		reversal_reason  TEXT,
		reversed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_point_tx_owner_date ON point_transactions(owner, transaction_date)`,
	`CREATE INDEX IF NOT EXISTS idx_point_tx_expiry ON point_transactions(expires_at, id)
		WHERE reversed = FALSE AND reversal_of IS NULL AND expires_at IS NOT NULL`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS point_accounts (
		id               TEXT PRIMARY KEY,
		owner            TEXT NOT NULL UNIQUE,
		balance          TEXT NOT NULL DEFAULT '0',
		lifetime_earned  TEXT NOT NULL DEFAULT '0',
		lifetime_spent   TEXT NOT NULL DEFAULT '0',
		last_activity_at DATETIME,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS point_transactions (
		id               TEXT PRIMARY KEY,
		account_id       TEXT NOT NULL REFERENCES point_accounts(id),
		owner            TEXT NOT NULL,
		delta            TEXT NOT NULL,
		reason           TEXT NOT NULL,
		reference_id     TEXT,
		description      TEXT,
		transaction_date DATETIME NOT NULL,
		expires_at       DATETIME,
		reversed         BOOLEAN NOT NULL DEFAULT 0,
		reversal_of      TEXT UNIQUE REFERENCES point_transactions(id),
		reversal_reason  TEXT,
		reversed_at      DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_point_tx_owner_date ON point_transactions(owner, transaction_date)`,
	`CREATE INDEX IF NOT EXISTS idx_point_tx_expiry ON point_transactions(expires_at, id)
		WHERE reversed = 0 AND reversal_of IS NULL AND expires_at IS NOT NULL`,
}
