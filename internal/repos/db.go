package repos

import (
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"productdesk/internal/domain"
)

// OpenDB connects, ensures the schema and, when seed is set, inserts the
// demo profiles and products. driver is "sqlite" or "pgx".
func OpenDB(driver, dsn string, seed bool) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one writer; also keeps ":memory:" a single database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if !seed {
		return db, nil
	}
	// Ensure users exist (idempotent; safe to run every start)
	if err := seedUsers(db); err != nil {
		return nil, fmt.Errorf("seed users: %w", err)
	}
	if err := seedIfEmpty(db); err != nil {
		return nil, fmt.Errorf("seed products: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'viewer' CHECK (role IN ('viewer','admin')),
  created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_email ON profiles(LOWER(email));

CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,               -- same value as the 'sid' cookie
  user_id TEXT NULL REFERENCES profiles(id) ON DELETE SET NULL,
  created_at TEXT NOT NULL,
  last_seen  TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  price NUMERIC NOT NULL CHECK (price >= 0),
  status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft','published')),
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  locked_by TEXT NULL,
  locked_at TEXT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at);
CREATE INDEX IF NOT EXISTS idx_products_locked_at  ON products(locked_at);

CREATE TABLE IF NOT EXISTS product_versions(
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  price NUMERIC NOT NULL,
  status TEXT NOT NULL,
  saved_by TEXT NOT NULL,
  saved_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_versions_product ON product_versions(product_id, saved_at);
`

func ensureSchema(db *sqlx.DB) error {
	if db.DriverName() == "sqlite" {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
			return err
		}
	}
	_, err := db.Exec(schema)
	return err
}

// seedUsers ensures two admins and one viewer exist (idempotent).
func seedUsers(db *sqlx.DB) error {
	type u struct {
		ID, Email, Role, Hash string
	}
	mk := func(id, email, role, raw string) u {
		h, _ := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		return u{ID: id, Email: email, Role: role, Hash: string(h)}
	}

	users := []u{
		mk("u-admin", "admin@productdesk.test", "admin", "Passw0rd!"),
		mk("u-editor", "editor@productdesk.test", "admin", "Passw0rd!"),
		mk("u-viewer", "viewer@productdesk.test", "viewer", "Passw0rd!"),
	}
	now := domain.FormatTime(time.Now())

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	for _, x := range users {
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO profiles(id,email,password_hash,role,created_at)
			VALUES(?,?,?,?,?)
			ON CONFLICT(email) DO NOTHING
		`), x.ID, x.Email, x.Hash, x.Role, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo products")

	now := time.Now()
	rows := []domain.Product{
		{ID: "p-lamp", Title: "Desk Lamp", Price: decimal.RequireFromString("349.00"), Status: domain.StatusPublished},
		{ID: "p-chair", Title: "Office Chair", Price: decimal.RequireFromString("1299.50"), Status: domain.StatusDraft},
		{ID: "p-mug", Title: "Coffee Mug", Price: decimal.RequireFromString("79.90"), Status: domain.StatusPublished},
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()
	for i, p := range rows {
		ts := domain.FormatTime(now.Add(time.Duration(i) * time.Millisecond))
		if _, err := tx.Exec(tx.Rebind(`
			INSERT INTO products(id,title,price,status,created_at,updated_at)
			VALUES(?,?,?,?,?,?)
		`), p.ID, p.Title, p.Price, p.Status, ts, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}
