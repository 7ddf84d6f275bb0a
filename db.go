package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// dialect captures the few places MySQL and Postgres disagree.
type dialect int

const (
	dialectMySQL dialect = iota
	dialectPostgres
)

func dialectFor(driver string) dialect {
	if driver == "pgx" {
		return dialectPostgres
	}
	return dialectMySQL
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d dialect) rebind(q string) string {
	if d != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// openDB connects and pings, leaving the pool ready for the stores.
func openDB(cfg Config) (*sql.DB, dialect, error) {
	d := dialectFor(cfg.DBDriver)
	dsn := cfg.DSN
	if d == dialectMySQL {
		var err error
		if dsn, err = normalizeMySQLDSN(dsn, cfg.TiDBCA); err != nil {
			return nil, d, err
		}
	}
	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, d, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, d, fmt.Errorf("ping db: %w", err)
	}
	return db, d, nil
}

// normalizeMySQLDSN turns on parseTime and registers the "tidb" TLS config
// when the DSN asks for it.
func normalizeMySQLDSN(dsn, caPath string) (string, error) {
	// must be registered before ParseDSN resolves the name
	if strings.Contains(dsn, "tls=tidb") {
		registerTiDBTLS(caPath)
	}
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse MYSQL_DSN: %w", err)
	}
	c.ParseTime = true
	return c.FormatDSN(), nil
}

func registerTiDBTLS(caPath string) {
	pool := x509.NewCertPool()
	b, err := os.ReadFile(caPath)
	if err == nil && pool.AppendCertsFromPEM(b) {
		_ = mysql.RegisterTLSConfig("tidb", &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
		return
	}
	// fallback to InsecureSkipVerify if certs can't be read
	log.Printf("warning: could not load CA file %s (%v), falling back to InsecureSkipVerify", caPath, err)
	_ = mysql.RegisterTLSConfig("tidb", &tls.Config{InsecureSkipVerify: true})
}

// ensureSchema creates the necessary tables if they don't exist.
func ensureSchema(ctx context.Context, db *sql.DB, d dialect) error {
	ts := "TIMESTAMP"
	if d == dialectPostgres {
		ts = "TIMESTAMPTZ"
	}

	products := `CREATE TABLE IF NOT EXISTS products (
        id VARCHAR(36) PRIMARY KEY,
        title VARCHAR(255) NOT NULL,
        description TEXT,
        size VARCHAR(255),
        technique VARCHAR(255) NULL,
        price DECIMAL(12,2) NOT NULL DEFAULT 0.00,
        image_url TEXT,
        image_public_id VARCHAR(255) NULL,
        sort_order INT NOT NULL DEFAULT 0,
        is_sold BOOLEAN NOT NULL DEFAULT FALSE,
        is_published BOOLEAN NOT NULL DEFAULT TRUE,
        created_at ` + ts + ` NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at ` + ts + ` NOT NULL DEFAULT CURRENT_TIMESTAMP`
	if d == dialectMySQL {
		products += `,
        INDEX idx_products_partition (is_sold, sort_order)`
	}
	products += `
    )`

	// settings table for site branding (single row, id = site-settings)
	settings := `CREATE TABLE IF NOT EXISTS settings (
        id VARCHAR(32) PRIMARY KEY,
        logo_url TEXT NULL,
        logo_public_id VARCHAR(255) NULL,
        logo_text VARCHAR(255) NULL,
        show_both BOOLEAN NULL`
	for _, col := range typographyColumns {
		settings += ",\n        " + col.column + " VARCHAR(32) NULL"
	}
	settings += `,
        updated_at ` + ts + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`

	stmts := []string{products, settings}
	if d == dialectPostgres {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_products_partition ON products (is_sold, sort_order)`)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
