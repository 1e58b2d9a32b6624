// Package engine manages the embedded DuckDB instance backing a session:
// opening the database, installing extensions, and storage secrets.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Open opens an in-process DuckDB database. An empty path opens an
// in-memory database, which is the default for a local session.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// InstallExtensions installs and loads the DuckDB extensions the session
// relies on. httpfs enables reading CSV/Parquet over http(s) and s3.
// Safe to call repeatedly; a failure here disables remote sources but does
// not prevent local work, so callers typically log and continue.
func InstallExtensions(ctx context.Context, db *sql.DB) error {
	extensions := []string{
		"INSTALL httpfs; LOAD httpfs;",
	}
	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("extension setup (%s): %w", ext, err)
		}
	}
	return nil
}

// CreateS3Secret creates a named DuckDB secret so httpfs can read
// s3:// URIs directly against an S3-compatible endpoint.
func CreateS3Secret(ctx context.Context, db *sql.DB, name, keyID, secret, endpoint, region string) error {
	secretSQL, err := buildS3SecretDDL(name, keyID, secret, endpoint, region)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, secretSQL); err != nil {
		return fmt.Errorf("create S3 secret %q: %w", name, err)
	}
	return nil
}

// DropS3Secret removes a named DuckDB secret. Missing secrets are ignored.
func DropS3Secret(ctx context.Context, db *sql.DB, name string) error {
	if err := validIdentifier(name); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP SECRET IF EXISTS %s", name)); err != nil {
		return fmt.Errorf("drop S3 secret %q: %w", name, err)
	}
	return nil
}

// buildS3SecretDDL renders the CREATE SECRET statement. All values are
// single-quote escaped; the name must be a bare identifier.
func buildS3SecretDDL(name, keyID, secret, endpoint, region string) (string, error) {
	if err := validIdentifier(name); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		`CREATE OR REPLACE SECRET %s (
    TYPE S3,
    KEY_ID %s,
    SECRET %s,
    ENDPOINT %s,
    REGION %s,
    URL_STYLE 'path'
)`,
		name,
		quoteLiteral(keyID), quoteLiteral(secret), quoteLiteral(endpoint), quoteLiteral(region),
	), nil
}

// validIdentifier checks that s is a safe bare SQL identifier.
func validIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("empty identifier")
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("invalid identifier %q: cannot start with a digit", s)
			}
		default:
			return fmt.Errorf("invalid identifier %q: character %q not allowed", s, r)
		}
	}
	return nil
}

// quoteLiteral single-quotes a SQL string literal, doubling embedded quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
