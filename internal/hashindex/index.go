// Package hashindex persists per-file content hashes between runs so that
// incremental runs only re-read files that changed.
package hashindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the index file name inside the cache directory.
const FileName = "file-hashes.db"

const schemaSQL = `CREATE TABLE IF NOT EXISTS file_hashes (
    package TEXT NOT NULL,
    path TEXT NOT NULL,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    mod_time INTEGER NOT NULL,
    PRIMARY KEY (package, path)
);`

// FileRecord is the stored state of one file.
type FileRecord struct {
	Hash string
	// Size and ModTime (Unix nanoseconds) identify the file state the hash was
	// computed from.
	Size    int64
	ModTime int64
}

// Matches reports whether the record was computed from a file with the given stat.
func (r FileRecord) Matches(size, modTime int64) bool {
	return r.Size == size && r.ModTime == modTime
}

// Index is a SQLite-backed store of file hashes keyed by package and
// package-relative path.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the index at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Workers save concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing hash index: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Load returns the stored records for a package. A package that was never
// saved yields an empty map.
func (i *Index) Load(ctx context.Context, pkg string) (map[string]FileRecord, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT path, hash, size, mod_time FROM file_hashes WHERE package = ?`, pkg)
	if err != nil {
		return nil, fmt.Errorf("loading hashes for %q: %w", pkg, err)
	}
	defer rows.Close()

	records := make(map[string]FileRecord)
	for rows.Next() {
		var path string
		var rec FileRecord
		if err := rows.Scan(&path, &rec.Hash, &rec.Size, &rec.ModTime); err != nil {
			return nil, err
		}
		records[path] = rec
	}
	return records, rows.Err()
}

// Save replaces the stored records for a package.
func (i *Index) Save(ctx context.Context, pkg string, records map[string]FileRecord) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_hashes WHERE package = ?`, pkg); err != nil {
		return fmt.Errorf("saving hashes for %q: %w", pkg, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_hashes (package, path, hash, size, mod_time) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for path, rec := range records {
		if _, err := stmt.ExecContext(ctx, pkg, path, rec.Hash, rec.Size, rec.ModTime); err != nil {
			return fmt.Errorf("saving hashes for %q: %w", pkg, err)
		}
	}
	return tx.Commit()
}
