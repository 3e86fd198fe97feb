// Package store provides the durable credential store backends. Both keep
// whole records as JSON documents keyed by label, matching the key-value
// semantics the rest of the gateway assumes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/gagmm/claude-code-to-openai/internal/credential"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	label TEXT PRIMARY KEY,
	doc   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS usage_stats (
	id  INTEGER PRIMARY KEY CHECK (id = 1),
	doc TEXT NOT NULL
);
`

// SQLiteStore keeps credential documents in a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(ctx context.Context, label string) (*credential.Credential, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM credentials WHERE label = ?`, label).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return decodeCredential([]byte(doc))
}

func (s *SQLiteStore) Put(ctx context.Context, cred *credential.Credential) error {
	if err := cred.Normalize(); err != nil {
		return err
	}
	doc, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (label, doc) VALUES (?, ?)
		 ON CONFLICT(label) DO UPDATE SET doc = excluded.doc`,
		cred.Label, string(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, label string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE label = ?`, label); err != nil {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*credential.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM credentials ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*credential.Credential
	for rows.Next() {
		var doc string
		if err = rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
		}
		cred, errDecode := decodeCredential([]byte(doc))
		if errDecode != nil {
			continue // skip corrupt documents rather than failing the pool
		}
		out = append(out, cred)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return out, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*credential.UsageStats, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM usage_stats WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return &credential.UsageStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	stats := &credential.UsageStats{}
	if err = json.Unmarshal([]byte(doc), stats); err != nil {
		return &credential.UsageStats{}, nil
	}
	return stats, nil
}

func (s *SQLiteStore) PutStats(ctx context.Context, stats *credential.UsageStats) error {
	doc, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO usage_stats (id, doc) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		string(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", credential.ErrUnavailable, err)
	}
	return nil
}

func decodeCredential(doc []byte) (*credential.Credential, error) {
	cred := &credential.Credential{}
	if err := json.Unmarshal(doc, cred); err != nil {
		return nil, err
	}
	if err := cred.Normalize(); err != nil {
		return nil, err
	}
	return cred, nil
}
