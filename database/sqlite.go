package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/voilenlp/voile/helper"
	"github.com/voilenlp/voile/model"
)

// sqliteSchema is the local mapping store layout. Original names are stored
// encrypted; lookups run on keyed hashes of the normalized keys so the table
// never needs decrypting to answer a query. The uniqueness constraint on
// full_key enforces one pseudonym per normalized full name.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    salt        BLOB NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mappings (
    id               TEXT PRIMARY KEY,
    entity_type      TEXT NOT NULL,
    full_key         BLOB NOT NULL UNIQUE,
    first_key        BLOB,
    last_key         BLOB,
    full_name        BLOB NOT NULL,
    pseudonym_full   TEXT NOT NULL,
    pseudonym_first  TEXT,
    pseudonym_last   TEXT,
    theme            TEXT NOT NULL,
    gender           TEXT,
    confidence       REAL,
    created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mappings_first_key ON mappings(first_key);
CREATE INDEX IF NOT EXISTS idx_mappings_last_key ON mappings(last_key);
`

// SQLiteStore is the default local mapping store: one encrypted SQLite file
// per project, file permissions 0600.
type SQLiteStore struct {
	db     *sql.DB
	cipher *Cipher
	logger *slog.Logger
}

// OpenSQLite opens or creates an encrypted local mapping store. The
// passphrase is stretched with argon2id using a per-file salt kept in the
// meta table.
func OpenSQLite(path string, passphrase []byte, logger *slog.Logger) (*SQLiteStore, error) {
	if len(passphrase) == 0 {
		return nil, helper.NewError("open sqlite store", fmt.Errorf("empty passphrase"))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, helper.NewError("create store directory", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, helper.NewError("open sqlite store", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, helper.NewError("apply schema", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, helper.NewError("set store permissions", err)
	}

	salt, err := loadOrCreateSalt(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	cipher, err := NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		db.Close()
		return nil, helper.NewError("initialize cipher", err)
	}

	logger.Info("Opened local mapping store", slog.String("path", path))

	return &SQLiteStore{db: db, cipher: cipher, logger: logger}, nil
}

func loadOrCreateSalt(db *sql.DB) ([]byte, error) {
	var salt []byte
	err := db.QueryRow(`SELECT salt FROM meta WHERE id = 1`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("read store salt", err)
	}

	salt, err = NewSalt()
	if err != nil {
		return nil, helper.NewError("create store salt", err)
	}
	_, err = db.Exec(`INSERT INTO meta (id, salt, created_at) VALUES (1, ?, ?)`, salt, time.Now().Unix())
	if err != nil {
		return nil, helper.NewError("persist store salt", err)
	}
	return salt, nil
}

const sqliteColumns = `id, entity_type, full_name, pseudonym_full, pseudonym_first, pseudonym_last, theme, gender, confidence, created_at`

// FindByFullKey returns the assignment whose normalized full name matches
func (s *SQLiteStore) FindByFullKey(ctx context.Context, fullKey string) (*model.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM mappings WHERE full_key = ?`,
		s.cipher.LookupHash(fullKey),
	)
	a, err := s.scan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	a.FullKey = fullKey
	return a, nil
}

// FindByComponent returns every assignment sharing a component key
func (s *SQLiteStore) FindByComponent(ctx context.Context, componentKey string, componentType ComponentType) ([]*model.Assignment, error) {
	if componentKey == "" {
		return nil, nil
	}

	column := "first_key"
	if componentType == ComponentLast {
		column = "last_key"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM mappings WHERE `+column+` = ?`,
		s.cipher.LookupHash(componentKey),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var assignments []*model.Assignment
	for rows.Next() {
		a, err := s.scan(rows.Scan)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}
	return assignments, nil
}

// Save persists a new assignment
func (s *SQLiteStore) Save(ctx context.Context, a *model.Assignment) (*model.Assignment, error) {
	prepared, encName, err := s.prepare(a)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mappings (id, entity_type, full_key, first_key, last_key, full_name,
			pseudonym_full, pseudonym_first, pseudonym_last, theme, gender, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		prepared.ID.String(), string(prepared.Type),
		s.cipher.LookupHash(prepared.FullKey), s.cipher.LookupHash(prepared.FirstKey), s.cipher.LookupHash(prepared.LastKey),
		encName,
		prepared.PseudonymFull, nullable(prepared.PseudonymFirst), nullable(prepared.PseudonymLast),
		prepared.Theme, nullable(string(prepared.Gender)), prepared.Confidence, prepared.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, helper.NewError("insert mapping", err)
	}
	return prepared, nil
}

// SaveBatch persists several assignments in one transaction
func (s *SQLiteStore) SaveBatch(ctx context.Context, as []*model.Assignment) ([]*model.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	saved := make([]*model.Assignment, 0, len(as))
	for _, a := range as {
		prepared, encName, err := s.prepare(a)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mappings (id, entity_type, full_key, first_key, last_key, full_name,
				pseudonym_full, pseudonym_first, pseudonym_last, theme, gender, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			prepared.ID.String(), string(prepared.Type),
			s.cipher.LookupHash(prepared.FullKey), s.cipher.LookupHash(prepared.FirstKey), s.cipher.LookupHash(prepared.LastKey),
			encName,
			prepared.PseudonymFull, nullable(prepared.PseudonymFirst), nullable(prepared.PseudonymLast),
			prepared.Theme, nullable(string(prepared.Gender)), prepared.Confidence, prepared.CreatedAt.UnixNano(),
		)
		if err != nil {
			return nil, helper.NewError("insert mapping", err)
		}
		saved = append(saved, prepared)
	}

	if err := tx.Commit(); err != nil {
		return nil, helper.NewError("commit transaction", err)
	}
	return saved, nil
}

// FindOrCreate atomically returns the existing assignment or persists the
// given one. SQLite serializes writers, so insert-then-reselect is safe
// across processes sharing the file.
func (s *SQLiteStore) FindOrCreate(ctx context.Context, a *model.Assignment) (*model.Assignment, bool, error) {
	prepared, encName, err := s.prepare(a)
	if err != nil {
		return nil, false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (id, entity_type, full_key, first_key, last_key, full_name,
			pseudonym_full, pseudonym_first, pseudonym_last, theme, gender, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_key) DO NOTHING`,
		prepared.ID.String(), string(prepared.Type),
		s.cipher.LookupHash(prepared.FullKey), s.cipher.LookupHash(prepared.FirstKey), s.cipher.LookupHash(prepared.LastKey),
		encName,
		prepared.PseudonymFull, nullable(prepared.PseudonymFirst), nullable(prepared.PseudonymLast),
		prepared.Theme, nullable(string(prepared.Gender)), prepared.Confidence, prepared.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, false, helper.NewError("find or create mapping", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, helper.NewError("rows affected", err)
	}
	if inserted == 1 {
		return prepared, true, nil
	}

	existing, err := s.FindByFullKey(ctx, prepared.FullKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// PseudonymComponents returns the pseudonym components already in use
func (s *SQLiteStore) PseudonymComponents(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pseudonym_full, pseudonym_first, pseudonym_last FROM mappings`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var full string
		var first, last sql.NullString
		if err := rows.Scan(&full, &first, &last); err != nil {
			return nil, helper.NewError("scan", err)
		}
		used[full] = true
		if first.Valid && first.String != "" {
			used[first.String] = true
		}
		if last.Valid && last.String != "" {
			used[last.String] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}
	return used, nil
}

// Close closes the store file
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// prepare fills identifiers and encrypts the original name
func (s *SQLiteStore) prepare(a *model.Assignment) (*model.Assignment, []byte, error) {
	clone := *a
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	encName, err := s.cipher.Seal([]byte(clone.FullName))
	if err != nil {
		return nil, nil, helper.NewError("encrypt name", err)
	}
	return &clone, encName, nil
}

type scanFunc func(dest ...interface{}) error

func (s *SQLiteStore) scan(scan scanFunc) (*model.Assignment, error) {
	a := &model.Assignment{}
	var (
		id, entityType      string
		encName             []byte
		first, last, gender sql.NullString
		confidence          sql.NullFloat64
		createdAt           int64
	)
	err := scan(&id, &entityType, &encName, &a.PseudonymFull, &first, &last, &a.Theme, &gender, &confidence, &createdAt)
	if err != nil {
		return nil, err
	}

	a.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse mapping id: %w", err)
	}
	a.Type = model.EntityType(entityType)
	a.PseudonymFirst = first.String
	a.PseudonymLast = last.String
	a.Gender = model.Gender(gender.String)
	if confidence.Valid {
		a.Confidence = &confidence.Float64
	}
	a.CreatedAt = time.Unix(0, createdAt)

	name, err := s.cipher.Open(encName)
	if err != nil {
		return nil, err
	}
	a.FullName = string(name)
	return a, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
