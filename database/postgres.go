package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voilenlp/voile/helper"
	"github.com/voilenlp/voile/model"
	loadSql "github.com/voilenlp/voile/sql"
)

// PostgresStore is the shared mapping store for batch runs where several
// worker processes write against one database. Atomicity of find-or-create
// lives in the find_or_create_mapping SQL function. Names are encrypted
// client-side with the same cipher as the local store, so the database
// holds no plaintext.
type PostgresStore struct {
	db     *helper.Database
	cipher *Cipher
}

// NewPostgresStore creates the shared store handler, loading the mapping
// SQL functions and creating the table. If force is true the functions are
// reloaded even if they already exist.
func NewPostgresStore(db *helper.Database, cipher *Cipher, force bool) (*PostgresStore, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if cipher == nil {
		return nil, helper.NewError("cipher validation", fmt.Errorf("cipher is nil"))
	}

	store := &PostgresStore{db: db, cipher: cipher}

	if err := loadSql.LoadMappingsSql(db.Instance, force); err != nil {
		return nil, helper.NewError("load mappings sql", err)
	}
	if err := store.createTable(); err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized PostgresStore")

	return store, nil
}

func (s *PostgresStore) createTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.Instance.ExecContext(ctx, `SELECT init_mappings();`); err != nil {
		return helper.NewError("initialize mappings table", err)
	}

	s.db.Logger.Info("Checked/created table mappings")
	return nil
}

// FindByFullKey returns the assignment whose normalized full name matches
func (s *PostgresStore) FindByFullKey(ctx context.Context, fullKey string) (*model.Assignment, error) {
	row := s.db.Instance.QueryRowContext(ctx,
		`SELECT * FROM select_mapping_by_full_key($1)`,
		s.cipher.LookupHash(fullKey),
	)
	a, err := s.scan(row.Scan, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	a.FullKey = fullKey
	return &a.Assignment, nil
}

// FindByComponent returns every assignment sharing a component key
func (s *PostgresStore) FindByComponent(ctx context.Context, componentKey string, componentType ComponentType) ([]*model.Assignment, error) {
	if componentKey == "" {
		return nil, nil
	}

	rows, err := s.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_mappings_by_component($1, $2)`,
		s.cipher.LookupHash(componentKey),
		string(componentType),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var assignments []*model.Assignment
	for rows.Next() {
		a, err := s.scan(rows.Scan, false)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		assignments = append(assignments, &a.Assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}
	return assignments, nil
}

// Save persists a new assignment
func (s *PostgresStore) Save(ctx context.Context, a *model.Assignment) (*model.Assignment, error) {
	prepared, encName, err := s.prepare(a)
	if err != nil {
		return nil, err
	}

	row := s.db.Instance.QueryRowContext(ctx,
		`SELECT * FROM insert_mapping($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		prepared.ID, string(prepared.Type),
		s.cipher.LookupHash(prepared.FullKey), s.cipher.LookupHash(prepared.FirstKey), s.cipher.LookupHash(prepared.LastKey),
		encName,
		prepared.PseudonymFull, nullable(prepared.PseudonymFirst), nullable(prepared.PseudonymLast),
		prepared.Theme, nullable(string(prepared.Gender)), prepared.Confidence, prepared.Metadata,
	)

	saved, err := s.scan(row.Scan, false)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	saved.FullKey = prepared.FullKey
	saved.FirstKey = prepared.FirstKey
	saved.LastKey = prepared.LastKey
	return &saved.Assignment, nil
}

// SaveBatch persists several assignments in one transaction
func (s *PostgresStore) SaveBatch(ctx context.Context, as []*model.Assignment) ([]*model.Assignment, error) {
	tx, err := s.db.Instance.BeginTx(ctx, nil)
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
		row := tx.QueryRowContext(ctx,
			`SELECT * FROM insert_mapping($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			prepared.ID, string(prepared.Type),
			s.cipher.LookupHash(prepared.FullKey), s.cipher.LookupHash(prepared.FirstKey), s.cipher.LookupHash(prepared.LastKey),
			encName,
			prepared.PseudonymFull, nullable(prepared.PseudonymFirst), nullable(prepared.PseudonymLast),
			prepared.Theme, nullable(string(prepared.Gender)), prepared.Confidence, prepared.Metadata,
		)
		out, err := s.scan(row.Scan, false)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		out.FullKey = prepared.FullKey
		saved = append(saved, &out.Assignment)
	}

	if err := tx.Commit(); err != nil {
		return nil, helper.NewError("commit transaction", err)
	}
	return saved, nil
}

// FindOrCreate atomically returns the existing assignment or persists the
// given one
func (s *PostgresStore) FindOrCreate(ctx context.Context, a *model.Assignment) (*model.Assignment, bool, error) {
	prepared, encName, err := s.prepare(a)
	if err != nil {
		return nil, false, err
	}

	row := s.db.Instance.QueryRowContext(ctx,
		`SELECT * FROM find_or_create_mapping($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		prepared.ID, string(prepared.Type),
		s.cipher.LookupHash(prepared.FullKey), s.cipher.LookupHash(prepared.FirstKey), s.cipher.LookupHash(prepared.LastKey),
		encName,
		prepared.PseudonymFull, nullable(prepared.PseudonymFirst), nullable(prepared.PseudonymLast),
		prepared.Theme, nullable(string(prepared.Gender)), prepared.Confidence, prepared.Metadata,
	)

	result, err := s.scan(row.Scan, true)
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}
	result.FullKey = prepared.FullKey
	return &result.Assignment, result.created, nil
}

// PseudonymComponents returns the pseudonym components already in use
func (s *PostgresStore) PseudonymComponents(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.Instance.QueryContext(ctx, `SELECT * FROM list_pseudonym_components()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, helper.NewError("scan", err)
		}
		if v != "" {
			used[v] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}
	return used, nil
}

// Delete removes a mapping by ID. Supports explicit erasure requests; not
// part of the normal processing path.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Instance.ExecContext(ctx, `SELECT delete_mapping($1)`, id); err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) prepare(a *model.Assignment) (*model.Assignment, []byte, error) {
	clone := *a
	if clone.ID == uuid.Nil {
		clone.ID = uuid.New()
	}
	if clone.Metadata == nil {
		clone.Metadata = model.Metadata{}
	}
	encName, err := s.cipher.Seal([]byte(clone.FullName))
	if err != nil {
		return nil, nil, helper.NewError("encrypt name", err)
	}
	return &clone, encName, nil
}

// scannedAssignment carries the created flag of find_or_create_mapping
type scannedAssignment struct {
	model.Assignment
	created bool
}

func (s *PostgresStore) scan(scan scanFunc, withCreated bool) (*scannedAssignment, error) {
	a := &scannedAssignment{}
	var (
		fullKey, firstKey, lastKey []byte
		encName                    []byte
		first, last, gender        sql.NullString
		confidence                 sql.NullFloat64
	)

	dest := []interface{}{
		&a.ID, (*string)(&a.Type), &fullKey, &firstKey, &lastKey, &encName,
		&a.PseudonymFull, &first, &last, &a.Theme, &gender, &confidence, &a.Metadata, &a.CreatedAt,
	}
	if withCreated {
		dest = append(dest, &a.created)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}

	a.PseudonymFirst = first.String
	a.PseudonymLast = last.String
	a.Gender = model.Gender(gender.String)
	if confidence.Valid {
		a.Confidence = &confidence.Float64
	}

	name, err := s.cipher.Open(encName)
	if err != nil {
		return nil, err
	}
	a.FullName = string(name)
	return a, nil
}
