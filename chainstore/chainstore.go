// Package chainstore persists sampled chains in SQLite.
package chainstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by LoadRun for an unknown run name.
var ErrRunNotFound = errors.New("chainstore: run not found")

// ChainSource is the read side of a sampler.
type ChainSource interface {
	Dim() int
	Chain() [][]float64
	LnProbability() []float64
	Iterations() int
	Accepted() int
}

// Run is a stored chain.
type Run struct {
	Name       string
	Dim        int
	Iterations int
	Accepted   int
	Chain      [][]float64
	LnProb     []float64
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	   name       TEXT PRIMARY KEY,
	   dim        INTEGER NOT NULL,
	   iterations INTEGER NOT NULL,
	   accepted   INTEGER NOT NULL
	 )`,
	`CREATE TABLE IF NOT EXISTS samples (
	   run      TEXT NOT NULL,
	   idx      INTEGER NOT NULL,
	   lnprob   REAL,
	   position BLOB NOT NULL,
	   PRIMARY KEY (run, idx)
	 )`,
}

// Store persists chains in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite chain store at path and creates its tables.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("chainstore: storage path is required")
	}
	sqlDB, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "chainstore: open sqlite db")
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "chainstore: ping sqlite db")
	}
	for _, stmt := range schema {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, errors.Wrap(err, "chainstore: create schema")
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRun stores the chain of src under name, replacing any run stored under
// the same name.
func (s *Store) SaveRun(ctx context.Context, name string, src ChainSource) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("chainstore: run name is required")
	}

	chain := src.Chain()
	lnprobs := src.LnProbability()
	if len(chain) != len(lnprobs) {
		return errors.Errorf("chainstore: %d positions but %d log-probabilities", len(chain), len(lnprobs))
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "chainstore: begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM samples WHERE run = ?`, name); err != nil {
		return errors.Wrap(err, "chainstore: clear samples")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE name = ?`, name); err != nil {
		return errors.Wrap(err, "chainstore: clear run")
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (name, dim, iterations, accepted) VALUES (?, ?, ?, ?)`,
		name, src.Dim(), src.Iterations(), src.Accepted(),
	); err != nil {
		return errors.Wrap(err, "chainstore: insert run")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (run, idx, lnprob, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "chainstore: prepare sample insert")
	}
	defer stmt.Close()

	for i, p := range chain {
		if _, err = stmt.ExecContext(ctx, name, i, encodeLnProb(lnprobs[i]), encodePosition(p)); err != nil {
			return errors.Wrapf(err, "chainstore: insert sample %d", i)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "chainstore: commit")
	}
	return nil
}

// LoadRun reads back the run stored under name.
func (s *Store) LoadRun(ctx context.Context, name string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	run := Run{Name: strings.TrimSpace(name)}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT dim, iterations, accepted FROM runs WHERE name = ?`, run.Name)
	if err := row.Scan(&run.Dim, &run.Iterations, &run.Accepted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, errors.Wrap(err, "chainstore: read run")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT lnprob, position FROM samples WHERE run = ? ORDER BY idx`, run.Name)
	if err != nil {
		return Run{}, errors.Wrap(err, "chainstore: query samples")
	}
	defer rows.Close()

	run.Chain = [][]float64{}
	run.LnProb = []float64{}
	for rows.Next() {
		var (
			lnprob   sql.NullFloat64
			position []byte
		)
		if err := rows.Scan(&lnprob, &position); err != nil {
			return Run{}, errors.Wrap(err, "chainstore: scan sample")
		}
		if len(position) != 8*run.Dim {
			return Run{}, errors.Errorf("chainstore: sample %d has %d position bytes, want %d", len(run.Chain), len(position), 8*run.Dim)
		}
		p := decodePosition(position)
		run.Chain = append(run.Chain, p)
		run.LnProb = append(run.LnProb, decodeLnProb(lnprob))
	}
	if err := rows.Err(); err != nil {
		return Run{}, errors.Wrap(err, "chainstore: iterate samples")
	}
	return run, nil
}

// Positions are little-endian float64 bits, so NaN and ±Inf survive.
func encodePosition(p []float64) []byte {
	buf := make([]byte, 8*len(p))
	for i, v := range p {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodePosition(buf []byte) []float64 {
	p := make([]float64, len(buf)/8)
	for i := range p {
		p[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return p
}

// SQLite stores NaN as NULL.
func encodeLnProb(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func decodeLnProb(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
