package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/HeartGuard/internal/auth"
)

const uniqueViolation = "23505"

// NewPool opens a pgx pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pgQueries
	pool *pgxpool.Pool
}

// NewPGStore wraps an open pool. Call Migrate before first use.
func NewPGStore(pool *pgxpool.Pool, scheme auth.PasswordScheme) *PGStore {
	if scheme == nil {
		scheme = auth.Plaintext{}
	}
	return &PGStore{
		pgQueries: pgQueries{q: pool, scheme: scheme},
		pool:      pool,
	}
}

// Migrate creates the tables if they do not exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	return s.inTx(ctx, func(Queries) error { return nil }, schema...)
}

func (s *PGStore) Ping(ctx context.Context) error {
	return wrap("ping", s.pool.Ping(ctx))
}

const recordCols = `id, patient_username, name, age, sex, prediction, score, date, details`

func (s *PGStore) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordCols+` FROM records ORDER BY id DESC`)
	if err != nil {
		return nil, wrap("list records", err)
	}
	return collectRecords(rows)
}

func (s *PGStore) ListRecordsByPatient(ctx context.Context, username string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordCols+` FROM records WHERE patient_username = $1 ORDER BY id DESC`, username)
	if err != nil {
		return nil, wrap("list records", err)
	}
	return collectRecords(rows)
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &role); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.PatientUsername, &r.Name, &r.Age, &r.Sex,
			&r.Prediction, &r.Score, &r.Date, &r.Details); err != nil {
			return nil, wrap("scan record", err)
		}
		res = append(res, r)
	}
	return res, wrap("list records", rows.Err())
}

func (s *PGStore) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return false, wrap("delete record", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) Authenticate(ctx context.Context, username, password string, role Role) (User, bool, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, password, role FROM users WHERE username = $1 AND role = $2`,
		username, string(role)))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, wrap("authenticate", err)
	}
	if !s.scheme.Verify(password, u.Password) {
		return User{}, false, nil
	}
	return u, true, nil
}

func (s *PGStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return s.inTx(ctx, fn)
}

// inTx runs stmts and then fn inside one transaction. The deferred
// rollback is a no-op once the commit succeeded.
func (s *PGStore) inTx(ctx context.Context, fn func(q Queries) error, stmts ...string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return wrap("exec", err)
		}
	}
	if err := fn(pgQueries{q: tx, scheme: s.scheme}); err != nil {
		return err
	}
	return wrap("commit", tx.Commit(ctx))
}

func (s *PGStore) SeedDefaultDoctor(ctx context.Context) error {
	encoded, err := s.scheme.Hash(DefaultDoctorPassword)
	if err != nil {
		return wrap("seed doctor", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (username, password, role) VALUES ($1, $2, $3) ON CONFLICT (username) DO NOTHING`,
		DefaultDoctorUsername, encoded, string(RoleDoctor))
	return wrap("seed doctor", err)
}

// pgQueries runs the transactional subset against either the pool or a tx.
type pgQueries struct {
	q      querier
	scheme auth.PasswordScheme
}

func (p pgQueries) FindUserByUsername(ctx context.Context, username string) (User, bool, error) {
	u, err := scanUser(p.q.QueryRow(ctx,
		`SELECT id, username, password, role FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, wrap("find user", err)
	}
	return u, true, nil
}

func (p pgQueries) CreateUser(ctx context.Context, u User) error {
	if !u.Role.Valid() {
		return wrap("create user", fmt.Errorf("invalid role %q", u.Role))
	}
	encoded, err := p.scheme.Hash(u.Password)
	if err != nil {
		return wrap("create user", err)
	}
	_, err = p.q.Exec(ctx,
		`INSERT INTO users (username, password, role) VALUES ($1, $2, $3)`,
		u.Username, encoded, string(u.Role))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return wrap("create user", ErrDuplicateUser)
	}
	return wrap("create user", err)
}

func (p pgQueries) CreateUserIfAbsent(ctx context.Context, u User) (bool, error) {
	if !u.Role.Valid() {
		return false, wrap("create user", fmt.Errorf("invalid role %q", u.Role))
	}
	encoded, err := p.scheme.Hash(u.Password)
	if err != nil {
		return false, wrap("create user", err)
	}
	tag, err := p.q.Exec(ctx,
		`INSERT INTO users (username, password, role) VALUES ($1, $2, $3) ON CONFLICT (username) DO NOTHING`,
		u.Username, encoded, string(u.Role))
	if err != nil {
		return false, wrap("create user", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p pgQueries) CreateRecord(ctx context.Context, r Record) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx, `
		INSERT INTO records (patient_username, name, age, sex, prediction, score, date, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		r.PatientUsername, r.Name, r.Age, r.Sex, r.Prediction, r.Score, r.Date, r.Details,
	).Scan(&id)
	if err != nil {
		return 0, wrap("create record", err)
	}
	return id, nil
}
