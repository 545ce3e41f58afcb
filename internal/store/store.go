// Package store persists users and prediction records.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Role distinguishes clinicians from patients.
type Role string

const (
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

// Default account created when the store is initialised.
const (
	DefaultDoctorUsername = "doctor"
	DefaultDoctorPassword = "doctor123"
)

// User is an account. Password holds the scheme-encoded form.
type User struct {
	ID       int64
	Username string
	Password string
	Role     Role
}

// Record is one stored prediction. Records are append-only.
// Details is the original request serialized as JSON and is not interpreted.
type Record struct {
	ID              int64
	PatientUsername string
	Name            string
	Age             int
	Sex             string
	Prediction      int
	Score           int
	Date            string
	Details         string
}

// Queries is the subset of operations available inside a transaction.
type Queries interface {
	FindUserByUsername(ctx context.Context, username string) (User, bool, error)
	// CreateUser encodes u.Password with the store's password scheme.
	CreateUser(ctx context.Context, u User) error
	// CreateUserIfAbsent is CreateUser that leaves an existing username
	// untouched and reports whether it inserted.
	CreateUserIfAbsent(ctx context.Context, u User) (bool, error)
	CreateRecord(ctx context.Context, r Record) (int64, error)
}

// Store is the full persistence surface used by the HTTP layer.
type Store interface {
	Queries

	// ListRecords returns all records, newest id first.
	ListRecords(ctx context.Context) ([]Record, error)
	ListRecordsByPatient(ctx context.Context, username string) ([]Record, error)
	// DeleteRecord reports whether a record with id existed.
	DeleteRecord(ctx context.Context, id int64) (bool, error)
	Authenticate(ctx context.Context, username, password string, role Role) (User, bool, error)

	// InTx runs fn in a single transaction. Nothing fn wrote survives if it
	// returns an error.
	InTx(ctx context.Context, fn func(q Queries) error) error

	// SeedDefaultDoctor creates the default doctor account if it is absent.
	SeedDefaultDoctor(ctx context.Context) error
	Ping(ctx context.Context) error
}

// ErrDuplicateUser is returned when a username is already taken.
var ErrDuplicateUser = errors.New("username already exists")

// Error wraps any persistence failure with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}
