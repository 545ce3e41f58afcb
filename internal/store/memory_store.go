package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Skufu/HeartGuard/internal/auth"
)

// MemoryStore keeps users and records in-process. It backs the server when
// the database is disabled and is used throughout the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	scheme  auth.PasswordScheme
	users   map[string]User
	records []Record // ascending id
	userSeq int64
	recSeq  int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore(scheme auth.PasswordScheme) *MemoryStore {
	if scheme == nil {
		scheme = auth.Plaintext{}
	}
	return &MemoryStore{
		scheme: scheme,
		users:  make(map[string]User),
	}
}

func (m *MemoryStore) FindUserByUsername(ctx context.Context, username string) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memQueries{m}.FindUserByUsername(ctx, username)
}

func (m *MemoryStore) CreateUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memQueries{m}.CreateUser(ctx, u)
}

func (m *MemoryStore) CreateUserIfAbsent(ctx context.Context, u User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memQueries{m}.CreateUserIfAbsent(ctx, u)
}

func (m *MemoryStore) CreateRecord(ctx context.Context, r Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memQueries{m}.CreateRecord(ctx, r)
}

func (m *MemoryStore) ListRecords(_ context.Context) ([]Record, error) {
	return m.filter(func(Record) bool { return true }), nil
}

func (m *MemoryStore) ListRecordsByPatient(_ context.Context, username string) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.PatientUsername == username }), nil
}

func (m *MemoryStore) filter(keep func(Record) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]Record, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0; i-- {
		if keep(m.records[i]) {
			res = append(res, m.records[i])
		}
	}
	return res
}

func (m *MemoryStore) DeleteRecord(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Authenticate(_ context.Context, username, password string, role Role) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok || u.Role != role || !m.scheme.Verify(password, u.Password) {
		return User{}, false, nil
	}
	return u, true, nil
}

// InTx holds the write lock for the whole of fn and restores the previous
// state if fn fails.
func (m *MemoryStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make(map[string]User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	nrec, userSeq, recSeq := len(m.records), m.userSeq, m.recSeq

	if err := fn(memQueries{m}); err != nil {
		m.users = users
		m.records = m.records[:nrec]
		m.userSeq, m.recSeq = userSeq, recSeq
		return err
	}
	return nil
}

func (m *MemoryStore) SeedDefaultDoctor(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[DefaultDoctorUsername]; ok {
		return nil
	}
	return memQueries{m}.CreateUser(ctx, User{
		Username: DefaultDoctorUsername,
		Password: DefaultDoctorPassword,
		Role:     RoleDoctor,
	})
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// UserCount returns the number of stored users.
func (m *MemoryStore) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// memQueries operates on a MemoryStore whose lock is already held.
type memQueries struct{ m *MemoryStore }

func (q memQueries) FindUserByUsername(_ context.Context, username string) (User, bool, error) {
	u, ok := q.m.users[username]
	return u, ok, nil
}

func (q memQueries) CreateUser(_ context.Context, u User) error {
	if !u.Role.Valid() {
		return wrap("create user", fmt.Errorf("invalid role %q", u.Role))
	}
	if _, ok := q.m.users[u.Username]; ok {
		return wrap("create user", ErrDuplicateUser)
	}
	encoded, err := q.m.scheme.Hash(u.Password)
	if err != nil {
		return wrap("create user", err)
	}
	q.m.userSeq++
	u.ID = q.m.userSeq
	u.Password = encoded
	q.m.users[u.Username] = u
	return nil
}

func (q memQueries) CreateUserIfAbsent(ctx context.Context, u User) (bool, error) {
	if _, ok := q.m.users[u.Username]; ok {
		if !u.Role.Valid() {
			return false, wrap("create user", fmt.Errorf("invalid role %q", u.Role))
		}
		return false, nil
	}
	if err := q.CreateUser(ctx, u); err != nil {
		return false, err
	}
	return true, nil
}

func (q memQueries) CreateRecord(_ context.Context, r Record) (int64, error) {
	q.m.recSeq++
	r.ID = q.m.recSeq
	q.m.records = append(q.m.records, r)
	return r.ID, nil
}
