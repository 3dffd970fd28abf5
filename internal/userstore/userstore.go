// Package userstore holds portal accounts. The in-memory implementation
// backs development and tests; production deployments swap in a real
// directory behind the same interface.
package userstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridianhealth/patient-portal/internal/xerrors"
)

var (
	ErrNotFound      = xerrors.New("userstore: account not found")
	ErrDuplicate     = xerrors.New("userstore: email already registered")
	ErrBadCredential = xerrors.New("userstore: invalid credentials")
)

const bcryptCost = bcrypt.DefaultCost

// Account is a registered portal user.
type Account struct {
	ID           string
	Email        string
	Role         string
	PasswordHash []byte
}

// Store is the account directory surface the HTTP layer depends on.
type Store interface {
	Create(ctx context.Context, email, password, role string) (Account, error)
	Authenticate(ctx context.Context, email, password string) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
}

// Memory is a mutex-guarded in-memory Store.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *Memory) Create(ctx context.Context, email, password, role string) (Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return Account{}, xerrors.Wrap(err, "hash password")
	}

	key := normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[key]; exists {
		return Account{}, ErrDuplicate
	}

	acct := Account{
		ID:           uuid.NewString(),
		Email:        key,
		Role:         role,
		PasswordHash: hash,
	}
	m.byID[acct.ID] = acct
	m.byEmail[key] = acct.ID
	return acct, nil
}

func (m *Memory) Authenticate(ctx context.Context, email, password string) (Account, error) {
	m.mu.RLock()
	id, ok := m.byEmail[normalizeEmail(email)]
	acct := m.byID[id]
	m.mu.RUnlock()

	if !ok {
		// burn a compare anyway so unknown emails cost the same as wrong
		// passwords
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Account{}, ErrBadCredential
	}

	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return Account{}, ErrBadCredential
	}
	return acct, nil
}

func (m *Memory) Get(ctx context.Context, id string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()
