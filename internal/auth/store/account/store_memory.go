// Package account reads the account and role records the auth core
// resolves identities from.
//
// Error Contract:
// All store methods follow this error pattern:
//   - Return sentinel.ErrNotFound when the account does not exist
//   - Return wrapped errors with context for infrastructure failures
package account

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"fleetops/internal/auth/models"
	"fleetops/pkg/domain"
	"fleetops/pkg/platform/sentinel"
)

// InMemoryStore holds accounts in memory for tests and local development.
// Unlike the postgres store it accepts writes so fixtures can be seeded.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[domain.AccountID]*models.Account
	byEmail  map[string]domain.AccountID
	nextID   domain.AccountID
}

// NewInMemoryStore constructs an empty in-memory account store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[domain.AccountID]*models.Account),
		byEmail:  make(map[string]domain.AccountID),
		nextID:   1,
	}
}

// Save inserts or replaces an account. A zero ID is assigned the next free one.
func (s *InMemoryStore) Save(_ context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("account is required: %w", sentinel.ErrInvalidState)
	}
	email := normalizeEmail(account.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byEmail[email]; ok && (account.ID.IsZero() || owner != account.ID) {
		return fmt.Errorf("email %q already in use: %w", email, sentinel.ErrInvalidState)
	}
	if account.ID.IsZero() {
		for s.accounts[s.nextID] != nil {
			s.nextID++
		}
		account.ID = s.nextID
	}
	if prev, ok := s.accounts[account.ID]; ok {
		delete(s.byEmail, normalizeEmail(prev.Email))
	}
	stored := cloneAccount(account)
	s.accounts[account.ID] = stored
	s.byEmail[email] = account.ID
	return nil
}

// SetActive flips the account's active flag.
func (s *InMemoryStore) SetActive(_ context.Context, id domain.AccountID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
	}
	acc.Active = active
	return nil
}

// SetRoles replaces the account's role assignments.
func (s *InMemoryStore) SetRoles(_ context.Context, id domain.AccountID, roles ...domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
	}
	acc.Roles = slices.Clone(roles)
	return nil
}

// FindByID returns a copy of the account.
func (s *InMemoryStore) FindByID(_ context.Context, id domain.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneAccount(acc), nil
}

// FindByEmail looks an account up by case-insensitive email.
func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("account with email: %w", sentinel.ErrNotFound)
	}
	return cloneAccount(s.accounts[id]), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneAccount(a *models.Account) *models.Account {
	out := *a
	out.Roles = slices.Clone(a.Roles)
	return &out
}
