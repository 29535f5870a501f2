package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with the same conditional-update semantics
// as the Postgres repository.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*User   // by ID
	byEmail map[string]string  // email -> ID
	refresh map[string]string  // jti -> user ID
	session map[string][]string

	failOn map[string]error // method name -> forced error
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*User{},
		byEmail: map[string]string{},
		refresh: map[string]string{},
		session: map[string][]string{},
		failOn:  map[string]error{},
	}
}

func (f *fakeStore) forced(method string) error {
	return f.failOn[method]
}

func (f *fakeStore) CreateUser(_ context.Context, user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.forced("CreateUser"); err != nil {
		return err
	}
	if _, exists := f.byEmail[user.Email]; exists {
		return ErrEmailTaken
	}

	user.ID = fmt.Sprintf("user-%d", len(f.users)+1)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true

	copied := *user
	f.users[user.ID] = &copied
	f.byEmail[user.Email] = user.ID
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *f.users[id]
	return &copied, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) ClearExpiredLockout(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return nil
	}
	if user.LockedUntil != nil && !time.Now().UTC().Before(*user.LockedUntil) {
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}
	return nil
}

func (f *fakeStore) RecordFailedLogin(_ context.Context, userID string, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return 0, nil, ErrUserNotFound
	}

	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= maxAttempts {
		until := time.Now().UTC().Add(lockout)
		user.LockedUntil = &until
	}
	if user.LockedUntil != nil {
		value := *user.LockedUntil
		return user.FailedLoginAttempts, &value, nil
	}
	return user.FailedLoginAttempts, nil, nil
}

func (f *fakeStore) RecordLogin(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now().UTC()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LoginCount++
	user.OperationCount++
	return nil
}

func (f *fakeStore) AddRefreshToken(_ context.Context, userID, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.forced("AddRefreshToken"); err != nil {
		return err
	}
	f.refresh[jti] = userID
	return nil
}

func (f *fakeStore) RotateRefreshToken(_ context.Context, userID, oldJTI, newJTI string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	owner, ok := f.refresh[oldJTI]
	if !ok || owner != userID {
		return ErrRefreshRevoked
	}
	delete(f.refresh, oldJTI)
	f.refresh[newJTI] = userID
	return nil
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, userID, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if owner, ok := f.refresh[jti]; ok && owner == userID {
		delete(f.refresh, jti)
	}
	return nil
}

func (f *fakeStore) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for jti, owner := range f.refresh {
		if owner == userID {
			delete(f.refresh, jti)
		}
	}
	return nil
}

func (f *fakeStore) GetCredits(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return user.Credits, nil
}

func (f *fakeStore) DeductCredits(_ context.Context, userID string, cost int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return 0, false, ErrUserNotFound
	}
	if user.Credits < cost {
		return user.Credits, false, nil
	}
	user.Credits -= cost
	user.OperationCount++
	return user.Credits, true, nil
}

func (f *fakeStore) AddCredits(_ context.Context, userID string, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	user.Credits += amount
	return user.Credits, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, userID, name string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	user.Name = name
	user.UpdatedAt = time.Now().UTC()
	copied := *user
	return &copied, nil
}

func (f *fakeStore) SessionIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string{}, f.session[userID]...), nil
}

func (f *fakeStore) refreshCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, owner := range f.refresh {
		if owner == userID {
			count++
		}
	}
	return count
}

// fakeDenylist is an in-memory Denylist.
type fakeDenylist struct {
	mu      sync.Mutex
	entries map[string]bool
	addErr  error
	getErr  error
}

func newFakeDenylist() *fakeDenylist {
	return &fakeDenylist{entries: map[string]bool{}}
}

func (f *fakeDenylist) Add(_ context.Context, jti string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addErr != nil {
		return f.addErr
	}
	if ttl > 0 {
		f.entries[jti] = true
	}
	return nil
}

func (f *fakeDenylist) Contains(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return false, f.getErr
	}
	return f.entries[jti], nil
}
